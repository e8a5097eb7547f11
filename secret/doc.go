// Package secret resolves secret references in configuration values.
//
// It supports:
//   - Strict environment expansion of ${VAR} (see ExpandEnvStrict)
//   - Pluggable secret providers (see Provider + Registry)
//   - Resolving secret references in configuration values (see Resolver)
//
// References use the prefix "secretref:":
//   - Full value:  secretref:env:JATP_SERVICE_SECRET
//   - File:        secretref:file:/run/secrets/client.key
//   - Inline use:  Bearer secretref:env:JATP_TOKEN
//
// The env and file providers are built in; NewDefaultResolver wires both.
package secret
