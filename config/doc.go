// Package config loads client configuration from a YAML file, JATP_
// environment variables and defaults into one normalized Config.
//
// Timeouts and backoffs are written in seconds and may be fractional:
//
//	address: auth.internal:50052
//	project_id: billing
//	auth:
//	  service_name: billing-api
//	  service_secret: secretref:env:BILLING_SERVICE_SECRET
//	tcp:
//	  persistent: true
//	  tls:
//	    enabled: true
//	    ca_file: /etc/jatp/ca.pem
//	timeout:
//	  connect: 2.5
//	  request: 10
//	key_cache:
//	  driver: redis
//
// A top-level tls block is accepted for older files and folded into
// tcp.tls; keys set under tcp.tls win. Credential fields pass through a
// secret.Resolver, so they may hold ${VAR} or secretref: references.
package config
