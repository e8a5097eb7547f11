// Package auth verifies tokens issued by the auth service.
//
// Verifier checks JWT signatures locally against the service's public keys.
// Keys come from a KeyProvider; CachedKeyProvider reads them through the
// client's key cache so that every key of a rotation set is accepted and a
// key rotated in later is fetched on demand. RemoteVerifier asks the
// service instead, which also catches revoked tokens and validates API
// keys. Chain combines the two, falling back to the service only when the
// local check cannot reach a verdict.
package auth
