package auth

import "github.com/jonwraymond/jatpclient/autherr"

// Sentinel errors for token verification. Each carries an autherr kind, so
// callers may match either the sentinel or the kind's autherr sentinel.
var (
	ErrMissingToken         = autherr.New(autherr.KindAuthentication, "auth: missing token")
	ErrTokenMalformed       = autherr.New(autherr.KindInvalidToken, "auth: token malformed")
	ErrTokenExpired         = autherr.New(autherr.KindTokenExpired, "auth: token expired")
	ErrInvalidSignature     = autherr.New(autherr.KindInvalidToken, "auth: token signature invalid")
	ErrInvalidClaims        = autherr.New(autherr.KindInvalidToken, "auth: token claims invalid")
	ErrUnsupportedAlgorithm = autherr.New(autherr.KindInvalidToken, "auth: signing algorithm not allowed")
	ErrTokenInactive        = autherr.New(autherr.KindInvalidToken, "auth: token rejected by auth service")
	ErrAPIKeyInvalid        = autherr.New(autherr.KindAuthentication, "auth: api key rejected by auth service")
	ErrKeyNotFound          = autherr.New(autherr.KindNotFound, "auth: signing key not found")
	ErrUnsupportedKey       = autherr.New(autherr.KindInvalidRequest, "auth: unsupported public key")
	ErrNilKeyFetcher        = autherr.New(autherr.KindInvalidRequest, "auth: key fetcher is nil")
	ErrNilKeyProvider       = autherr.New(autherr.KindInvalidRequest, "auth: key provider is nil")
	ErrNilCaller            = autherr.New(autherr.KindInvalidRequest, "auth: caller is nil")
	ErrNoVerifiers          = autherr.New(autherr.KindInvalidRequest, "auth: no verifiers configured")
)
