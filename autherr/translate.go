package autherr

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"regexp"
	"strings"
)

// Wire error codes emitted by the auth service.
const (
	CodeAuthFailed                 = "AUTH_FAILED"
	CodeUnauthenticated            = "ERROR_UNAUTHENTICATED"
	CodeInvalidCredentials         = "ERROR_INVALID_CREDENTIALS"
	CodeInvalidAPIKey              = "ERROR_INVALID_API_KEY"
	CodeInvalidRequest             = "ERROR_INVALID_REQUEST"
	CodeValidation                 = "ERROR_VALIDATION"
	CodeInvalidUserID              = "ERROR_INVALID_USER_ID"
	CodeInvalidToken               = "ERROR_INVALID_TOKEN"
	CodeInvalidSignature           = "ERROR_INVALID_SIGNATURE"
	CodeInvalidIssuer              = "ERROR_INVALID_ISSUER"
	CodeInvalidAudience            = "ERROR_INVALID_AUDIENCE"
	CodeRefreshTokenInvalid        = "ERROR_REFRESH_TOKEN_INVALID"
	CodeExpiredToken               = "ERROR_EXPIRED_TOKEN"
	CodeTokenExpired               = "ERROR_TOKEN_EXPIRED"
	CodeRefreshTokenExpired        = "ERROR_REFRESH_TOKEN_EXPIRED"
	CodeTokenRevoked               = "ERROR_TOKEN_REVOKED"
	CodeRateLimitExceeded          = "ERROR_RATE_LIMIT_EXCEEDED"
	CodeNotFound                   = "ERROR_NOT_FOUND"
	CodeKeyNotFound                = "ERROR_KEY_NOT_FOUND"
	CodeAPIKeyNotFound             = "ERROR_API_KEY_NOT_FOUND"
	CodeInternal                   = "ERROR_INTERNAL"
	CodeInternalError              = "INTERNAL_ERROR"
	CodeUnsupportedProtocolVersion = "ERROR_UNSUPPORTED_PROTOCOL_VERSION"
	CodeUnknown                    = "ERROR_UNKNOWN"
)

var codeKinds = map[string]Kind{
	CodeAuthFailed:                 KindAuthentication,
	CodeUnauthenticated:            KindAuthentication,
	CodeInvalidCredentials:         KindAuthentication,
	CodeInvalidAPIKey:              KindAuthentication,
	CodeInvalidRequest:             KindInvalidRequest,
	CodeValidation:                 KindInvalidRequest,
	CodeInvalidUserID:              KindInvalidRequest,
	CodeInvalidToken:               KindInvalidToken,
	CodeInvalidSignature:           KindInvalidToken,
	CodeInvalidIssuer:              KindInvalidToken,
	CodeInvalidAudience:            KindInvalidToken,
	CodeRefreshTokenInvalid:        KindInvalidToken,
	CodeExpiredToken:               KindTokenExpired,
	CodeTokenExpired:               KindTokenExpired,
	CodeRefreshTokenExpired:        KindTokenExpired,
	CodeTokenRevoked:               KindTokenRevoked,
	CodeRateLimitExceeded:          KindRateLimit,
	"RATE_LIMIT_EXCEEDED":          KindRateLimit,
	CodeNotFound:                   KindNotFound,
	"NOT_FOUND":                    KindNotFound,
	CodeKeyNotFound:                KindNotFound,
	CodeAPIKeyNotFound:             KindNotFound,
	CodeInternal:                   KindInternal,
	CodeInternalError:              KindInternal,
	"ERROR_INTERNAL_ERROR":         KindInternal,
	CodeUnsupportedProtocolVersion: KindUnsupportedProtocolVersion,
}

// KindForCode returns the kind registered for a wire code.
func KindForCode(code string) (Kind, bool) {
	k, ok := codeKinds[code]
	return k, ok
}

var bracketPattern = regexp.MustCompile(`^\s*\[([A-Za-z0-9_.\-]+)\]\s*(.*)$`)

// ParseBracket splits a "[CODE] text" message into its code and text.
func ParseBracket(msg string) (code, text string, ok bool) {
	m := bracketPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// FromWire translates a structured wire error into an *Error.
//
// Known codes map through a fixed table. Unknown codes fall back to
// message inference for token failures, then to KindAuthService.
func FromWire(code, message string, details map[string]any) *Error {
	kind, ok := codeKinds[code]
	if !ok {
		kind = inferTokenKind(message)
	}
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func inferTokenKind(message string) Kind {
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "expired"):
		return KindTokenExpired
	case strings.Contains(lower, "revoked"):
		return KindTokenRevoked
	case (strings.Contains(lower, "invalid") || strings.Contains(lower, "malformed")) &&
		strings.Contains(lower, "token"):
		return KindInvalidToken
	default:
		return KindAuthService
	}
}

var connectionVocabulary = []string{"connection", "timeout", "closed", "unreachable"}

// Translate maps any error into the taxonomy.
//
// An *Error anywhere in the chain is returned unchanged. Otherwise transport
// failures recognised by type become KindConnection, a "[CODE] text" message
// is translated as a wire error, connection vocabulary in the message becomes
// KindConnection and everything else becomes KindAuthService. The original
// error is kept as the cause.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	if isTransportFailure(err) {
		return Wrap(KindConnection, err, "")
	}

	msg := err.Error()
	if code, text, ok := ParseBracket(msg); ok {
		e := FromWire(code, text, nil)
		e.Err = err
		return e
	}

	lower := strings.ToLower(msg)
	for _, word := range connectionVocabulary {
		if strings.Contains(lower, word) {
			return Wrap(KindConnection, err, msg)
		}
	}

	return Wrap(KindAuthService, err, msg)
}

// TranslateMessage maps a bare message with no structured error available.
func TranslateMessage(msg string) *Error {
	e := Translate(errors.New(msg))
	e.Err = nil
	return e
}

func isTransportFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
