package autherr

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// Kind identifies the category of an auth-service failure.
type Kind int

const (
	// KindAuthService is the catch-all for failures that fit no other kind.
	KindAuthService Kind = iota
	// KindAuthentication indicates bad service credentials or missing auth.
	KindAuthentication
	// KindInvalidRequest indicates a malformed or invalid request payload.
	KindInvalidRequest
	// KindInvalidToken indicates a malformed or otherwise invalid token.
	KindInvalidToken
	// KindTokenExpired indicates the token is past its expiry.
	KindTokenExpired
	// KindTokenRevoked indicates the token was revoked.
	KindTokenRevoked
	// KindRateLimit indicates the caller exceeded a rate limit.
	KindRateLimit
	// KindNotFound indicates the requested entity does not exist.
	KindNotFound
	// KindInternal indicates a server-side fault.
	KindInternal
	// KindUnsupportedProtocolVersion indicates a protocol version mismatch.
	KindUnsupportedProtocolVersion
	// KindProtocol indicates a malformed or incomplete response envelope.
	KindProtocol
	// KindConnection indicates socket, TLS or timeout failures.
	KindConnection
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthService:
		return "auth_service"
	case KindAuthentication:
		return "authentication"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenExpired:
		return "token_expired"
	case KindTokenRevoked:
		return "token_revoked"
	case KindRateLimit:
		return "rate_limit"
	case KindNotFound:
		return "not_found"
	case KindInternal:
		return "internal"
	case KindUnsupportedProtocolVersion:
		return "unsupported_protocol_version"
	case KindProtocol:
		return "protocol"
	case KindConnection:
		return "connection"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the client.
//
// Message is the human-readable text as received or produced, Code the
// machine-readable wire code (may be empty) and Details any structured data
// that accompanied the failure.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details map[string]any
	Err     error

	sentinel bool
}

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrAuthService                = sentinel(KindAuthService, "autherr: auth service error")
	ErrAuthentication             = sentinel(KindAuthentication, "autherr: authentication failed")
	ErrInvalidRequest             = sentinel(KindInvalidRequest, "autherr: invalid request")
	ErrInvalidToken               = sentinel(KindInvalidToken, "autherr: invalid token")
	ErrTokenExpired               = sentinel(KindTokenExpired, "autherr: token expired")
	ErrTokenRevoked               = sentinel(KindTokenRevoked, "autherr: token revoked")
	ErrRateLimit                  = sentinel(KindRateLimit, "autherr: rate limit exceeded")
	ErrNotFound                   = sentinel(KindNotFound, "autherr: not found")
	ErrInternal                   = sentinel(KindInternal, "autherr: internal error")
	ErrUnsupportedProtocolVersion = sentinel(KindUnsupportedProtocolVersion, "autherr: unsupported protocol version")
	ErrProtocol                   = sentinel(KindProtocol, "autherr: protocol error")
	ErrConnection                 = sentinel(KindConnection, "autherr: connection error")
)

func sentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, sentinel: true}
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind that wraps cause.
// If message is empty, the cause's text is used.
func Wrap(kind Kind, cause error, message string) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Err: cause}
}

// WithCode returns a copy of e carrying the wire code.
func (e *Error) WithCode(code string) *Error {
	cp := *e
	cp.sentinel = false
	cp.Code = code
	return &cp
}

// WithDetails returns a copy of e carrying details.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.sentinel = false
	cp.Details = details
	return &cp
}

// Clone returns a private copy of e that still matches e under errors.Is.
// Package-level errors are returned through Clone so a caller editing
// Details cannot change what later callers see.
func (e *Error) Clone() *Error {
	cp := *e
	cp.sentinel = false
	cp.Details = maps.Clone(e.Details)
	cp.Err = e
	return &cp
}

// Error renders the "[CODE] message" convention when a code is present.
func (e *Error) Error() string {
	if e.Code != "" {
		return "[" + e.Code + "] " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || !t.sentinel {
		return false
	}
	return t.Kind == e.Kind
}

// Limit returns the rate-limit ceiling from details, if supplied.
func (e *Error) Limit() (int64, bool) {
	return e.detailInt("limit")
}

// Remaining returns the remaining quota from details, if supplied.
func (e *Error) Remaining() (int64, bool) {
	return e.detailInt("remaining")
}

// Window returns the rate-limit window from details, if supplied.
func (e *Error) Window() (int64, bool) {
	return e.detailInt("window")
}

func (e *Error) detailInt(key string) (int64, bool) {
	if e.Details == nil {
		return 0, false
	}
	return toInt64(e.Details[key])
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
