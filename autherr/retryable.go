package autherr

import "errors"

// retryableCodes lists wire codes treated as transient.
//
// TODO: rate-limit codes retry on the normal backoff schedule; a dedicated
// policy honouring the server's window would avoid retrying into the limit.
var retryableCodes = map[string]bool{
	CodeInternal:           true,
	CodeInternalError:      true,
	"ERROR_INTERNAL_ERROR": true,
	CodeRateLimitExceeded:  true,
	"RATE_LIMIT_EXCEEDED":  true,
}

// IsRetryableCode reports whether a wire code is on the retry allow-list.
func IsRetryableCode(code string) bool {
	return retryableCodes[code]
}

// IsRetryable classifies err for the retry policy.
//
// Connection failures are retryable. Wire errors are retryable only when
// their code is on the allow-list, whether the code arrives structured or
// embedded in the message as "[CODE] text". Everything else is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	e := Translate(err)
	if e.Kind == KindConnection {
		return true
	}
	if e.Code != "" {
		return retryableCodes[e.Code]
	}
	if code, _, ok := ParseBracket(e.Message); ok {
		return retryableCodes[code]
	}
	return false
}

// IsConnection reports whether err is a connection-kind failure.
func IsConnection(err error) bool {
	if err == nil {
		return false
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindConnection
	}
	return Translate(err).Kind == KindConnection
}
