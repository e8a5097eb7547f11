// Package autherr defines the error taxonomy surfaced by the JATP client.
//
// Every failure that leaves the client is an *Error carrying a Kind, the
// original message, an optional wire code and optional structured details.
// Callers branch on the kind with errors.Is against the sentinels in this
// package, or with errors.As to reach the code and details:
//
//	if errors.Is(err, autherr.ErrTokenExpired) {
//	    // refresh and retry
//	}
//
//	var rl *autherr.Error
//	if errors.As(err, &rl) && rl.Kind == autherr.KindRateLimit {
//	    limit, _ := rl.Limit()
//	    ...
//	}
//
// Translate maps arbitrary errors, wire error codes and "[CODE] message"
// strings into this taxonomy; IsRetryable classifies them for the retry
// policy.
package autherr
