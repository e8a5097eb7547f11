package autherr_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/jatpclient/autherr"
)

func ExampleFromWire() {
	err := autherr.FromWire(autherr.CodeTokenExpired, "token expired at 12:00", nil)

	fmt.Println("Kind:", err.Kind)
	fmt.Println("Is token expired:", errors.Is(err, autherr.ErrTokenExpired))
	fmt.Println("Retryable:", autherr.IsRetryable(err))
	// Output:
	// Kind: token_expired
	// Is token expired: true
	// Retryable: false
}

func ExampleTranslate() {
	// Bracketed codes in plain errors are recovered.
	wire := autherr.Translate(errors.New("[ERROR_INTERNAL] database unavailable"))
	fmt.Println(wire.Kind, wire.Code)

	// Timeouts become connection failures.
	timeout := autherr.Translate(context.DeadlineExceeded)
	fmt.Println(timeout.Kind)
	// Output:
	// internal ERROR_INTERNAL
	// connection
}

func ExampleError_Clone() {
	notFound := autherr.New(autherr.KindNotFound, "key not found")

	err := notFound.Clone()
	err.Details = map[string]any{"kid": "k9"}

	fmt.Println("Matches origin:", errors.Is(err, notFound))
	fmt.Println("Origin details:", notFound.Details)
	// Output:
	// Matches origin: true
	// Origin details: map[]
}
