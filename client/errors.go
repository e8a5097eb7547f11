package client

import "github.com/jonwraymond/jatpclient/autherr"

// Client errors. All are *autherr.Error so callers can switch on Kind.
var (
	// ErrServerClosed is returned when the service closes the connection
	// instead of answering.
	ErrServerClosed = autherr.New(autherr.KindConnection, "connection closed by server")

	// ErrMissingProjectID indicates a key lookup without a project id and
	// no default project configured.
	ErrMissingProjectID = autherr.New(autherr.KindInvalidRequest, "client: project id is required")

	// ErrKeyNotFound indicates the service answered without the requested key.
	ErrKeyNotFound = autherr.New(autherr.KindNotFound, "client: public key not found in response").
			WithCode(autherr.CodeNotFound)
)
