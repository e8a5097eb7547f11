package protocol

import "github.com/jonwraymond/jatpclient/autherr"

// Envelope validation errors. All are protocol-kind and never retried.
var (
	ErrMissingProtocolVersion = autherr.New(autherr.KindProtocol, "protocol: missing protocol_version in response")
	ErrMissingRequestID       = autherr.New(autherr.KindProtocol, "protocol: missing request_id in response")
	ErrMissingSuccess         = autherr.New(autherr.KindProtocol, "protocol: missing success field in response")
	ErrInvalidMethod          = autherr.New(autherr.KindInvalidRequest, "protocol: method must be Service.Method")
)
