package transport

import "github.com/jonwraymond/jatpclient/autherr"

// Connection state errors.
var (
	// ErrPeerClosed is returned by ReadLine when the peer closed the stream
	// cleanly between frames.
	ErrPeerClosed = autherr.New(autherr.KindConnection, "transport: connection closed by peer")

	// ErrNotConnected is returned when reading or writing without a socket.
	ErrNotConnected = autherr.New(autherr.KindConnection, "transport: not connected to server")

	// ErrFrameTooLarge is returned when an inbound frame exceeds MaxFrameSize.
	ErrFrameTooLarge = autherr.New(autherr.KindProtocol, "transport: inbound frame exceeds maximum size")
)

// Configuration errors. These are detected before any connection attempt.
var (
	// ErrMissingHost indicates Endpoint.Host is empty.
	ErrMissingHost = autherr.New(autherr.KindInvalidRequest, "transport: host is required")

	// ErrInvalidPort indicates Endpoint.Port is outside 1-65535.
	ErrInvalidPort = autherr.New(autherr.KindInvalidRequest, "transport: port must be between 1 and 65535")

	// ErrCertKeyPairing indicates only one of cert_file/key_file is set.
	ErrCertKeyPairing = autherr.New(autherr.KindInvalidRequest, "transport: cert_file and key_file must be set together")
)
