package transport

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Defaults applied by NewConn to zero-valued Endpoint fields.
const (
	DefaultPort           = 50052
	DefaultConnectTimeout = 10 * time.Second
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxFrameSize   = 4 << 20
)

// Endpoint describes the remote auth service and connection behaviour.
type Endpoint struct {
	Host string
	Port int

	// TLS is optional; nil or disabled means plain TCP.
	TLS *TLSSettings

	// Persistent keeps the connection open across calls.
	Persistent bool

	// ConnectTimeout bounds dialing and the TLS handshake.
	// Default: 10s
	ConnectTimeout time.Duration

	// RequestTimeout bounds each frame read or write.
	// Default: 30s
	RequestTimeout time.Duration

	// MaxFrameSize bounds a single inbound frame in bytes.
	// Default: 4 MiB
	MaxFrameSize int
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// TLSEnabled reports whether the endpoint uses TLS.
func (e Endpoint) TLSEnabled() bool {
	return e.TLS != nil && e.TLS.Enabled
}

// Validate checks the endpoint, including TLS settings.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return ErrMissingHost.Clone()
	}
	if e.Port <= 0 || e.Port > 65535 {
		return ErrInvalidPort.Clone()
	}
	if e.ConnectTimeout < 0 || e.RequestTimeout < 0 {
		return autherr.New(autherr.KindInvalidRequest, "transport: timeouts must not be negative")
	}
	if e.TLS != nil {
		if err := e.TLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (e Endpoint) withDefaults() Endpoint {
	if e.Port == 0 {
		e.Port = DefaultPort
	}
	if e.ConnectTimeout == 0 {
		e.ConnectTimeout = DefaultConnectTimeout
	}
	if e.RequestTimeout == 0 {
		e.RequestTimeout = DefaultRequestTimeout
	}
	if e.MaxFrameSize <= 0 {
		e.MaxFrameSize = DefaultMaxFrameSize
	}
	return e
}

// ParseAddress splits "host[:port]" and applies DefaultPort when the port
// is omitted.
func ParseAddress(addr string) (string, int, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", 0, ErrMissingHost
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		// No port present (or a bare IPv6 literal).
		if strings.Contains(err.Error(), "missing port") {
			return strings.Trim(addr, "[]"), DefaultPort, nil
		}
		return "", 0, autherr.Wrap(autherr.KindInvalidRequest, err,
			fmt.Sprintf("transport: invalid address %q: %v", addr, err))
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, ErrInvalidPort
	}
	if host == "" {
		return "", 0, ErrMissingHost
	}
	return host, port, nil
}
