package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
)

// Conn is a single newline-framed connection to the auth service.
//
// Any read or write failure, including a timeout, closes the socket so that
// a late reply can never be paired with the next request.
type Conn struct {
	endpoint  Endpoint
	tlsConfig *tls.Config

	conn   net.Conn
	reader *bufio.Reader
}

// NewConn validates the endpoint and prepares a connection. No socket is
// opened until Connect.
func NewConn(endpoint Endpoint) (*Conn, error) {
	endpoint = endpoint.withDefaults()
	if err := endpoint.Validate(); err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if endpoint.TLSEnabled() {
		cfg, err := BuildTLSConfig(*endpoint.TLS)
		if err != nil {
			return nil, err
		}
		if cfg.ServerName == "" {
			cfg.ServerName = endpoint.Host
		}
		tlsConfig = cfg
	}

	return &Conn{endpoint: endpoint, tlsConfig: tlsConfig}, nil
}

// Endpoint returns the endpoint with defaults applied.
func (c *Conn) Endpoint() Endpoint {
	return c.endpoint
}

// IsConnected reports whether a socket is currently open.
func (c *Conn) IsConnected() bool {
	return c.conn != nil
}

// Connect opens the socket if it is not already open.
// The TLS handshake, when enabled, completes before Connect returns.
func (c *Conn) Connect(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.endpoint.ConnectTimeout)
	defer cancel()

	addr := c.endpoint.Address()
	var (
		nc  net.Conn
		err error
	)
	if c.tlsConfig != nil {
		d := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: c.endpoint.ConnectTimeout},
			Config:    c.tlsConfig,
		}
		nc, err = d.DialContext(dialCtx, "tcp", addr)
	} else {
		d := &net.Dialer{Timeout: c.endpoint.ConnectTimeout}
		nc, err = d.DialContext(dialCtx, "tcp", addr)
	}
	if err != nil {
		return autherr.Wrap(autherr.KindConnection, err,
			fmt.Sprintf("transport: failed to connect to %s: %v", addr, err))
	}

	c.conn = nc
	c.reader = bufio.NewReaderSize(nc, 64<<10)
	return nil
}

// WriteLine writes data followed by a single newline.
func (c *Conn) WriteLine(ctx context.Context, data []byte) error {
	if c.conn == nil {
		return ErrNotConnected.Clone()
	}
	if err := c.conn.SetWriteDeadline(c.deadline(ctx)); err != nil {
		_ = c.Close()
		return autherr.Wrap(autherr.KindConnection, err, "transport: set write deadline: "+err.Error())
	}

	frame := make([]byte, 0, len(data)+1)
	frame = append(frame, data...)
	frame = append(frame, '\n')

	for written := 0; written < len(frame); {
		n, err := c.conn.Write(frame[written:])
		if err != nil {
			_ = c.Close()
			if isTimeout(err) {
				return autherr.Wrap(autherr.KindConnection, err, "transport: write timeout")
			}
			return autherr.Wrap(autherr.KindConnection, err, "transport: failed to write to socket: "+err.Error())
		}
		if n == 0 {
			_ = c.Close()
			return autherr.New(autherr.KindConnection, "transport: failed to write to socket: zero bytes written")
		}
		written += n
	}
	return nil
}

// ReadLine reads one frame and returns it without the trailing newline.
//
// A clean close before any byte of the frame yields ErrPeerClosed. A close
// mid-frame, a timeout or a frame longer than MaxFrameSize is an error.
func (c *Conn) ReadLine(ctx context.Context) ([]byte, error) {
	if c.conn == nil {
		return nil, ErrNotConnected.Clone()
	}
	if err := c.conn.SetReadDeadline(c.deadline(ctx)); err != nil {
		_ = c.Close()
		return nil, autherr.Wrap(autherr.KindConnection, err, "transport: set read deadline: "+err.Error())
	}

	var line []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if len(line)+len(chunk) > c.endpoint.MaxFrameSize+1 {
			_ = c.Close()
			return nil, ErrFrameTooLarge.Clone()
		}
		line = append(line, chunk...)

		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		_ = c.Close()
		switch {
		case errors.Is(err, io.EOF) && len(line) == 0:
			return nil, ErrPeerClosed.Clone()
		case errors.Is(err, io.EOF):
			return nil, autherr.Wrap(autherr.KindConnection, io.ErrUnexpectedEOF,
				"transport: connection closed mid-frame")
		case isTimeout(err):
			return nil, autherr.Wrap(autherr.KindConnection, err, "transport: read timeout")
		default:
			return nil, autherr.Wrap(autherr.KindConnection, err, "transport: failed to read from socket: "+err.Error())
		}
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

// Close closes the socket. It is safe to call more than once.
func (c *Conn) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.reader = nil
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// LocalAddr returns the local socket address, or nil when disconnected.
func (c *Conn) LocalAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote socket address, or nil when disconnected.
func (c *Conn) RemoteAddr() net.Addr {
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}

func (c *Conn) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.endpoint.RequestTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
