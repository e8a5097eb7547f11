package client

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/observe"
	"github.com/jonwraymond/jatpclient/protocol"
	"github.com/jonwraymond/jatpclient/resilience"
	"github.com/jonwraymond/jatpclient/transport"
)

// Transport is the single framed connection a Client talks through.
// *transport.Conn implements it.
//
// Contract:
// - Concurrency: the Client serializes all use; implementations need not
// be safe for concurrent use.
// - Errors: failures are *autherr.Error; ReadLine returns
// transport.ErrPeerClosed on a clean close between frames.
// - Lifecycle: Close is idempotent and Connect after Close reopens.
type Transport interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	WriteLine(ctx context.Context, data []byte) error
	ReadLine(ctx context.Context) ([]byte, error)
	Close() error
}

// Ensure *transport.Conn implements Transport
var _ Transport = (*transport.Conn)(nil)

// Config holds everything a Client needs.
type Config struct {
	Endpoint transport.Endpoint
	Retry    resilience.RetryConfig

	// CircuitBreaker enables a breaker over transport failures when set.
	CircuitBreaker *resilience.CircuitBreakerConfig

	// RateLimit enables a client-side token bucket when set.
	RateLimit *resilience.RateLimiterConfig

	// Credentials are sent with every call unless a CallOption overrides
	// them.
	Credentials protocol.Credentials

	// ProjectID is the default project for public-key lookups.
	ProjectID string

	// KeyCache is the policy of the default in-memory key store.
	// Default: cache.DefaultPolicy()
	KeyCache cache.Policy
}

// Client executes JATP calls over one connection.
//
// Calls are serialized: one request is written and its response read
// before the next request starts. A Client is safe for concurrent use.
type Client struct {
	mu         sync.Mutex
	conn       Transport
	persistent bool
	address    string

	creds     protocol.Credentials
	projectID string

	executor *resilience.Executor
	mw       *observe.Middleware
	keys     cache.KeyStore
	fetches  singleflight.Group
}

// New validates cfg and creates a client. No connection is opened until
// the first call. TLS settings are checked here, before any dial.
func New(cfg Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := cfg.Retry.Validate(); err != nil {
		return nil, err
	}

	endpoint := cfg.Endpoint
	conn := o.transport
	if conn == nil {
		tc, err := transport.NewConn(cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		conn = tc
		endpoint = tc.Endpoint()
	} else if endpoint.TLS != nil {
		if err := endpoint.TLS.Validate(); err != nil {
			return nil, err
		}
	}

	keys := o.keys
	if keys == nil {
		policy := cfg.KeyCache
		if policy == (cache.Policy{}) {
			policy = cache.DefaultPolicy()
		}
		if err := policy.Validate(); err != nil {
			return nil, autherr.Wrap(autherr.KindInvalidRequest, err, err.Error())
		}
		keys = cache.NewMemoryKeyCache(policy)
	}

	mw := o.middleware
	if mw == nil {
		mw = observe.NopMiddleware()
	}

	execOpts := []resilience.ExecutorOption{
		resilience.WithRetry(resilience.NewRetry(cfg.Retry)),
	}
	if cfg.CircuitBreaker != nil {
		execOpts = append(execOpts, resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(*cfg.CircuitBreaker)))
	}
	if cfg.RateLimit != nil {
		execOpts = append(execOpts, resilience.WithRateLimiter(resilience.NewRateLimiter(*cfg.RateLimit)))
	}

	return &Client{
		conn:       conn,
		persistent: endpoint.Persistent,
		address:    endpoint.Address(),
		creds:      cfg.Credentials,
		projectID:  cfg.ProjectID,
		executor:   resilience.NewExecutor(execOpts...),
		mw:         mw,
		keys:       keys,
	}, nil
}

// KeyStore returns the public-key cache used by GetPublicKey.
func (c *Client) KeyStore() cache.KeyStore {
	return c.keys
}

// Executor returns the resilience executor wrapping every call.
func (c *Client) Executor() *resilience.Executor {
	return c.executor
}

// Call sends method with payload and returns the response data.
//
// The round trip runs inside the retry policy. Every error returned is an
// *autherr.Error. A nil payload is sent as an empty object and a response
// without data yields an empty map.
func (c *Client) Call(ctx context.Context, method string, payload map[string]any, opts ...CallOption) (map[string]any, error) {
	co := callOptions{creds: c.creds}
	for _, opt := range opts {
		opt(&co)
	}

	if _, _, err := protocol.SplitMethod(method); err != nil {
		return nil, autherr.Translate(err)
	}

	meta := observe.NewCallMeta(method)
	meta.Endpoint = c.address

	call := c.mw.Wrap(func(ctx context.Context, meta observe.CallMeta, payload map[string]any) (map[string]any, error) {
		ctx = resilience.WithRetryNotify(ctx, c.mw.RetryHook(ctx, meta))

		var data map[string]any
		err := c.executor.Execute(ctx, func(ctx context.Context) error {
			d, err := c.roundTrip(ctx, method, payload, co.creds)
			if err != nil {
				return err
			}
			data = d
			return nil
		})
		if err != nil {
			return nil, autherr.Translate(err)
		}
		return data, nil
	})

	return call(ctx, meta, payload)
}

// roundTrip performs one attempt: connect if needed, write one frame and
// read one frame back.
func (c *Client) roundTrip(ctx context.Context, method string, payload map[string]any, creds protocol.Credentials) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.persistent {
		defer c.conn.Close()
	}

	if !c.conn.IsConnected() {
		if err := c.conn.Connect(ctx); err != nil {
			return nil, err
		}
	}

	req, err := protocol.NewRequest(method, payload, creds)
	if err != nil {
		return nil, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("jatp.request_id", req.RequestID))

	frame, err := req.Encode()
	if err != nil {
		return nil, err
	}

	if err := c.conn.WriteLine(ctx, frame); err != nil {
		if !c.persistent {
			return nil, err
		}
		// A persistent socket may have gone stale between calls: reconnect
		// once and resend the same frame.
		c.conn.Close()
		if err := c.conn.Connect(ctx); err != nil {
			return nil, err
		}
		if err := c.conn.WriteLine(ctx, frame); err != nil {
			return nil, err
		}
	}

	line, err := c.conn.ReadLine(ctx)
	if err != nil {
		c.conn.Close()
		if errors.Is(err, transport.ErrPeerClosed) {
			return nil, ErrServerClosed.Clone()
		}
		return nil, err
	}

	resp, err := protocol.ParseResponse(line)
	if err != nil {
		return nil, err
	}
	if err := protocol.CheckVersion(resp.ProtocolVersion); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}

	if resp.Data == nil {
		return map[string]any{}, nil
	}
	return resp.Data, nil
}

// IsConnected reports whether the underlying socket is open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.IsConnected()
}

// Close tears down the connection, persistent or not. A later call
// reconnects.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Close(); err != nil {
		return autherr.Translate(err)
	}
	return nil
}
