package client

import (
	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/observe"
	"github.com/jonwraymond/jatpclient/protocol"
)

// Option configures a Client.
type Option func(*options)

type options struct {
	transport  Transport
	keys       cache.KeyStore
	middleware *observe.Middleware
}

// WithTransport replaces the TCP connection built from Config.Endpoint.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithKeyStore sets the public-key cache. By default an in-memory cache
// with Config.KeyCache policy is used.
func WithKeyStore(ks cache.KeyStore) Option {
	return func(o *options) { o.keys = ks }
}

// WithMiddleware instruments every call.
func WithMiddleware(mw *observe.Middleware) Option {
	return func(o *options) { o.middleware = mw }
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

type callOptions struct {
	creds protocol.Credentials
}

// WithJWT authenticates the call with a bearer token.
func WithJWT(token string) CallOption {
	return func(o *callOptions) { o.creds = protocol.BearerToken(token) }
}

// WithServiceAuth authenticates the call as a service.
func WithServiceAuth(name, secret string) CallOption {
	return func(o *callOptions) { o.creds = protocol.ServiceAuth(name, secret) }
}

// WithoutAuth sends the call without credentials, overriding the
// configured defaults.
func WithoutAuth() CallOption {
	return func(o *callOptions) { o.creds = protocol.Credentials{} }
}
