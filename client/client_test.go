package client

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/protocol"
	"github.com/jonwraymond/jatpclient/resilience"
	"github.com/jonwraymond/jatpclient/transport"
)

func TestCall_Success(t *testing.T) {
	ft := &fakeTransport{respond: echoData}
	c := newFakeClient(t, ft, nil)

	data, err := c.Call(context.Background(), MethodValidateToken, map[string]any{"token": "t"})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if data["method"] != MethodValidateToken {
		t.Errorf("data = %v, want method echoed", data)
	}

	req := ft.lastRequest(t)
	if req["protocol_version"] != protocol.Version {
		t.Errorf("protocol_version = %v, want %s", req["protocol_version"], protocol.Version)
	}
	if req["payload"].(map[string]any)["token"] != "t" {
		t.Errorf("payload = %v", req["payload"])
	}
}

func TestCall_EmptyDataIsEmptyMap(t *testing.T) {
	ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
		return okLine(req, nil), nil
	}}
	c := newFakeClient(t, ft, nil)

	data, err := c.Call(context.Background(), MethodRevokeToken, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if data == nil || len(data) != 0 {
		t.Errorf("data = %#v, want empty map", data)
	}
	if p, ok := ft.lastRequest(t)["payload"].(map[string]any); !ok || len(p) != 0 {
		t.Errorf("payload = %#v, want {}", ft.lastRequest(t)["payload"])
	}
}

func TestCall_RetriesTransientFailures(t *testing.T) {
	var reads int32
	ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
		if atomic.AddInt32(&reads, 1) <= 2 {
			return "", errReadTimeout
		}
		return okLine(req, map[string]any{"ok": true}), nil
	}}
	c := newFakeClient(t, ft, nil)

	data, err := c.Call(context.Background(), MethodHealthCheck, nil)
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if data["ok"] != true {
		t.Errorf("data = %v", data)
	}
	if got := atomic.LoadInt32(&reads); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}

	// Each attempt is a fresh request with its own id.
	ids := map[string]bool{}
	for _, w := range ft.writes {
		ids[strings.SplitN(strings.SplitN(string(w), `"request_id":"`, 2)[1], `"`, 2)[0]] = true
	}
	if len(ids) != 3 {
		t.Errorf("distinct request ids = %d, want 3", len(ids))
	}
}

func TestCall_ExhaustedRetriesReturnLastError(t *testing.T) {
	ft := &fakeTransport{respond: func(map[string]any) (string, error) {
		return "", errReadTimeout
	}}
	c := newFakeClient(t, ft, nil)

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	ae := requireKind(t, err, autherr.KindConnection)
	if !strings.Contains(ae.Message, "read timeout") {
		t.Errorf("Message = %q, want read timeout", ae.Message)
	}
	if len(ft.writes) != 3 {
		t.Errorf("writes = %d, want 3", len(ft.writes))
	}
}

func TestCall_ServerErrorsTranslated(t *testing.T) {
	tests := []struct {
		code      string
		message   string
		wantKind  autherr.Kind
		wantTries int
	}{
		{autherr.CodeTokenExpired, "token has expired", autherr.KindTokenExpired, 1},
		{autherr.CodeAuthFailed, "bad credentials", autherr.KindAuthentication, 1},
		{"ERROR_INTERNAL", "boom", autherr.KindInternal, 3},
		{"ERROR_RATE_LIMIT_EXCEEDED", "slow down", autherr.KindRateLimit, 3},
		{"SOMETHING_NEW", "token is revoked", autherr.KindTokenRevoked, 1},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
				return errLine(req, tt.code, tt.message, map[string]any{"limit": 10, "remaining": 0, "window": 60}), nil
			}}
			c := newFakeClient(t, ft, nil)

			_, err := c.Call(context.Background(), MethodValidateToken, nil)
			ae := requireKind(t, err, tt.wantKind)
			if ae.Code != tt.code || ae.Message != tt.message {
				t.Errorf("error = %q/%q, want %q/%q", ae.Code, ae.Message, tt.code, tt.message)
			}
			if len(ft.writes) != tt.wantTries {
				t.Errorf("attempts = %d, want %d", len(ft.writes), tt.wantTries)
			}
		})
	}
}

func TestCall_RateLimitDetails(t *testing.T) {
	ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
		return errLine(req, "RATE_LIMIT_EXCEEDED", "slow down", map[string]any{"limit": 100, "remaining": 0, "window": 60}), nil
	}}
	c := newFakeClient(t, ft, func(cfg *Config) { cfg.Retry.MaxAttempts = 1 })

	_, err := c.Call(context.Background(), MethodIssueToken, nil)
	ae := requireKind(t, err, autherr.KindRateLimit)
	if limit, ok := ae.Limit(); !ok || limit != 100 {
		t.Errorf("Limit() = %d, %v, want 100", limit, ok)
	}
	if window, ok := ae.Window(); !ok || window != 60 {
		t.Errorf("Window() = %d, %v, want 60", window, ok)
	}
}

func TestCall_VersionMismatch(t *testing.T) {
	ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
		return `{"protocol_version":"2.0","request_id":"x","success":true,"data":{}}`, nil
	}}
	c := newFakeClient(t, ft, nil)

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	requireKind(t, err, autherr.KindUnsupportedProtocolVersion)
	if len(ft.writes) != 1 {
		t.Errorf("attempts = %d, want 1", len(ft.writes))
	}
}

func TestCall_MalformedResponse(t *testing.T) {
	tests := map[string]string{
		"not json":        "<html>",
		"missing version": `{"request_id":"x","success":true}`,
		"missing success": `{"protocol_version":"1.0","request_id":"x"}`,
	}
	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			ft := &fakeTransport{respond: func(map[string]any) (string, error) { return line, nil }}
			c := newFakeClient(t, ft, nil)

			_, err := c.Call(context.Background(), MethodHealthCheck, nil)
			requireKind(t, err, autherr.KindProtocol)
			if len(ft.writes) != 1 {
				t.Errorf("attempts = %d, want 1", len(ft.writes))
			}
		})
	}
}

func TestCall_PeerClosed(t *testing.T) {
	ft := &fakeTransport{respond: func(map[string]any) (string, error) {
		return "", transport.ErrPeerClosed
	}}
	c := newFakeClient(t, ft, func(cfg *Config) { cfg.Retry.MaxAttempts = 1 })

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	ae := requireKind(t, err, autherr.KindConnection)
	if ae.Message != "connection closed by server" {
		t.Errorf("Message = %q, want connection closed by server", ae.Message)
	}
	if !autherr.IsRetryable(err) {
		t.Error("peer close should be retryable")
	}
	if !errors.Is(err, ErrServerClosed) {
		t.Errorf("errors.Is(err, ErrServerClosed) = false, want true")
	}
	ae.Details = map[string]any{"edited": true}
	if ErrServerClosed.Details != nil {
		t.Errorf("ErrServerClosed.Details = %v, want nil after caller edit", ErrServerClosed.Details)
	}
}

func TestCall_InvalidMethod(t *testing.T) {
	ft := &fakeTransport{respond: echoData}
	c := newFakeClient(t, ft, nil)

	for _, m := range []string{"", "HealthCheck", "JWTService.", ".HealthCheck", "A.B.C"} {
		_, err := c.Call(context.Background(), m, nil)
		requireKind(t, err, autherr.KindInvalidRequest)
	}
	if ft.connects != 0 {
		t.Errorf("connects = %d, want 0", ft.connects)
	}
}

func TestCall_PersistentReconnectsOnceOnWriteFailure(t *testing.T) {
	ft := &fakeTransport{
		respond:   echoData,
		writeErrs: []error{autherr.New(autherr.KindConnection, "broken pipe")},
	}
	c := newFakeClient(t, ft, func(cfg *Config) {
		cfg.Endpoint.Persistent = true
		cfg.Retry.MaxAttempts = 1
	})

	if _, err := c.Call(context.Background(), MethodHealthCheck, nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if ft.connects != 2 {
		t.Errorf("connects = %d, want 2", ft.connects)
	}
	if len(ft.writes) != 2 || string(ft.writes[0]) != string(ft.writes[1]) {
		t.Errorf("writes = %q, want the same frame twice", ft.writes)
	}
	if !c.IsConnected() {
		t.Error("persistent connection should stay open")
	}
}

func TestCall_PersistentReconnectCountsAsOneAttempt(t *testing.T) {
	broken := autherr.New(autherr.KindConnection, "broken pipe")
	ft := &fakeTransport{
		respond:   echoData,
		writeErrs: []error{broken, broken, broken, nil},
	}
	c := newFakeClient(t, ft, func(cfg *Config) { cfg.Endpoint.Persistent = true })

	// Attempt 1: write fails, reconnect, rewrite fails. Attempt 2: write
	// fails, reconnect, rewrite succeeds.
	if _, err := c.Call(context.Background(), MethodHealthCheck, nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if len(ft.writes) != 4 {
		t.Errorf("writes = %d, want 4", len(ft.writes))
	}
}

func TestCall_NonPersistentDoesNotReconnect(t *testing.T) {
	ft := &fakeTransport{
		respond:   echoData,
		writeErrs: []error{autherr.New(autherr.KindConnection, "broken pipe")},
	}
	c := newFakeClient(t, ft, func(cfg *Config) { cfg.Retry.MaxAttempts = 1 })

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	requireKind(t, err, autherr.KindConnection)
	if ft.connects != 1 || len(ft.writes) != 1 {
		t.Errorf("connects = %d, writes = %d, want 1 and 1", ft.connects, len(ft.writes))
	}
}

func TestCall_NonPersistentClosesOnEveryPath(t *testing.T) {
	var fail atomic.Bool
	ft := &fakeTransport{respond: func(req map[string]any) (string, error) {
		if fail.Load() {
			return errLine(req, "ERROR_INVALID_TOKEN", "invalid token", nil), nil
		}
		return okLine(req, nil), nil
	}}
	c := newFakeClient(t, ft, nil)

	if _, err := c.Call(context.Background(), MethodHealthCheck, nil); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("connection left open after success")
	}

	fail.Store(true)
	if _, err := c.Call(context.Background(), MethodValidateToken, nil); err == nil {
		t.Fatal("expected error")
	}
	if c.IsConnected() {
		t.Error("connection left open after failure")
	}
	if ft.closes != 2 || ft.connects != 2 {
		t.Errorf("connects = %d, closes = %d, want 2 and 2", ft.connects, ft.closes)
	}
}

func TestCall_PersistentReusesConnection(t *testing.T) {
	ft := &fakeTransport{respond: echoData}
	c := newFakeClient(t, ft, func(cfg *Config) { cfg.Endpoint.Persistent = true })

	for i := 0; i < 3; i++ {
		if _, err := c.Call(context.Background(), MethodHealthCheck, nil); err != nil {
			t.Fatalf("Call() error = %v", err)
		}
	}
	if ft.connects != 1 {
		t.Errorf("connects = %d, want 1", ft.connects)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("Close() left the connection open")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestCall_ConnectFailure(t *testing.T) {
	refused := autherr.New(autherr.KindConnection, "transport: failed to connect to auth.test:50052: connection refused")
	ft := &fakeTransport{
		respond:     echoData,
		connectErrs: []error{refused, refused, refused},
	}
	c := newFakeClient(t, ft, nil)

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	requireKind(t, err, autherr.KindConnection)
	if ft.connects != 3 {
		t.Errorf("connects = %d, want 3", ft.connects)
	}
}

func TestCall_Credentials(t *testing.T) {
	ft := &fakeTransport{respond: echoData}
	c := newFakeClient(t, ft, func(cfg *Config) {
		cfg.Credentials = protocol.ServiceAuth("billing", "s3cret")
	})

	tests := []struct {
		name  string
		opts  []CallOption
		check func(t *testing.T, req map[string]any)
	}{
		{"defaults", nil, func(t *testing.T, req map[string]any) {
			if req["service_name"] != "billing" || req["service_secret"] != "s3cret" {
				t.Errorf("service auth missing: %v", req)
			}
			if _, ok := req["jwt_token"]; ok {
				t.Error("unexpected jwt_token")
			}
		}},
		{"jwt override", []CallOption{WithJWT("tok")}, func(t *testing.T, req map[string]any) {
			if req["jwt_token"] != "tok" {
				t.Errorf("jwt_token = %v, want tok", req["jwt_token"])
			}
			if _, ok := req["service_name"]; ok {
				t.Error("jwt and service auth both sent")
			}
		}},
		{"other service", []CallOption{WithServiceAuth("search", "x")}, func(t *testing.T, req map[string]any) {
			if req["service_name"] != "search" {
				t.Errorf("service_name = %v, want search", req["service_name"])
			}
		}},
		{"no auth", []CallOption{WithoutAuth()}, func(t *testing.T, req map[string]any) {
			for _, k := range []string{"jwt_token", "service_name", "service_secret"} {
				if _, ok := req[k]; ok {
					t.Errorf("unexpected %s", k)
				}
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Call(context.Background(), MethodIssueServiceToken, nil, tt.opts...); err != nil {
				t.Fatalf("Call() error = %v", err)
			}
			tt.check(t, ft.lastRequest(t))
		})
	}
}

func TestCall_CircuitBreakerOpens(t *testing.T) {
	ft := &fakeTransport{respond: func(map[string]any) (string, error) {
		return "", errReadTimeout
	}}
	c := newFakeClient(t, ft, func(cfg *Config) {
		cfg.Retry.MaxAttempts = 1
		cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{MaxFailures: 2}
	})

	for i := 0; i < 2; i++ {
		_, _ = c.Call(context.Background(), MethodHealthCheck, nil)
	}
	writes := len(ft.writes)

	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("error = %v, want ErrCircuitOpen", err)
	}
	if len(ft.writes) != writes {
		t.Error("open circuit still reached the transport")
	}
	if c.Executor().CircuitBreaker().State() != resilience.StateOpen {
		t.Errorf("State() = %v, want open", c.Executor().CircuitBreaker().State())
	}
}

func TestCall_LocalRateLimit(t *testing.T) {
	ft := &fakeTransport{respond: echoData}
	c := newFakeClient(t, ft, func(cfg *Config) {
		cfg.RateLimit = &resilience.RateLimiterConfig{Rate: 0.001, Burst: 1}
	})

	if _, err := c.Call(context.Background(), MethodHealthCheck, nil); err != nil {
		t.Fatalf("first Call() error = %v", err)
	}
	_, err := c.Call(context.Background(), MethodHealthCheck, nil)
	requireKind(t, err, autherr.KindRateLimit)
	if len(ft.writes) != 1 {
		t.Errorf("writes = %d, want 1", len(ft.writes))
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		kind   autherr.Kind
	}{
		{"negative attempts", func(c *Config) { c.Retry.MaxAttempts = -1 }, autherr.KindInvalidRequest},
		{"cert without key", func(c *Config) {
			c.Endpoint.TLS = &transport.TLSSettings{Enabled: true, CertFile: "/tmp/client.crt"}
		}, autherr.KindInvalidRequest},
		{"negative cache size", func(c *Config) { c.KeyCache.MaxSize = -1 }, autherr.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Endpoint: transport.Endpoint{Host: "auth.test", Port: 50052}}
			tt.mutate(&cfg)
			ft := &fakeTransport{respond: echoData}
			_, err := New(cfg, WithTransport(ft))
			requireKind(t, err, tt.kind)
			if ft.connects != 0 {
				t.Error("validation failure must not connect")
			}
		})
	}
}

func TestNew_BuildsTCPTransport(t *testing.T) {
	c, err := New(Config{Endpoint: transport.Endpoint{Host: "localhost"}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.conn.(*transport.Conn); !ok {
		t.Errorf("conn = %T, want *transport.Conn", c.conn)
	}
	if c.address != "localhost:50052" {
		t.Errorf("address = %q, want localhost:50052", c.address)
	}
	if c.IsConnected() {
		t.Error("New() must not connect")
	}

	_, err = New(Config{Endpoint: transport.Endpoint{Host: "localhost", TLS: &transport.TLSSettings{
		Enabled: true, CertFile: "/nonexistent/client.crt", KeyFile: "/nonexistent/client.key",
	}}})
	requireKind(t, err, autherr.KindConnection)
}
