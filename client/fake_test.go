package client

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonwraymond/jatpclient/autherr"
	"github.com/jonwraymond/jatpclient/protocol"
	"github.com/jonwraymond/jatpclient/resilience"
	"github.com/jonwraymond/jatpclient/transport"
)

// fakeTransport answers each written request through respond.
type fakeTransport struct {
	mu sync.Mutex

	connected bool
	connects  int
	closes    int
	writes    [][]byte

	// connectErrs and writeErrs are consumed one per call; a nil entry
	// means success.
	connectErrs []error
	writeErrs   []error

	// respond returns the response line for a decoded request, or an error
	// to return from ReadLine.
	respond func(req map[string]any) (string, error)
}

func (f *fakeTransport) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) WriteLine(_ context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return transport.ErrNotConnected
	}
	f.writes = append(f.writes, append([]byte(nil), data...))
	if len(f.writeErrs) > 0 {
		err := f.writeErrs[0]
		f.writeErrs = f.writeErrs[1:]
		if err != nil {
			f.connected = false
			return err
		}
	}
	return nil
}

func (f *fakeTransport) ReadLine(context.Context) ([]byte, error) {
	f.mu.Lock()
	last := f.writes[len(f.writes)-1]
	respond := f.respond
	f.mu.Unlock()

	var req map[string]any
	if err := json.Unmarshal(last, &req); err != nil {
		return nil, err
	}
	line, err := respond(req)
	if err != nil {
		return nil, err
	}
	return []byte(line), nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.closes++
	}
	f.connected = false
	return nil
}

func (f *fakeTransport) lastRequest(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		t.Fatal("no request written")
	}
	var req map[string]any
	if err := json.Unmarshal(f.writes[len(f.writes)-1], &req); err != nil {
		t.Fatalf("request is not JSON: %v", err)
	}
	return req
}

func okLine(req map[string]any, data map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"protocol_version": protocol.Version,
		"request_id":       req["request_id"],
		"success":          true,
		"data":             data,
	})
	return string(b)
}

func errLine(req map[string]any, code, message string, details map[string]any) string {
	b, _ := json.Marshal(map[string]any{
		"protocol_version": protocol.Version,
		"request_id":       req["request_id"],
		"success":          false,
		"error":            map[string]any{"code": code, "message": message, "details": details},
	})
	return string(b)
}

func echoData(req map[string]any) (string, error) {
	return okLine(req, map[string]any{"method": req["method"]}), nil
}

var errReadTimeout = autherr.New(autherr.KindConnection, "transport: read timeout")

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}
}

func newFakeClient(t *testing.T, ft *fakeTransport, mutate func(*Config), opts ...Option) *Client {
	t.Helper()
	cfg := Config{
		Endpoint:  transport.Endpoint{Host: "auth.test", Port: 50052},
		Retry:     fastRetry(),
		ProjectID: "project-1",
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg, append([]Option{WithTransport(ft)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func requireKind(t *testing.T, err error, kind autherr.Kind) *autherr.Error {
	t.Helper()
	ae, ok := err.(*autherr.Error)
	if !ok {
		t.Fatalf("error = %T(%v), want *autherr.Error", err, err)
	}
	if ae.Kind != kind {
		t.Fatalf("Kind = %v, want %v (err: %v)", ae.Kind, kind, err)
	}
	return ae
}
