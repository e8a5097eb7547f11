package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.status.String(); got != tt.want {
				t.Errorf("Status.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]Status{
		"healthy":   StatusHealthy,
		"degraded":  StatusDegraded,
		"unhealthy": StatusUnhealthy,
		"":          StatusUnhealthy,
		"HEALTHY":   StatusUnhealthy,
	}
	for in, want := range tests {
		if got := ParseStatus(in); got != want {
			t.Errorf("ParseStatus(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	testErr := errors.New("test error")

	if r := Healthy("ok"); r.Status != StatusHealthy || r.Message != "ok" || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded || r.Message != "slow" {
		t.Errorf("Degraded() = %+v", r)
	}
	if r := Unhealthy("down", testErr); r.Status != StatusUnhealthy || r.Error != testErr {
		t.Errorf("Unhealthy() = %+v", r)
	}
	if r := Healthy("ok").WithDetails(map[string]any{"key": "value"}); r.Details["key"] != "value" {
		t.Errorf("Details[key] = %v, want 'value'", r.Details["key"])
	}
}

func TestCheckerFunc(t *testing.T) {
	checker := NewCheckerFunc("test-checker", func(ctx context.Context) Result {
		select {
		case <-ctx.Done():
			return Unhealthy("cancelled", ctx.Err())
		default:
			return Healthy("from func")
		}
	})

	if checker.Name() != "test-checker" {
		t.Errorf("Name() = %v, want 'test-checker'", checker.Name())
	}
	if r := checker.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Check() Status = %v, want StatusHealthy", r.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := checker.Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Check() Status = %v, want StatusUnhealthy", r.Status)
	}
}

func TestCheckerFunc_Panic(t *testing.T) {
	r := NewCheckerFunc("p", func(context.Context) Result { panic("nil pointer") }).Check(context.Background())
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckPanicked) {
		t.Errorf("Check() = %+v, want unhealthy with ErrCheckPanicked", r)
	}
}

func TestStatus_Text(t *testing.T) {
	b, err := json.Marshal(map[string]Status{"redis": StatusDegraded})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"redis":"degraded"}` {
		t.Errorf("Marshal() = %s", b)
	}

	var got map[string]Status
	if err := json.Unmarshal([]byte(`{"a":"healthy","b":"bogus"}`), &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got["a"] != StatusHealthy || got["b"] != StatusUnhealthy {
		t.Errorf("Unmarshal() = %v", got)
	}
}
