package observe

import (
	"errors"
	"testing"
)

func TestNewCallMeta(t *testing.T) {
	tests := []struct {
		in          string
		wantService string
		wantMethod  string
		wantSpan    string
	}{
		{"JWTService.ValidateToken", "JWTService", "ValidateToken", "jatp.call.JWTService.ValidateToken"},
		{"APIKeyService.ListAPIKeys", "APIKeyService", "ListAPIKeys", "jatp.call.APIKeyService.ListAPIKeys"},
		{"HealthCheck", "", "HealthCheck", "jatp.call.HealthCheck"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m := NewCallMeta(tt.in)
			if m.Service != tt.wantService || m.Method != tt.wantMethod {
				t.Errorf("NewCallMeta(%q) = %+v, want %s/%s", tt.in, m, tt.wantService, tt.wantMethod)
			}
			if got := m.SpanName(); got != tt.wantSpan {
				t.Errorf("SpanName() = %q, want %q", got, tt.wantSpan)
			}
			if got := m.FullMethod(); got != tt.in {
				t.Errorf("FullMethod() = %q, want %q", got, tt.in)
			}
		})
	}
}

func TestCallMeta_Validate(t *testing.T) {
	if err := (CallMeta{}).Validate(); !errors.Is(err, ErrMissingMethod) {
		t.Errorf("Validate() = %v, want ErrMissingMethod", err)
	}
	if err := NewCallMeta("JWTService.HealthCheck").Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
