package auth

import (
	"slices"
	"strings"
	"time"
)

// AuthMethod indicates how a token was verified.
type AuthMethod string

const (
	// AuthMethodJWT is local signature verification against cached keys.
	AuthMethodJWT AuthMethod = "jwt"
	// AuthMethodRemote is verification by JWTService.ValidateToken.
	AuthMethodRemote AuthMethod = "jwt_remote"
	// AuthMethodAPIKey is verification by APIKeyService.ValidateAPIKey.
	AuthMethodAPIKey AuthMethod = "api_key"
)

// Identity is the verified principal behind a token or API key.
type Identity struct {
	// Subject is the user or service id (sub or user_id).
	Subject string

	ProjectID string

	// TokenType is the service's token kind, e.g. "access", "refresh".
	TokenType string

	Issuer   string
	Audience []string

	// TokenID is the jti claim.
	TokenID string

	// KeyID is the id of the key that verified the signature. Empty for
	// remote verification.
	KeyID string

	Roles  []string
	Scopes []string

	Method AuthMethod

	// Claims holds every claim as received.
	Claims map[string]any

	ExpiresAt time.Time
	IssuedAt  time.Time
}

// HasRole checks if the identity has a specific role.
func (id *Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

// HasScope checks if the identity was granted a scope.
func (id *Identity) HasScope(scope string) bool {
	return slices.Contains(id.Scopes, scope)
}

// IsExpired reports whether the identity has expired at now. A zero
// ExpiresAt never expires.
func (id *Identity) IsExpired(now time.Time) bool {
	if id.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(id.ExpiresAt)
}

// ClaimsMapping names the claims an Identity is built from.
type ClaimsMapping struct {
	// SubjectClaim is the claim containing the principal.
	// Default: "sub", falling back to "user_id"
	SubjectClaim string

	// RolesClaim is the claim containing roles.
	// Default: "roles"
	RolesClaim string

	// ScopesClaim is the claim containing scopes, either a list or a
	// space-separated string.
	// Default: "scope", falling back to "scopes"
	ScopesClaim string
}

func (m ClaimsMapping) withDefaults() ClaimsMapping {
	if m.SubjectClaim == "" {
		m.SubjectClaim = "sub"
	}
	if m.RolesClaim == "" {
		m.RolesClaim = "roles"
	}
	if m.ScopesClaim == "" {
		m.ScopesClaim = "scope"
	}
	return m
}

// identityFromClaims builds an identity from JWT claims or the service's
// TokenClaims object. Both claim spellings are accepted.
func identityFromClaims(claims map[string]any, m ClaimsMapping, method AuthMethod) *Identity {
	m = m.withDefaults()

	all := make(map[string]any, len(claims))
	for k, v := range claims {
		all[k] = v
	}
	for _, key := range []string{"custom_claims", "customClaims"} {
		if custom, ok := claims[key].(map[string]any); ok {
			for k, v := range custom {
				if _, exists := all[k]; !exists {
					all[k] = v
				}
			}
		}
	}

	return &Identity{
		Subject:   claimString(all, m.SubjectClaim, "sub", "user_id", "userId"),
		ProjectID: claimString(all, "project_id", "projectId"),
		TokenType: claimString(all, "token_type", "tokenType", "type"),
		Issuer:    claimString(all, "iss", "issuer"),
		Audience:  claimStrings(all, "aud", "audience"),
		TokenID:   claimString(all, "jti", "jwt_id", "jwtId"),
		Roles:     claimStrings(all, m.RolesClaim),
		Scopes:    claimStrings(all, m.ScopesClaim, "scopes"),
		Method:    method,
		Claims:    all,
		ExpiresAt: claimTime(all, "exp", "expires_at", "expiresAt"),
		IssuedAt:  claimTime(all, "iat", "issued_at", "issuedAt"),
	}
}

func claimString(claims map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := claims[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// claimStrings reads a list claim. A string value is split on spaces.
func claimStrings(claims map[string]any, keys ...string) []string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if fields := strings.Fields(v); len(fields) > 0 {
				return fields
			}
		case []string:
			if len(v) > 0 {
				return slices.Clone(v)
			}
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

func claimTime(claims map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		var secs int64
		switch v := claims[k].(type) {
		case float64:
			secs = int64(v)
		case int64:
			secs = v
		case int:
			secs = int64(v)
		}
		if secs > 0 {
			return time.Unix(secs, 0)
		}
	}
	return time.Time{}
}
