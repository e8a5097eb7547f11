package auth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks a token and returns the identity behind it.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines.
// - Errors: every failure is an *autherr.Error; token problems use the
// token kinds, unreachable services the connection kind.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// VerifierConfig configures local JWT verification.
type VerifierConfig struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// Algorithms lists the accepted signing algorithms.
	// Default: RS256
	Algorithms []string

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration

	// RequireExpiration rejects tokens without an exp claim.
	RequireExpiration bool

	Claims ClaimsMapping

	// Now is the time source. Default: time.Now
	Now func() time.Time
}

// Verifier verifies tokens locally against keys from a KeyProvider.
//
// A token whose kid is unknown, or whose signature matches none of the
// candidate keys, triggers one provider refresh and a second attempt, so
// a key rotated in after the keys were cached is picked up.
type Verifier struct {
	config VerifierConfig
	keys   KeyProvider
	parser *jwt.Parser
}

// NewVerifier creates a local verifier.
func NewVerifier(config VerifierConfig, keys KeyProvider) (*Verifier, error) {
	if keys == nil {
		return nil, ErrNilKeyProvider.Clone()
	}
	if len(config.Algorithms) == 0 {
		config.Algorithms = []string{jwt.SigningMethodRS256.Alg()}
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(config.Algorithms),
		jwt.WithLeeway(config.Leeway),
		jwt.WithTimeFunc(config.Now),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	if config.RequireExpiration {
		opts = append(opts, jwt.WithExpirationRequired())
	}

	return &Verifier{
		config: config,
		keys:   keys,
		parser: jwt.NewParser(opts...),
	}, nil
}

// Verify checks the token's signature and claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrMissingToken.Clone()
	}

	unverified, _, err := v.parser.ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, ErrTokenMalformed.Clone()
	}
	if !slices.Contains(v.config.Algorithms, unverified.Method.Alg()) {
		return nil, ErrUnsupportedAlgorithm.Clone()
	}
	kid, _ := unverified.Header["kid"].(string)

	id, err := v.verify(ctx, token, kid)
	if errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrKeyNotFound) {
		if rerr := v.keys.Refresh(ctx); rerr == nil {
			id, err = v.verify(ctx, token, kid)
		}
	}
	return id, err
}

func (v *Verifier) verify(ctx context.Context, token, kid string) (*Identity, error) {
	keys, err := v.keys.Keys(ctx, kid)
	if err != nil {
		return nil, err
	}

	// A kid match is tried first; the rest of the rotation set follows.
	slices.SortStableFunc(keys, func(a, b VerificationKey) int {
		switch {
		case a.KeyID == kid && b.KeyID != kid:
			return -1
		case b.KeyID == kid && a.KeyID != kid:
			return 1
		}
		return 0
	})

	for _, k := range keys {
		claims := jwt.MapClaims{}
		_, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
			return k.Key, nil
		})
		if err == nil {
			id := identityFromClaims(claims, v.config.Claims, AuthMethodJWT)
			id.KeyID = k.KeyID
			return id, nil
		}
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			continue
		}
		return nil, mapJWTError(err)
	}
	return nil, ErrInvalidSignature.Clone()
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired.Clone()
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSignature.Clone()
	case errors.Is(err, jwt.ErrTokenInvalidClaims),
		errors.Is(err, jwt.ErrTokenRequiredClaimMissing),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenNotValidYet),
		errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrInvalidClaims.Clone()
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrKeyNotFound.Clone()
	default:
		return ErrTokenMalformed.Clone()
	}
}

// TokenFromHeader extracts the token from a "Bearer <token>" header value.
// The scheme is matched case-insensitively.
func TokenFromHeader(header string) (string, bool) {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// Ensure Verifier implements TokenVerifier
var _ TokenVerifier = (*Verifier)(nil)
