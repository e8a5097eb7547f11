package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/jatpclient/auth"
)

type identityView struct {
	Subject   string         `json:"subject"`
	ProjectID string         `json:"project_id,omitempty"`
	TokenType string         `json:"token_type,omitempty"`
	Issuer    string         `json:"issuer,omitempty"`
	Audience  []string       `json:"audience,omitempty"`
	KeyID     string         `json:"key_id,omitempty"`
	Roles     []string       `json:"roles,omitempty"`
	Scopes    []string       `json:"scopes,omitempty"`
	Method    string         `json:"method"`
	ExpiresAt string         `json:"expires_at,omitempty"`
	Claims    map[string]any `json:"claims,omitempty"`
}

func newIdentityView(id *auth.Identity) identityView {
	return identityView{
		Subject:   id.Subject,
		ProjectID: id.ProjectID,
		TokenType: id.TokenType,
		Issuer:    id.Issuer,
		Audience:  id.Audience,
		KeyID:     id.KeyID,
		Roles:     id.Roles,
		Scopes:    id.Scopes,
		Method:    string(id.Method),
		ExpiresAt: formatTime(id.ExpiresAt),
		Claims:    id.Claims,
	}
}

func newVerifyCmd(a *app) *cobra.Command {
	var (
		creds      authFlags
		mode       string
		issuer     string
		audience   string
		algorithms []string
		leeway     time.Duration
		apiKey     bool
		scopes     []string
	)

	cmd := &cobra.Command{
		Use:   "verify [TOKEN]",
		Short: "Verify a JWT and print its identity",
		Long: `Verify a JWT and print its identity.

--mode local checks the signature against the project's active public keys,
so tokens signed by either key of a rotation pass. --mode remote asks the
service (JWTService.ValidateToken), which also consults revocation.
--mode auto tries local first and falls back to remote when local
verification is inconclusive.

With --api-key TOKEN is an API key checked by APIKeyService.ValidateAPIKey;
without TOKEN the configured api_key is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			raw := ""
			if len(args) == 1 {
				raw = args[0]
			} else if apiKey {
				raw = a.cfg.APIKey
			}
			if raw == "" {
				return fmt.Errorf("a token is required")
			}
			token, err := a.resolver.ResolveValue(ctx, raw)
			if err != nil {
				return err
			}
			opts, err := creds.callOptions(ctx, a.resolver)
			if err != nil {
				return err
			}

			s, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if apiKey {
				remote, err := auth.NewRemoteVerifier(auth.RemoteConfig{
					ProjectID:   a.cfg.ProjectID,
					CallOptions: opts,
				}, s.client)
				if err != nil {
					return err
				}
				id, err := remote.VerifyAPIKey(ctx, token, scopes...)
				if err != nil {
					return err
				}
				return a.printJSON(newIdentityView(id))
			}

			if mode != "local" && mode != "remote" && mode != "auto" {
				return fmt.Errorf("unknown --mode %q", mode)
			}

			var verifiers []auth.TokenVerifier
			if mode == "local" || mode == "auto" {
				keys, err := auth.NewCachedKeyProvider(s.client, auth.CachedKeyProviderConfig{ProjectID: a.cfg.ProjectID})
				if err != nil {
					return err
				}
				local, err := auth.NewVerifier(auth.VerifierConfig{
					Issuer:     issuer,
					Audience:   audience,
					Algorithms: algorithms,
					Leeway:     leeway,
				}, keys)
				if err != nil {
					return err
				}
				verifiers = append(verifiers, local)
			}
			if mode == "remote" || mode == "auto" {
				remote, err := auth.NewRemoteVerifier(auth.RemoteConfig{
					ProjectID:   a.cfg.ProjectID,
					CallOptions: opts,
				}, s.client)
				if err != nil {
					return err
				}
				verifiers = append(verifiers, remote)
			}

			id, err := auth.NewChain(verifiers...).Verify(ctx, token)
			if err != nil {
				return err
			}
			return a.printJSON(newIdentityView(id))
		},
	}

	f := cmd.Flags()
	f.StringVar(&mode, "mode", "auto", "local|remote|auto")
	f.StringVar(&issuer, "issuer", "", "required iss claim")
	f.StringVar(&audience, "audience", "", "required aud claim")
	f.StringSliceVar(&algorithms, "alg", nil, "accepted signing algorithms (default RS256)")
	f.DurationVar(&leeway, "leeway", 0, "clock skew tolerance")
	f.BoolVar(&apiKey, "api-key", false, "verify an API key instead of a JWT")
	f.StringSliceVar(&scopes, "scope", nil, "scopes the API key must grant")
	creds.register(cmd)
	return cmd
}
