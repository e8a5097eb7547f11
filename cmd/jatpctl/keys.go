package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/client"
)

type keyView struct {
	KeyID          string `json:"key_id"`
	IsPrimary      bool   `json:"is_primary"`
	ExpiresAt      string `json:"expires_at,omitempty"`
	CacheExpiresAt string `json:"cache_expires_at,omitempty"`
	PublicKeyPEM   string `json:"public_key_pem,omitempty"`
}

func newKeyView(k cache.CachedKey, withPEM bool) keyView {
	v := keyView{
		KeyID:          k.KeyID,
		IsPrimary:      k.IsPrimary,
		ExpiresAt:      formatTime(k.ExpiresAt),
		CacheExpiresAt: formatTime(k.CacheExpiresAt),
	}
	if withPEM {
		v.PublicKeyPEM = k.PublicKeyPEM
	}
	return v
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func newKeysCmd(a *app) *cobra.Command {
	var (
		creds   authFlags
		project string
		withPEM bool
	)

	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect the service's public signing keys",
	}
	cmd.PersistentFlags().StringVar(&project, "key-project", "", "project id (defaults to --project)")
	cmd.PersistentFlags().BoolVar(&withPEM, "pem", false, "include PEM material in the output")

	withSession := func(run func(cmd *cobra.Command, s *session, opts []client.CallOption, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			opts, err := creds.callOptions(cmd.Context(), a.resolver)
			if err != nil {
				return err
			}
			s, err := a.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			return run(cmd, s, opts, args)
		}
	}

	get := &cobra.Command{
		Use:   "get [KEY_ID]",
		Short: "Print one key; without KEY_ID the primary key",
		Args:  cobra.MaximumNArgs(1),
		RunE: withSession(func(cmd *cobra.Command, s *session, opts []client.CallOption, args []string) error {
			keyID := ""
			if len(args) == 1 {
				keyID = args[0]
			}
			k, err := s.client.GetPublicKey(cmd.Context(), project, keyID, opts...)
			if err != nil {
				return err
			}
			return a.printJSON(newKeyView(k, withPEM))
		}),
	}

	active := &cobra.Command{
		Use:   "active",
		Short: "Print every key tokens may currently be signed with",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, opts []client.CallOption, _ []string) error {
			keys, err := s.client.ActivePublicKeys(cmd.Context(), project, opts...)
			if err != nil {
				return err
			}
			out := make([]keyView, 0, len(keys))
			for _, k := range keys {
				out = append(out, newKeyView(k, withPEM))
			}
			return a.printJSON(out)
		}),
	}

	invalidate := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop the project's cached keys (useful with the redis driver)",
		Args:  cobra.NoArgs,
		RunE: withSession(func(cmd *cobra.Command, s *session, _ []client.CallOption, _ []string) error {
			if err := s.client.InvalidateKeys(cmd.Context(), project); err != nil {
				return err
			}
			return a.printJSON(map[string]any{"invalidated": true})
		}),
	}

	for _, sub := range []*cobra.Command{get, active} {
		creds.register(sub)
		cmd.AddCommand(sub)
	}
	cmd.AddCommand(invalidate)
	return cmd
}
