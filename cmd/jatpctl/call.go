package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newCallCmd(a *app) *cobra.Command {
	var creds authFlags

	cmd := &cobra.Command{
		Use:   "call METHOD [PAYLOAD]",
		Short: "Send one request and print the response data",
		Long: `Send one request and print the response data as JSON.

PAYLOAD is a JSON object; "-" reads it from stdin. Without PAYLOAD an
empty object is sent.`,
		Example: `  jatpctl call JWTService.HealthCheck
  jatpctl call JWTService.ValidateToken '{"token":"eyJ...","check_blacklist":true}'
  echo '{"project_id":"billing"}' | jatpctl call APIKeyService.ListAPIKeys - --jwt secretref:env:ADMIN_TOKEN`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			payload := map[string]any{}
			if len(args) == 2 {
				raw := []byte(args[1])
				if args[1] == "-" {
					var err error
					if raw, err = io.ReadAll(a.stdin); err != nil {
						return fmt.Errorf("read payload: %w", err)
					}
				}
				if err := json.Unmarshal(raw, &payload); err != nil {
					return fmt.Errorf("payload must be a JSON object: %w", err)
				}
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

			data, err := s.client.Call(ctx, args[0], payload, opts...)
			if err != nil {
				return err
			}
			return a.printJSON(data)
		},
	}
	creds.register(cmd)
	return cmd
}
