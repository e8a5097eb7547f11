package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonwraymond/jatpclient/cache"
	"github.com/jonwraymond/jatpclient/client"
	"github.com/jonwraymond/jatpclient/config"
	"github.com/jonwraymond/jatpclient/observe"
	"github.com/jonwraymond/jatpclient/secret"
)

var errUnhealthy = errors.New("jatpctl: auth service is unhealthy")

// app carries state shared by every subcommand.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	v          *viper.Viper
	configPath string

	cfg      *config.Config
	obs      observe.Observer
	resolver *secret.Resolver
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr, v: viper.New()}

	cmd := &cobra.Command{
		Use:   "jatpctl",
		Short: "Command-line client for the JATP auth service",
		Long: `jatpctl sends line-delimited JSON requests to the auth service.

Settings come from --config, JATP_ environment variables and flags, in
increasing precedence. Credentials may be written as ${VAR},
secretref:env:NAME or secretref:file:/path.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  func(cmd *cobra.Command, _ []string) error { return a.load(cmd.Context()) },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error { return a.shutdown(cmd.Context()) },
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	f := cmd.PersistentFlags()
	f.StringVarP(&a.configPath, "config", "c", "", "config file (YAML)")
	f.String("address", "", "auth service host[:port] (default localhost:50052)")
	f.String("project", "", "default project id")
	f.Bool("persistent", true, "reuse one connection across calls")
	f.Bool("tls", false, "wrap the connection in TLS")
	f.String("log-level", "", "debug|info|warn|error")

	for key, flag := range map[string]string{
		"address":           "address",
		"project_id":        "project",
		"tcp.persistent":    "persistent",
		"tcp.tls.enabled":   "tls",
		"observe.log_level": "log-level",
	} {
		_ = a.v.BindPFlag(key, f.Lookup(flag))
	}

	cmd.AddCommand(
		newCallCmd(a),
		newHealthCmd(a),
		newKeysCmd(a),
		newVerifyCmd(a),
	)
	return cmd
}

func (a *app) load(ctx context.Context) error {
	resolver, err := secret.NewDefaultResolver(nil)
	if err != nil {
		return err
	}
	cfg, err := config.Load(ctx, a.configPath, config.Options{Viper: a.v, Resolver: resolver})
	if err != nil {
		return err
	}
	ocfg := cfg.ObserveConfig()
	ocfg.Logging.Writer = a.stderr
	ocfg.Global = true
	obs, err := observe.NewObserver(ctx, ocfg)
	if err != nil {
		return fmt.Errorf("jatpctl: telemetry: %w", err)
	}
	a.cfg, a.obs, a.resolver = cfg, obs, resolver
	return nil
}

func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	if a.resolver != nil {
		errs = append(errs, a.resolver.Close())
	}
	return errors.Join(errs...)
}

// session is one connected client plus the resources it owns.
type session struct {
	client *client.Client
	store  cache.KeyStore
	rdb    redis.UniversalClient
}

func (s *session) Close() error {
	err := s.client.Close()
	if s.rdb != nil {
		err = errors.Join(err, s.rdb.Close())
	}
	return err
}

func (a *app) connect(ctx context.Context) (_ *session, err error) {
	logger := a.obs.Logger()
	store, rdb, err := a.cfg.NewKeyStore(cache.WithErrorHandler(func(err error) {
		logger.Warn(ctx, "key cache backend error", observe.Field{Key: "error", Value: err.Error()})
	}))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && rdb != nil {
			_ = rdb.Close()
		}
	}()

	cc, err := a.cfg.ClientConfig()
	if err != nil {
		return nil, err
	}
	mw, err := observe.MiddlewareFromObserver(a.obs)
	if err != nil {
		return nil, err
	}
	c, err := client.New(cc, client.WithKeyStore(store), client.WithMiddleware(mw))
	if err != nil {
		return nil, err
	}
	return &session{client: c, store: store, rdb: rdb}, nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// authFlags selects per-call credentials.
type authFlags struct {
	jwt           string
	serviceName   string
	serviceSecret string
	none          bool
}

func (f *authFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.jwt, "jwt", "", "send this JWT instead of the configured credentials")
	fs.StringVar(&f.serviceName, "service-name", "", "service name for service auth")
	fs.StringVar(&f.serviceSecret, "service-secret", "", "service secret for service auth")
	fs.BoolVar(&f.none, "no-auth", false, "send no credentials")
	cmd.MarkFlagsMutuallyExclusive("jwt", "service-name", "no-auth")
	cmd.MarkFlagsRequiredTogether("service-name", "service-secret")
}

func (f *authFlags) callOptions(ctx context.Context, r *secret.Resolver) ([]client.CallOption, error) {
	switch {
	case f.none:
		return []client.CallOption{client.WithoutAuth()}, nil
	case f.jwt != "":
		token, err := r.ResolveValue(ctx, f.jwt)
		if err != nil {
			return nil, fmt.Errorf("resolve --jwt: %w", err)
		}
		return []client.CallOption{client.WithJWT(token)}, nil
	case f.serviceName != "":
		secretValue, err := r.ResolveValue(ctx, f.serviceSecret)
		if err != nil {
			return nil, fmt.Errorf("resolve --service-secret: %w", err)
		}
		return []client.CallOption{client.WithServiceAuth(f.serviceName, secretValue)}, nil
	}
	return nil, nil
}
