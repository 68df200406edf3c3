// Command ldap-oidc-proxy is an ldap server that verifies simple binds with
// an OIDC provider's resource owner password grant.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/userhive/ldapoidc/internal/config"
	"github.com/userhive/ldapoidc/internal/plog"
	"github.com/userhive/ldapoidc/internal/proxy"
	"github.com/userhive/ldapoidc/internal/tokenclient"
	"github.com/userhive/ldapoidc/ldap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newCommand(realDeps()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type deps struct {
	lookup config.LookupFunc
	// logPaths are the zap output paths, stderr when empty.
	logPaths []string
}

func realDeps() deps {
	return deps{
		lookup: os.LookupEnv,
	}
}

type cliFlags struct {
	listen    string
	logLevel  string
	logFormat string
}

func newCommand(deps deps) *cobra.Command {
	cmd := &cobra.Command{
		Args:          cobra.NoArgs,
		Use:           "ldap-oidc-proxy",
		Short:         "Serve ldap simple binds backed by an OIDC password grant",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `Serve ldap simple binds backed by an OIDC password grant.

Configuration is read from the environment: TOKEN_URL, CLIENT_ID and
CLIENT_SECRET are required. Every variable may also be given with the
` + config.EnvPrefix + ` prefix.`,
	}
	flags := &cliFlags{}
	f := cmd.Flags()
	f.StringVar(&flags.listen, "listen", "", "Listen address (overrides LISTEN_ADDR)")
	f.StringVar(&flags.logLevel, "log-level", "", "Log level: info, debug or trace (overrides LOG_LEVEL)")
	f.StringVar(&flags.logFormat, "log-format", "", "Log format: json or console (overrides LOG_FORMAT)")
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd, deps, flags)
		if err != nil {
			return err
		}
		return run(cmd.Context(), deps, cfg)
	}
	return cmd
}

// loadConfig loads the environment configuration and applies the flags that
// were set.
func loadConfig(cmd *cobra.Command, deps deps, flags *cliFlags) (*config.Config, error) {
	cfg, err := config.Load(deps.lookup)
	if err != nil {
		return nil, err
	}
	f := cmd.Flags()
	if f.Changed("listen") {
		if flags.listen == "" {
			return nil, config.Error{"--listen: must not be empty"}
		}
		cfg.ListenAddr = flags.listen
	}
	if f.Changed("log-level") {
		level := plog.LogLevel(flags.logLevel)
		if err := level.Validate(); err != nil {
			return nil, config.Error{"--log-level: " + err.Error()}
		}
		cfg.LogLevel = level
	}
	if f.Changed("log-format") {
		format := plog.Format(flags.logFormat)
		if err := format.Validate(); err != nil {
			return nil, config.Error{"--log-format: " + err.Error()}
		}
		cfg.LogFormat = format
	}
	return cfg, nil
}

// run serves until ctx is canceled, then shuts the server down.
func run(ctx context.Context, deps deps, cfg *config.Config) error {
	logger, flush, err := plog.New(plog.Options{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		OutputPaths: deps.logPaths,
	})
	if err != nil {
		return err
	}
	defer flush()
	logger.Info("starting", "config", cfg)
	srv := newServer(cfg, logger)
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		if cfg.TLS() {
			err = srv.ListenAndServeTLS(ctx, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = srv.ListenAndServe(ctx)
		}
		if errors.Is(err, ldap.ErrServerShutdown) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	if err := eg.Wait(); err != nil {
		logger.Error(err, "server failed")
		return err
	}
	logger.Info("stopped")
	return nil
}

func newServer(cfg *config.Config, logger logr.Logger) *ldap.Server {
	auth := tokenclient.New(tokenclient.Options{
		TokenURL:     cfg.TokenURL,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret.Value(),
		Scope:        cfg.TokenScope,
		Timeout:      cfg.TokenTimeout,
		Logger:       logger.WithName("tokenclient"),
	})
	h := proxy.NewHandler(auth, proxy.Options{
		UsernameAttribute:    cfg.UsernameAttribute,
		LegacyUnbindResponse: cfg.LegacyUnbindResponse,
	})
	return &ldap.Server{
		Addr:           cfg.ListenAddr,
		Handler:        h.OpHandler(),
		Logger:         logger.WithName("ldap"),
		MaxMessageSize: cfg.MaxMessageSize,
		IdleTimeout:    cfg.IdleTimeout,
	}
}
