package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tradeindia-proxy/internal/config"
	"tradeindia-proxy/internal/httpapi"
	"tradeindia-proxy/internal/metrics"
	"tradeindia-proxy/internal/observability"
	"tradeindia-proxy/internal/ratelimit"
	"tradeindia-proxy/internal/tradeindia"
)

var envFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tradeindia-proxy",
		Short:         "Rate-limited proxy for the TradeIndia inquiry API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default: ./.env if present)")
	root.Flags().String("port", "", "listen port (overrides PORT)")

	root.AddCommand(newTokenCmd())
	return root
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return report(cmd, err)
	}

	v := viper.New()
	if err := v.BindPFlag("port", cmd.Flags().Lookup("port")); err != nil {
		return report(cmd, err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return report(cmd, err)
	}

	log, err := observability.NewLogger(cfg.LogLevel, cfg.IsProduction())
	if err != nil {
		return report(cmd, err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("configuration loaded",
		zap.String("env", cfg.AppEnv),
		zap.Bool("user_id_set", cfg.UserID != ""),
		zap.Bool("profile_id_set", cfg.ProfileID != ""),
		zap.Bool("key_set", cfg.Key != ""),
		zap.Int("rate_limit_max", cfg.RateLimitMax),
		zap.Duration("rate_limit_window", cfg.RateLimitWindow),
		zap.Bool("client_token_guard", cfg.ClientTokenSecret != ""),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow)
	if cfg.RateLimitSweepInterval > 0 {
		go limiter.Run(ctx, cfg.RateLimitSweepInterval, time.Now, func(removed int) {
			metrics.RateLimitClients.Set(float64(limiter.Len()))
			if removed > 0 {
				log.Debug("swept expired rate limit windows", zap.Int("removed", removed))
			}
		})
	}

	client := tradeindia.NewClient(cfg.UpstreamURL, tradeindia.Credentials{
		UserID:    cfg.UserID,
		ProfileID: cfg.ProfileID,
		Key:       cfg.Key,
	}, cfg.UpstreamTimeout)

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: httpapi.NewRouter(httpapi.Deps{
			Config:  cfg,
			Leads:   client,
			Limiter: limiter,
			Now:     time.Now,
			Log:     log,
		}),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 10*time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("proxy server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error("listen error", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// report prints startup failures before the logger exists.
func report(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "tradeindia-proxy: %v\n", err)
	return err
}
