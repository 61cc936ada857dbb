package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sadopc/done/internal/config"
)

func newSyncCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Stay signed in and keep the local store in sync until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := openSession(ctx, f, false)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.cfg.Remote.Kind == config.RemoteNone {
				s.log.Warn("no remote configured, nothing to sync")
			}
			s.log.Info("syncing",
				zap.String("user_id", s.svc.UserID()),
				zap.String("remote", s.cfg.Remote.Kind),
			)

			if s.cfg.Metrics.Addr == "" {
				<-ctx.Done()
				return nil
			}
			return serveMetrics(ctx, s.cfg.Metrics.Addr, s.registry, s.log)
		},
	}
}

// serveMetrics exposes reg on addr under /metrics until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
