package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/aretw0/relay/pkg/adapters/http"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serves the step executors and the execution records as a JSON API described
by /openapi.yaml. Metrics are served on server.metrics_addr when set, otherwise
under /metrics on the API address.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, cfg, logger, err := open(cmd)
		if err != nil {
			return err
		}
		defer r.Close()

		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}

		opts := []httpadapter.Option{httpadapter.WithLogger(logger)}
		if cfg.Server.MetricsAddr == "" {
			opts = append(opts, httpadapter.WithMetricsHandler(r.Metrics.Handler()))
		}
		handler, err := httpadapter.NewHandler(r, opts...)
		if err != nil {
			return err
		}

		servers := []*http.Server{{Addr: cfg.Server.Addr, Handler: handler}}
		if cfg.Server.MetricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", r.Metrics.Handler())
			servers = append(servers, &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux})
		}
		return serve(cmd.Context(), logger, servers...)
	},
}

// serve runs every server until ctx is done or one of them fails, then shuts
// the rest down.
func serve(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server on %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("graceful shutdown of %s did not complete: %w", srv.Addr, err))
				_ = srv.Close()
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default server.addr)")
}
