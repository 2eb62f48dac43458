package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hnswdb/internal/api"
)

func newServeCmd() *cobra.Command {
	var shardName string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve one shard's JSON API over HTTP",
		Long: `Starts the JSON-over-HTTP surface for a single shard. Multi-shard
routing and the outer gateway (auth provider, rate limiting, CORS,
dashboard) are external collaborators out of this repo's scope; serve
exposes exactly the per-shard data contract.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), shardName, addr)
		},
	}

	cmd.Flags().StringVar(&shardName, "shard", "default", "shard to serve")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

func runServe(ctx context.Context, shardName, addrFlag string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !shardExists(cfg, shardName) {
		return fmt.Errorf("shard %q does not exist; run 'vectordb shard create %s' first", shardName, shardName)
	}

	ctrl, _, err := openNamedShard(shardName)
	if err != nil {
		return err
	}
	defer func() { _ = ctrl.Close() }()

	addr := cfg.Server.Addr
	if addrFlag != "" {
		addr = addrFlag
	}

	srv := api.NewServer(ctrl, slog.Default(), cfg.Auth.Keys)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving shard", slog.String("shard", shardName), slog.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-sigCtx.Done():
		slog.Info("shutting down", slog.String("shard", shardName))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	}
}
