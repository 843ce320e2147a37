package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/natserract/zcrm-calls/pkg/audit"
	"github.com/natserract/zcrm-calls/pkg/config"
	"github.com/natserract/zcrm-calls/pkg/scheduler"
	"github.com/natserract/zcrm-calls/pkg/server"
	"github.com/natserract/zcrm-calls/pkg/zoho"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var port string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return err
	}
	if port != "" {
		cfg.Port = port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var recorder audit.Recorder
	if cfg.AuditEnabled {
		dbCfg, err := audit.NewConfig()
		if err != nil {
			return err
		}
		pg, err := audit.NewPostgresRecorder(ctx, dbCfg, logger)
		if err != nil {
			logger.Error("Failed to connect to audit database", zap.Error(err))
			return err
		}
		defer pg.Close()

		async := audit.NewAsyncRecorder(pg, audit.DefaultAsyncWorkers, logger)
		defer async.Wait()
		recorder = async
	}

	client := zoho.NewClientWithLogger(cfg, logger)
	svc := scheduler.NewService(client, recorder, logger)
	srv := server.New(cfg, svc, client.Tokens(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(net.JoinHostPort("", cfg.Port))
	}()

	logger.Info("Relay configured",
		zap.String("port", cfg.Port),
		zap.String("api_base_uri", cfg.APIBaseURI),
		zap.String("accounts_base_uri", cfg.AccountsBaseURI),
		zap.Bool("bootstrap_token", cfg.AccessToken != ""),
		zap.Bool("audit", cfg.AuditEnabled),
		zap.Float64("rate_limit_rps", cfg.RateLimitRPS))

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("Server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, shutting down gracefully")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}
