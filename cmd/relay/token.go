package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natserract/zcrm-calls/pkg/config"
	"github.com/natserract/zcrm-calls/pkg/zoho"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the refresh token once and report the cached credential",
	Long:  "Acquires an access token with the configured refresh token and prints its status. The token value itself is never printed.",
	RunE:  runToken,
}

func runToken(cmd *cobra.Command, args []string) error {
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
	// Force an exchange so the command checks the refresh credentials.
	cfg.AccessToken = ""

	client := zoho.NewClientWithLogger(cfg, logger)
	if _, err := client.Tokens().Acquire(context.Background()); err != nil {
		logger.Error("Token refresh failed", zap.Error(err))
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(client.Tokens().Status())
}
