// pagewatch - behavioral event risk scoring API
package main

import (
	"context"
	"os"

	"github.com/mbd888/pagewatch/internal/config"
	"github.com/mbd888/pagewatch/internal/logging"
	"github.com/mbd888/pagewatch/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Bootstrap logger until the configured level is known
	logger := logging.New("info", "text")

	logger.Info("starting pagewatch",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"ai_server", cfg.PhishingConfig().Endpoint(),
		"ai_timeout", cfg.AIServerTimeout.String(),
		"rate_limit_rpm", cfg.RateLimitRPM,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
