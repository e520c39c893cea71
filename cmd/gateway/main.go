// Command gateway runs the BYOK relay gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/byokrelay/gateway/internal/config"
	"github.com/byokrelay/gateway/internal/dispatch"
	"github.com/byokrelay/gateway/internal/gateway"
	"github.com/byokrelay/gateway/internal/summarize"
	"github.com/byokrelay/gateway/internal/utils"
)

func main() {
	var (
		configPath string
		addr       string
		debug      bool
	)
	flag.StringVar(&configPath, "config", "", "path to yaml config file")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	// .env is optional; secrets referenced as ${VAR} in the config expand
	// from the process environment either way.
	_ = godotenv.Load()

	setupLogging(debug)

	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		log.Info().
			Str("provider", p.ID).
			Str("type", p.Type).
			Str("api_key", utils.MaskKey(p.APIKey)).
			Msg("provider configured")
	}

	summarizer := summarize.New(cfg.Summarize, cfg.Timeouts.Upstream())
	defer summarizer.Close()

	srv := gateway.New(cfg, dispatch.New(cfg, summarizer))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("gateway stopped")
	}
	log.Info().Msg("gateway shut down")
}

func setupLogging(debug bool) {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		if env := os.Getenv("GATEWAY_CONFIG"); env != "" {
			path = env
		}
	}
	if path == "" {
		log.Warn().Msg("no config file given, starting with defaults (official routing only)")
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}
