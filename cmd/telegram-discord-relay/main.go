// Copyright 2024-2026 Aiku AI

// Command telegram-discord-relay watches a Telegram channel and relays its
// messages to a set of Discord channels: every message to the VIP channel,
// every Nth trading signal to the free channel, analysis content to the
// analysis channel. Edits and replies on the Telegram side are propagated
// to the previously posted Discord messages via a durable correlation
// store, so the relay resumes cleanly after a restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.mau.fi/util/dbutil"
	"go.mau.fi/util/exzerolog"

	"github.com/aiku/telegram-discord-relay/pkg/relay"
	"github.com/aiku/telegram-discord-relay/pkg/relay/discordgw"
	"github.com/aiku/telegram-discord-relay/pkg/relay/store"
	"github.com/aiku/telegram-discord-relay/pkg/relay/telegramgw"

	_ "github.com/mattn/go-sqlite3"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	writeExampleConfig := flag.Bool("example-config", false, "print the example config and exit")
	flag.Parse()

	if *writeExampleConfig {
		fmt.Print(relay.ExampleConfig)
		return
	}

	cfg, err := relay.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err = cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	log, err := cfg.Logging.Compile()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to configure logging:", err)
		os.Exit(1)
	}
	exzerolog.SetupDefaults(log)

	log.Info().
		Str("tag", Tag).
		Str("commit", Commit).
		Str("build_time", BuildTime).
		Msg("Starting telegram-discord-relay")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dbutil.NewFromConfig("telegram-discord-relay", cfg.Database, dbutil.ZeroLogger(*log))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	relayDB := store.New(db)
	if err = relayDB.Upgrade(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to upgrade database schema")
	}

	dest, err := discordgw.New(cfg.Discord.Token, cfg.Relay.RequestTimeout, *log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord client")
	}

	source := telegramgw.New(cfg.Telegram, cfg.Relay.RequestTimeout, *log)

	router, err := relay.NewRouter(ctx, cfg, log.With().Str("component", "router").Logger(), relayDB, dest, source)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct router")
	}
	router.VerifyChannels(ctx)

	if !cfg.Relay.Enabled {
		log.Warn().Msg("Relay is disabled by config, events will be consumed but not forwarded")
	}
	if cfg.Relay.EnablePerformanceMonitoring {
		go router.Stats().LogPeriodically(ctx, *log, cfg.Relay.StatsInterval)
	}

	// The Telegram client owns the connection lifecycle; the router drains
	// its event stream on this goroutine until shutdown.
	clientErr := make(chan error, 1)
	go func() {
		clientErr <- source.Run(ctx)
	}()

	routerDone := make(chan struct{})
	go func() {
		router.Run(ctx, source.Events())
		close(routerDone)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err = <-clientErr:
		if err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Telegram client stopped")
		}
	}
	stop()

	// Let the in-flight event finish its dispatch sequence before exiting
	// so no post is left unrecorded.
	<-routerDone

	router.Stats().Log(*log)
	log.Info().Msg("Relay stopped")
}
