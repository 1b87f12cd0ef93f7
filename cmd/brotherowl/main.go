package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"brotherowl/internal/application/feed"
	"brotherowl/internal/application/port"
	"brotherowl/internal/application/usecase/chainwatch"
	"brotherowl/internal/domain"
	"brotherowl/internal/infrastructure/config"
	"brotherowl/internal/infrastructure/container"
	"brotherowl/internal/infrastructure/logger"
	"brotherowl/internal/infrastructure/torn"
	"brotherowl/internal/interfaces/console"
	"brotherowl/internal/interfaces/discord"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	if config.TornAPIKey() == "" {
		log.Warn().Msg(config.EnvTornAPIKey + " not set, requests will fail until it is")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// storage backends
	c, err := container.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("init storage failed")
	}
	defer c.Close()

	sink := console.NewSink()

	watch := chainwatch.NewService(chainwatch.ServiceDeps{
		AlertChannelID: cfg.Discord.AlertChannelID,
		WarnTimeout:    time.Duration(cfg.ChainWatch.WarnTimeoutSec) * time.Second,
		Milestones:     cfg.ChainWatch.Milestones,
		Sink:           sink,
		Repo:           c.Repository(),
		Retention:      time.Duration(max(cfg.Storage.RetentionHours, 0)) * time.Hour,
	})
	restoreCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := watch.Restore(restoreCtx); err != nil {
		log.Warn().Err(err).Msg("restore chain state failed")
	}
	cancel()

	var session *discordgo.Session
	var client port.Messenger
	if cfg.Discord.Enabled {
		session, err = discordgo.New("Bot " + cfg.Discord.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("create discord session failed")
		}
		session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent
		client = session
	} else {
		log.Warn().Msg("discord disabled by config")
	}

	ctrl := feed.New(feedConfig(cfg), feed.Deps{
		Dialer:  torn.NewWSDialer(cfg.Torn.WsURL),
		Fetcher: torn.NewClient(cfg.Torn.APIBase, cfg.Torn.FactionID, config.TornAPIKey, cfg.Torn.RequestsPerMinute),
		Monitor: watch,
		Client:  client,
		APIKey:  config.TornAPIKey,
	})

	if session != nil {
		handler := discord.NewHandler(cfg.Discord.CommandPrefix, cfg.Discord.AdminIDs, ctrl, watch)
		session.AddHandler(handler.Receive)
		if err := session.Open(); err != nil {
			log.Fatal().Err(err).Msg("open discord session failed")
		}
		defer session.Close()
	}

	ctrl.Start(func(p domain.FeedPayload) {
		sum := p.Summary()
		log.Debug().
			Str("source", string(p.Source)).
			Int64("current", sum.Current).
			Int64("timeout", sum.Timeout).
			Msg("chain update")
	})

	log.Info().
		Str("config", *configPath).
		Str("faction", cfg.Torn.FactionID).
		Bool("discord", cfg.Discord.Enabled).
		Bool("storage", cfg.Storage.Enabled).
		Msg("brotherowl started")

	<-ctx.Done()
	ctrl.Stop()
	_ = sink.NewLine()
	log.Info().Msg("brotherowl stopped")
}

func feedConfig(cfg *config.Config) feed.Config {
	f := cfg.Feed
	return feed.Config{
		Channel:              cfg.Torn.Channel,
		MaxReconnectAttempts: f.MaxReconnectAttempts,
		BaseDelay:            time.Duration(f.BaseDelayMs) * time.Millisecond,
		MaxDelay:             time.Duration(f.MaxDelayMs) * time.Millisecond,
		ConnectTimeout:       time.Duration(f.ConnectTimeoutSec) * time.Second,
		PollInterval:         time.Duration(f.PollIntervalSec) * time.Second,
		HealthCheckInterval:  time.Duration(f.HealthCheckSec) * time.Second,
		StaleAfter:           time.Duration(f.StaleAfterSec) * time.Second,
		ResetPushDelay:       time.Duration(f.ResetPushDelaySec) * time.Second,
	}
}
