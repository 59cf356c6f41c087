// Command weighbot runs the truck-weighing chat bot: a conversation engine
// over postgres, reachable through the Green API webhook and optionally
// Telegram long polling.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akhmetov/weighbot/bot"
	"github.com/akhmetov/weighbot/core/bootstrap"
	coreconfig "github.com/akhmetov/weighbot/core/config"
	"github.com/akhmetov/weighbot/core/logger"
	"github.com/akhmetov/weighbot/core/sender"
	"github.com/akhmetov/weighbot/photo"
	"github.com/akhmetov/weighbot/server"
	"github.com/akhmetov/weighbot/storage"
	"github.com/akhmetov/weighbot/telegram"
	"github.com/akhmetov/weighbot/whatsapp"
)

const cleanupInterval = 24 * time.Hour

func main() {
	if err := run(); err != nil {
		log.Fatalf("weighbot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := coreconfig.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	boot, err := bootstrap.Run(bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer boot.DB.Close()
	defer func() {
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	store := storage.NewPostgres(boot.DB)

	media, err := photo.NewService(photo.Options{
		Dir:      cfg.Media.Dir,
		MaxBytes: cfg.Media.MaxBytes,
		KeepDays: cfg.Media.KeepDays,
	})
	if err != nil {
		return err
	}

	engine, err := bot.NewEngine(bot.Options{
		Store:       store,
		Media:       media,
		StationName: cfg.Station,
	})
	if err != nil {
		return err
	}

	out := sender.NewDispatcher(sender.Options{})
	defer out.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	var webhook http.HandlerFunc
	if cfg.WhatsApp.Enabled {
		client, err := whatsapp.NewClient(whatsapp.Options{
			APIURL:     cfg.WhatsApp.APIURL,
			InstanceID: cfg.WhatsApp.InstanceID,
			Token:      cfg.WhatsApp.Token,
		})
		if err != nil {
			return err
		}
		transport, err := whatsapp.NewTransport(whatsapp.TransportOptions{
			Engine:     engine,
			Client:     client,
			Dispatcher: out,
			GroupChat:  cfg.WhatsApp.GroupChat,
		})
		if err != nil {
			return err
		}
		webhook = transport.HandleWebhook
	}

	// The HTTP server always runs: health and metrics stay up even when the
	// webhook transport is disabled.
	srv := server.New(server.Options{
		Addr:    fmt.Sprintf("%s:%d", listenHost(cfg), cfg.HTTP.Port),
		Webhook: webhook,
	})
	go func() { errCh <- srv.Run(ctx) }()

	if cfg.Telegram.Enabled {
		transport, err := telegram.NewTransport(telegram.Options{
			Token:           cfg.Telegram.Token,
			GroupChatID:     cfg.Telegram.GroupChatID,
			LongPollTimeout: time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second,
			RateLimit:       time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
			Engine:          engine,
			Dispatcher:      out,
		})
		if err != nil {
			return err
		}
		go func() { errCh <- transport.Run(ctx) }()
	}

	go media.RunCleanup(ctx, cleanupInterval)

	logger.L.With("component", "app").Info("app ready",
		slog.String("event", "ready"),
	)

	select {
	case err := <-errCh:
		cancel()
		return err
	case <-ctx.Done():
	}

	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
	)
	return nil
}

func listenHost(cfg *coreconfig.Config) string {
	if cfg.HTTP.Listen == "" {
		return "0.0.0.0"
	}
	return cfg.HTTP.Listen
}
