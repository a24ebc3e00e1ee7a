package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"

	"waterminder/internal/config"
	"waterminder/internal/logging"
	"waterminder/internal/notify"
	"waterminder/internal/scheduler"
	"waterminder/internal/server"
	"waterminder/internal/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	usingDefaults := errors.Is(err, os.ErrNotExist)
	if usingDefaults {
		cfg = config.Default()
	} else if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logging.New(cfg.Logging)
	defer logSvc.Close()
	if usingDefaults {
		log.Warn().Str("path", cfgPath).Msg("config file not found; using defaults")
	}
	log.Info().Str("config", cfgPath).Msg("waterminder starting")

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Path: cfg.Storage.Path, BusyTimeout: busyTimeout}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	channel, err := buildChannel(cfg.Notifier, log)
	if err != nil {
		return fmt.Errorf("notifier channel: %w", err)
	}
	if c, ok := channel.(interface{ Close() error }); ok {
		defer c.Close()
	}

	notifyCfg, err := buildNotifyConfig(cfg.Notifier)
	if err != nil {
		return err
	}
	notifier := notify.New(notifyCfg, channel, log)
	notifier.Start(ctx)
	defer stopWithTimeout(notifier.Stop)

	sched := scheduler.New(scheduler.Config{
		Timezone:  cfg.Scheduler.Timezone,
		QueueSize: cfg.Scheduler.QueueSize,
	}, store, notifier, clock.New(), log)
	sched.Start(ctx)
	defer stopWithTimeout(sched.Stop)

	scheduled, dropped, err := sched.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("startup reconcile: %w", err)
	}
	log.Info().Int("scheduled", scheduled).Int("dropped", dropped).Msg("reminders restored from store")

	srv := server.New(cfg.Listen, store, sched, log)
	srvErr := srv.Start()

	// Hot reload applies what is safe to change in place: log sinks and
	// level. Storage, scheduler and notifier changes need a restart.
	watcher := config.NewWatcher(cfgPath, log, func(next *config.Config) {
		logSvc.Apply(next.Logging)
	})
	go func() { _ = watcher.Run(ctx) }()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	select {
	case <-ctx.Done():
	case err := <-srvErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	return nil
}

func buildChannel(cfg config.NotifierConfig, log zerolog.Logger) (notify.Channel, error) {
	switch cfg.Channel {
	case "", "log":
		return notify.NewLogChannel(log), nil
	case "webhook":
		return notify.NewWebhookChannel(cfg.WebhookURL, log)
	case "telegram":
		return notify.NewTelegramChannel(cfg.TelegramToken, log)
	default:
		return nil, fmt.Errorf("unknown notifier channel %q", cfg.Channel)
	}
}

func buildNotifyConfig(cfg config.NotifierConfig) (notify.Config, error) {
	retryBase, err := config.ParseDurationField("notifier.retry_base", cfg.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notifier.retry_max_delay", cfg.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	dedup, err := config.ParseDurationField("notifier.dedup_window", cfg.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Workers:       cfg.Workers,
		QueueSize:     cfg.QueueSize,
		RatePerSec:    cfg.RatePerSec,
		RetryMax:      cfg.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
		DedupWindow:   dedup,
	}, nil
}

func stopWithTimeout(stop func(context.Context)) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stop(ctx)
}
