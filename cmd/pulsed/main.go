package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/veltadesk/pulse/internal/bus"
	"github.com/veltadesk/pulse/internal/config"
	"github.com/veltadesk/pulse/internal/control"
	"github.com/veltadesk/pulse/internal/delivery"
	"github.com/veltadesk/pulse/internal/logger"
	"github.com/veltadesk/pulse/internal/retry"
	"github.com/veltadesk/pulse/internal/snackbar"
	"github.com/veltadesk/pulse/internal/socket"
	"github.com/veltadesk/pulse/internal/sound"
	"github.com/veltadesk/pulse/internal/store"
	"github.com/veltadesk/pulse/internal/stream"
	"github.com/veltadesk/pulse/internal/unread"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	log.Info("starting pulsed",
		slog.String("consumer_id", logger.GetConsumerID()),
		slog.String("viewer_role", cfg.ViewerRole))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable state, degrading to memory when SQLite is unavailable.
	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		log.Warn("durable store unavailable, running in-memory for this session",
			slog.String("path", cfg.StorePath),
			slog.String("error", err.Error()))
		st = store.NewMemory()
	}
	defer st.Close()

	b := bus.New()

	// Cross-consumer receipt sync: NATS when configured, loopback bus
	// otherwise.
	var syncer unread.Syncer
	if cfg.NatsURL != "" {
		nc, err := nats.Connect(cfg.NatsURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			log.Warn("NATS unavailable, falling back to loopback receipts",
				slog.String("error", err.Error()))
		} else {
			defer nc.Close()
			syncer = unread.NewNatsSyncer(nc, log)
		}
	}
	if syncer == nil {
		syncer = unread.NewBusSyncer(b)
	}

	tracker := unread.NewTracker(cfg.ViewerRole, logger.GetConsumerID(), st, syncer, log)
	if err := tracker.Start(); err != nil {
		log.Error("failed to start receipt sync", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer tracker.Close()

	var player sound.Player = sound.NewNopPlayer()
	if cfg.SoundEnabled {
		player = sound.NewTonePlayer(os.Stdout)
	}
	gate := sound.NewGate(player, cfg.SoundMinInterval, log)
	gate.Arm(b)
	defer gate.Close()

	presenter := snackbar.NewLogPresenter(log)
	scheduler := snackbar.NewScheduler(presenter, st, log)

	ingress := stream.NewIngress(stream.Config{
		URL:       cfg.StreamURL,
		AuthToken: cfg.AuthToken,
		Policy:    retry.NewPolicy(),
	}, log)

	var chat *socket.Client
	if cfg.SocketURL != "" {
		chat = socket.NewClient(socket.Config{
			URL:                      cfg.SocketURL,
			AuthToken:                cfg.AuthToken,
			AutoJoinParticipantTypes: cfg.Feeds.Rooms.AutoJoinParticipantTypes,
			Policy:                   retry.NewPolicy(),
		}, log)
	}

	var backfill *stream.Backfill
	if cfg.BackfillURL != "" {
		backfill = stream.NewBackfill(cfg.BackfillURL, cfg.AuthToken, nil, log)
	}

	pipeline := delivery.NewPipeline(delivery.Deps{
		Bus:         b,
		Ingress:     ingress,
		Chat:        chat,
		Backfill:    backfill,
		Store:       st,
		Tracker:     tracker,
		Scheduler:   scheduler,
		Gate:        gate,
		MarkReadURL: cfg.MarkReadURL,
		AuthToken:   cfg.AuthToken,
	}, log)

	if cfg.StreamURL != "" {
		pipeline.Start(ctx)
		defer pipeline.Stop()
	} else {
		log.Warn("no stream endpoint configured, pipeline idle")
	}

	// Reminder sources feed the batch lane on a daily schedule.
	var scanner *delivery.ReminderScanner
	if len(cfg.Feeds.Reminders.Sources) > 0 {
		sources := make([]delivery.Source, 0, len(cfg.Feeds.Reminders.Sources))
		for _, src := range cfg.Feeds.Reminders.Sources {
			sources = append(sources, delivery.NewHTTPSource(src.Name, src.URL, cfg.AuthToken, nil))
		}
		scanner = delivery.NewReminderScanner(sources, scheduler, log)
		if err := scanner.StartCron(ctx, cfg.ReminderCronSpec); err != nil {
			log.Error("failed to schedule reminder scan", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer scanner.Stop()

		// One pass at startup so the day's reminders do not wait for the
		// next cron tick.
		go func() {
			if err := scanner.Scan(ctx); err != nil {
				log.Warn("startup reminder scan failed", slog.String("error", err.Error()))
			}
		}()
	}

	handler := control.NewHandler(pipeline, tracker, scanner, ingress, gate, b, log)
	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: handler.Router(cfg.GinMode),
	}

	go func() {
		log.Info("control API listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("control API failed", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("control API shutdown failed", slog.String("error", err.Error()))
	}

	log.Info("stopped")
}
