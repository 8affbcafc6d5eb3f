package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/whisper/modbot/internal/assistant"
	"github.com/whisper/modbot/internal/ban"
	"github.com/whisper/modbot/internal/classify"
	"github.com/whisper/modbot/internal/config"
	"github.com/whisper/modbot/internal/controller"
	"github.com/whisper/modbot/internal/enrich"
	"github.com/whisper/modbot/internal/gateway"
	"github.com/whisper/modbot/internal/logger"
	"github.com/whisper/modbot/internal/opsapi"
	"github.com/whisper/modbot/internal/ratelimit"
	"github.com/whisper/modbot/internal/report"
	"github.com/whisper/modbot/internal/telemetry"
)

const shutdownBudget = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info("Starting moderation bot...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "modbot", cfg.OTLPEndpoint)
	if err != nil {
		log.WithError(err).Fatal("failed to init tracing")
	}

	checks := map[string]opsapi.Check{}

	// Redis setup. Without it the report-ban list is in-memory and report
	// starts are not rate limited.
	var (
		rdb     *redis.Client
		bans    ban.List = ban.NewMemStore()
		limiter controller.Limiter
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.WithError(err).Fatal("failed to connect to Redis")
		}
		bans = ban.NewStore(rdb)
		limiter = ratelimit.NewLimiter(rdb, log)
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Postgres archive of reviewed reports, optional.
	var (
		store   *report.Store
		archive controller.Archive
	)
	if cfg.DatabaseURL != "" {
		openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		store, err = report.Open(openCtx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			log.WithError(err).Fatal("failed to open report archive")
		}
		archive = store
		checks["postgres"] = store.Ping
	}

	// NATS setup.
	natsConfig := gateway.DefaultConfig()
	natsConfig.URL = cfg.NATSURL
	natsConfig.Name = cfg.NATSName
	gw, err := gateway.Connect(natsConfig, log)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to NATS")
	}
	checks["nats"] = func(context.Context) error {
		if !gw.Conn().IsConnected() {
			return errors.New("not connected")
		}
		return nil
	}

	ctrl := controller.New(controller.Config{
		ModChannels:         config.ChannelIDs(cfg.ModChannels),
		UserChannels:        config.ChannelIDs(cfg.UserChannels),
		AutoReportThreshold: cfg.AutoReportThreshold,
		WaitTimeout:         cfg.EnrichmentTimeout,
		ReportBanDuration:   ban.Permanent,
		RateRule: ratelimit.Rule{
			Key:    ratelimit.RuleReportStart.Key,
			Limit:  cfg.ReportRateLimit,
			Window: cfg.ReportRateWindow,
		},
	}, controller.Deps{
		Gateway:   gw,
		Pipeline:  newPipeline(cfg, log),
		Assistant: assistant.NewClassifier(newSelector(cfg), log),
		Bans:      bans,
		Archive:   archive,
		Limiter:   limiter,
		Logger:    log,
	})

	// Handlers outlive the signal so in-flight messages finish on shutdown.
	handlerCtx := context.WithoutCancel(ctx)
	err = gw.SubscribeEvents(func(ev gateway.Event) {
		switch {
		case ev.Created != nil:
			ctrl.Submit(handlerCtx, *ev.Created)
		case ev.Deleted != nil:
			ctrl.Deleted(ev.Deleted.ChannelID, ev.Deleted.MessageID)
		}
	})
	if err != nil {
		log.WithError(err).Fatal("failed to subscribe to platform events")
	}

	stopOps, err := opsapi.Start(cfg.OpsAddr, opsapi.New(log, ctrl, checks).Handler(), log)
	if err != nil {
		log.WithError(err).Fatal("failed to start ops http server")
	}

	log.WithFields(logrus.Fields{
		"nats_url":      natsConfig.URL,
		"redis":         cfg.RedisAddr != "",
		"archive":       store != nil,
		"mod_channels":  len(cfg.ModChannels),
		"user_channels": len(cfg.UserChannels),
		"ops_addr":      cfg.OpsAddr,
	}).Info("moderation bot running")

	<-ctx.Done()
	log.Info("shutdown signal received")

	// Stop intake, let queued handlers finish, then close the connection.
	gw.StopEvents()
	ctrl.Wait()
	gw.Close()

	type stopFn struct {
		name string
		fn   func(context.Context) error
	}
	stopFns := []stopFn{
		{"ops http server", stopOps},
		{"tracing", shutdownTracing},
	}
	if store != nil {
		stopFns = append(stopFns, stopFn{"report archive", func(context.Context) error { return store.Close() }})
	}
	if rdb != nil {
		stopFns = append(stopFns, stopFn{"redis", func(context.Context) error { return rdb.Close() }})
	}

	perComponent := shutdownBudget / time.Duration(len(stopFns))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()
	for _, s := range stopFns {
		cctx, ccancel := context.WithTimeout(shutdownCtx, perComponent)
		if err := s.fn(cctx); err != nil {
			log.WithError(err).Error(s.name + " shutdown")
		}
		ccancel()
	}
	log.Info("shutdown complete")
}

// newPipeline wires whichever classifiers are configured. Missing ones
// resolve to fail-open defaults.
func newPipeline(cfg *config.Config, log logrus.FieldLogger) *enrich.Pipeline {
	pc := enrich.Config{DisplayLanguage: cfg.DisplayLanguage, Logger: log}
	if cfg.PerspectiveAPIKey != "" {
		pc.Text = classify.NewPerspective(cfg.PerspectiveURL, cfg.PerspectiveAPIKey)
	} else {
		log.Warn("PERSPECTIVE_API_KEY not set, severity scores will be zero")
	}
	if cfg.VisionURL != "" {
		pc.Visual = classify.NewVision(cfg.VisionURL, cfg.VisionAPIKey)
	}
	if cfg.TranslateAPIKey != "" {
		pc.Translator = classify.NewTranslate(cfg.TranslateURL, cfg.TranslateAPIKey)
	}
	return enrich.NewPipeline(pc)
}

func newSelector(cfg *config.Config) assistant.Selector {
	if cfg.AnthropicAPIKey == "" {
		return nil
	}
	return assistant.NewClaude(cfg.AnthropicAPIKey, cfg.AnthropicModel)
}
