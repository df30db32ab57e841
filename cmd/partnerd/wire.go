package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"partner_tracker/internal/app"
	domainTelegram "partner_tracker/internal/domain/telegram"
	"partner_tracker/internal/infra/cache"
	"partner_tracker/internal/infra/config"
	idb "partner_tracker/internal/infra/database"
	"partner_tracker/internal/infra/logger"
	"partner_tracker/internal/infra/scheduler"
	"partner_tracker/internal/infra/telegram"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// runtime is everything a command needs, built from the environment.
type runtime struct {
	cfg    *config.AppConfig
	log    *logrus.Entry
	db     *sql.DB
	teams  *idb.PostgresTeamRepository
	redis  *cache.Client
	bot    *telebot.Bot
	engine *app.Engine
}

type wireOptions struct {
	// poll starts the bot's long poller; only serve needs inbound updates.
	poll bool
}

// loadBase reads config, sets up logging and opens the database.
func loadBase(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger.Init(cfg)
	log := logger.For("main")
	log.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"timezone":    cfg.Location().String(),
	}).Info("Configuration loaded")

	db, err := idb.NewPostgresConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}
	log.Info("Database connection established")
	return &runtime{cfg: cfg, log: log, db: db}, nil
}

// wire builds the engine and its optional adapters on top of loadBase.
func wire(ctx context.Context, opts wireOptions) (*runtime, error) {
	rt, err := loadBase(ctx)
	if err != nil {
		return nil, err
	}
	cfg, log := rt.cfg, rt.log

	// Interfaces stay nil when an adapter is disabled so the engine sees it as absent.
	var claims app.ClaimStore
	if cfg.RedisURL != "" {
		rc, err := cache.NewClient(cfg.RedisURL, cfg.Environment, logger.For("redis"))
		if err != nil {
			// Claims only narrow the dedup race; the window check still runs.
			log.WithError(err).Warn("Redis unavailable, running without dedup claims")
		} else {
			rt.redis, claims = rc, rc
			log.Info("Redis dedup claims enabled")
		}
	}

	var tg domainTelegram.Client
	if cfg.TelegramToken != "" {
		settings := telebot.Settings{
			Token: cfg.TelegramToken,
			OnError: func(err error, c telebot.Context) {
				entry := logger.For("telegram").WithError(err)
				if c != nil && c.Sender() != nil {
					entry = entry.WithField("sender_id", c.Sender().ID)
				}
				entry.Error("Telegram handler error")
			},
		}
		if opts.poll {
			settings.Poller = &telebot.LongPoller{Timeout: 10 * time.Second}
		}
		bot, err := telebot.NewBot(settings)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("could not create Telegram bot: %w", err)
		}
		rt.bot, tg = bot, telegram.NewTelebotAdapter(bot)
		log.Info("Telegram delivery enabled")
	}

	rt.teams = idb.NewPostgresTeamRepository(rt.db)
	rt.engine = app.NewEngine(app.Deps{
		Teams:            rt.teams,
		Cycles:           idb.NewPostgresCycleRepository(rt.db),
		Verifications:    idb.NewPostgresVerificationRepository(rt.db),
		Goals:            idb.NewPostgresGoalRepository(rt.db),
		Notifications:    idb.NewPostgresNotificationRepository(rt.db),
		Claims:           claims,
		Telegram:         tg,
		Clock:            app.SystemClock(cfg.Location()),
		DedupWindow:      cfg.DedupWindow,
		SweepConcurrency: cfg.SweepConcurrency,
		TeamCacheSize:    cfg.TeamCacheSize,
		TeamCacheTTL:     cfg.TeamCacheTTL,
		Log:              logger.For("engine"),
	})
	return rt, nil
}

func (rt *runtime) scheduler() *scheduler.Scheduler {
	return scheduler.New(
		rt.engine.Cycles,
		rt.engine.Timers,
		rt.engine.Delivery,
		scheduler.Specs{
			ClosureSweep:  rt.cfg.CronSpecClosureSweep,
			TimerWarnings: rt.cfg.CronSpecTimerWarnings,
			Delivery:      rt.cfg.CronSpecDelivery,
		},
		rt.cfg.Location(),
		logger.For("scheduler"),
	)
}

func (rt *runtime) close() {
	if rt.redis != nil {
		if err := rt.redis.Close(); err != nil {
			rt.log.WithError(err).Warn("Failed to close Redis connection")
		}
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			rt.log.WithError(err).Warn("Failed to close database")
		}
	}
}
