package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"partner_tracker/internal/app"
	idb "partner_tracker/internal/infra/database"
	"partner_tracker/internal/infra/httpapi"
	"partner_tracker/internal/infra/logger"
	"partner_tracker/internal/infra/telegram"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	migrateOnStart bool

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, background jobs and the Telegram bot",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "apply pending migrations before serving")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	rt, err := wire(ctx, wireOptions{poll: true})
	if err != nil {
		return err
	}
	defer rt.close()
	log := rt.log

	if migrateOnStart {
		if err := idb.Migrate(ctx, rt.db, logger.For("migrate")); err != nil {
			return err
		}
	}

	sched := rt.scheduler()
	if err := sched.Start(); err != nil {
		return err
	}

	if rt.bot != nil {
		telegram.NewHandlers(ctx, rt.teams, rt.engine, logger.For("telegram")).Register(rt.bot)
		go rt.bot.Start()
		log.Info("Telegram bot started")
	}

	if rt.cfg.ChangeFeedEnabled {
		if err := startChangeFeed(ctx, rt); err != nil {
			// Cron delivery still runs and write paths re-read teams; the feed only makes things prompt.
			log.WithError(err).Warn("Change feed unavailable, relying on scheduled delivery")
		}
	}

	server := httpapi.NewServer(rt.engine, rt.db, logger.For("http")).NewHTTPServer(rt.cfg.HTTPAddr)
	serverErr := make(chan error, 1)
	go func() {
		log.WithField("addr", rt.cfg.HTTPAddr).Info("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err = <-serverErr:
		log.WithError(err).Error("HTTP server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
		log.WithError(shutdownErr).Error("Failed to shut down HTTP server")
	}
	if rt.bot != nil {
		rt.bot.Stop()
	}
	sched.Stop(shutdownCtx)
	log.Info("Shutdown complete")
	return err
}

// startChangeFeed keeps the team cache in step with other processes and, when the
// bot is up, runs a delivery pass whenever a notification row is inserted.
func startChangeFeed(ctx context.Context, rt *runtime) error {
	feed, err := idb.NewChangeFeed(rt.cfg.DatabaseURL, logger.For("changefeed"))
	if err != nil {
		return err
	}
	teamEvents, err := feed.Subscribe(ctx, "teams", func(ev idb.ChangeEvent) bool {
		return ev.Op == "UPDATE" || ev.Op == idb.OpResync
	})
	if err != nil {
		feed.Close()
		return err
	}
	var deliveryEvents <-chan idb.ChangeEvent
	if rt.bot != nil {
		deliveryEvents, err = feed.Subscribe(ctx, "notifications", func(ev idb.ChangeEvent) bool {
			return ev.Op == "INSERT" || ev.Op == idb.OpResync
		})
		if err != nil {
			feed.Close()
			return err
		}
	}

	go feed.Run(ctx)
	go func() {
		defer feed.Close()
		<-ctx.Done()
	}()

	evict := teamCacheEvictor(rt.engine.Teams, rt.log)
	go func() {
		for ev := range teamEvents {
			evict(ev)
		}
	}()
	if deliveryEvents != nil {
		go func() {
			for range deliveryEvents {
				passCtx, cancel := context.WithTimeout(ctx, time.Minute)
				if _, err := rt.engine.Delivery.DeliverPending(passCtx); err != nil {
					rt.log.WithError(err).Warn("Feed-triggered delivery failed")
				}
				cancel()
			}
		}()
	}
	rt.log.WithField("delivery", deliveryEvents != nil).Info("Change feed enabled")
	return nil
}

// teamCacheEvictor drops a team from the cache when its row changes elsewhere.
// A resync drops everything since events may have been missed.
func teamCacheEvictor(teams app.TeamService, log *logrus.Entry) func(idb.ChangeEvent) {
	return func(ev idb.ChangeEvent) {
		if ev.Op == idb.OpResync {
			teams.Forget(uuid.Nil)
			return
		}
		id, err := uuid.Parse(ev.TeamID)
		if err != nil {
			log.WithField("team_id", ev.TeamID).Warn("Team change event without a usable id")
			return
		}
		teams.Forget(id)
	}
}
