package httpapi

import (
	"context"
	"net/http"
	"time"

	"partner_tracker/internal/app"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server exposes the engine over JSON/HTTP.
type Server struct {
	engine *app.Engine
	db     Pinger
	logger *logrus.Entry
}

func NewServer(engine *app.Engine, db Pinger, logger *logrus.Entry) *Server {
	return &Server{
		engine: engine,
		db:     db,
		logger: logger.WithField("component", "http"),
	}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	// Operator endpoint, called by cron replacements and deploy hooks.
	r.Post("/cycles/close-expired", s.handleCloseAllExpired)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)

		r.Post("/teams", s.handleCreateTeam)
		r.Route("/teams/{teamID}", func(r chi.Router) {
			r.Get("/", s.handleGetTeam)
			r.Post("/end", s.handleEndTeam)
			r.Get("/status", s.handleTeamStatus)
			r.Get("/completion", s.handleCompletion)

			r.Post("/verifications", s.handleLogVerification)
			r.Get("/verifications", s.handleVerificationHistory)
			r.Get("/verifications/live", s.handleLiveVerification)

			r.Get("/goal", s.handleGetGoal)
			r.Put("/goal", s.handleSetGoal)

			r.Post("/cycles/close", s.handleCloseCycle)
			r.Post("/timer-warnings/evaluate", s.handleEvaluateTimers)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", s.handleListNotifications)
			r.Post("/", s.handleCreateNotification)
			r.Get("/unread-count", s.handleUnreadCount)
			r.Post("/{notificationID}/read", s.handleMarkRead)
			r.Delete("/{notificationID}", s.handleDeleteNotification)
		})
	})
	return r
}

// NewHTTPServer wraps the router with the timeouts used in production.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			s.logger.WithError(err).Warn("Health check failed")
			respondError(w, http.StatusServiceUnavailable, "unavailable", "database unreachable")
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
