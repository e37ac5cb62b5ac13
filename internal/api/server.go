// Package api exposes the admin dashboard REST surface, the payment provider
// webhook, and the health endpoint over one HTTP server.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/settings"
)

const (
	mongoPingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
	maxWebhookBytes   = 1 << 20
	maxUploadBytes    = 32 << 20
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

type sessionDirectory interface {
	All(ctx context.Context) ([]domain.Session, error)
	CountByStep(ctx context.Context, step string) (int64, error)
	CountBonusClaimed(ctx context.Context) (int64, error)
}

type paymentDirectory interface {
	All(ctx context.Context) ([]domain.Payment, error)
	GetByID(ctx context.Context, id string) (domain.Payment, error)
	GetByInvoice(ctx context.Context, invoiceID string) (domain.Payment, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.Payment, error)
}

type ticketDirectory interface {
	All(ctx context.Context) ([]domain.Ticket, error)
}

type replyDirectory interface {
	ForTicket(ctx context.Context, ticketID string) ([]domain.Reply, error)
}

type configStore interface {
	Value(ctx context.Context, key, fallback string) string
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) ([]settings.Entry, error)
}

type ticketRelay interface {
	DashboardReply(ctx context.Context, ticketID, text string) (domain.Reply, error)
	Resolve(ctx context.Context, ticketID string) error
	NotifyOperator(ctx context.Context, text string)
}

type userNotifier interface {
	NotifyPaymentStatus(ctx context.Context, tgID string, payment domain.Payment)
}

type statsSource interface {
	CountUsers(ctx context.Context) (int64, error)
	CountPaymentsByStatus(ctx context.Context, status string) (int64, error)
	SumPaymentsByStatus(ctx context.Context, status string) (int64, error)
	CountPendingTickets(ctx context.Context) (int64, error)
}

// Deps bundles everything the HTTP surface needs.
type Deps struct {
	Sessions sessionDirectory
	Payments paymentDirectory
	Tickets  ticketDirectory
	Replies  replyDirectory
	Config   configStore
	Relay    ticketRelay
	Notifier userNotifier
	Stats    statsSource
	Mongo    MongoChecker
}

// Server hosts the admin API and owns the underlying HTTP server.
type Server struct {
	server        *http.Server
	deps          Deps
	uploadDir     string
	publicBaseURL string
	logger        *logrus.Entry
}

// NewServer constructs the HTTP server on the provided port.
func NewServer(port int, deps Deps, uploadDir, publicBaseURL string, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		deps:          deps,
		uploadDir:     uploadDir,
		publicBaseURL: publicBaseURL,
		logger:        logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// Handler exposes the routed handler; used by tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.Get("/healthz", s.handleHealth)
	router.Post("/webhooks/payment", s.handlePaymentWebhook)

	router.Route("/api", func(r chi.Router) {
		r.Get("/users", s.handleListUsers)
		r.Get("/payments", s.handleListPayments)
		r.Patch("/payments/{id}/status", s.handleUpdatePaymentStatus)
		r.Get("/messages", s.handleListTickets)
		r.Patch("/messages/{id}/resolve", s.handleResolveTicket)
		r.Get("/messages/{id}/replies", s.handleListReplies)
		r.Post("/messages/{id}/reply", s.handleCreateReply)
		r.Get("/config", s.handleListConfig)
		r.Post("/config", s.handleSetConfig)
		r.Get("/stats", s.handleStats)
		r.Post("/uploads", s.handleUpload)
	})

	router.Handle("/uploads/*", http.StripPrefix("/uploads/",
		http.FileServer(http.Dir(s.uploadDir))))

	return router
}

// ListenAndServe starts the server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "api_listen",
		"addr":  s.server.Addr,
	}).Info("starting http server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "api_stopped").Info("http server stopped")
			return nil
		}

		return fmt.Errorf("http server listen: %w", err)
	}

	s.logger.WithField("event", "api_stopped").Info("http server stopped")
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.WithFields(logging.Fields{
			"event":       "http_request",
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}).Info("http request handled")
	})
}

type healthResponse struct {
	Status string `json:"status"`
	Mongo  string `json:"mongo,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if s.deps.Mongo == nil {
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
		resp.Status = "degraded"
		resp.Mongo = "error"
	} else {
		pingCtx, cancel := context.WithTimeout(r.Context(), mongoPingTimeout)
		err := s.deps.Mongo.Ping(pingCtx)
		cancel()

		if err != nil {
			s.logger.WithField("event", "health_mongo_error").WithError(err).Warn("mongo ping failed during health check")
			resp.Status = "degraded"
			resp.Mongo = "error"
		}
	}

	respondJSON(s.logger, w, http.StatusOK, resp)
}
