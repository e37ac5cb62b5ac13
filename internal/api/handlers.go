package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tg_funnel_bot/internal/domain"
	"tg_funnel_bot/internal/gateway"
	"tg_funnel_bot/internal/logging"
	"tg_funnel_bot/internal/settings"
)

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.All(r.Context())
	if err != nil {
		s.serverError(w, "list users", err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	respondJSON(s.logger, w, http.StatusOK, sessions)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.deps.Payments.All(r.Context())
	if err != nil {
		s.serverError(w, "list payments", err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	respondJSON(s.logger, w, http.StatusOK, payments)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed request body")
		return
	}
	if !domain.ValidPaymentStatus(req.Status) {
		respondError(s.logger, w, http.StatusBadRequest, "unknown payment status")
		return
	}

	payment, err := s.deps.Payments.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			respondError(s.logger, w, http.StatusNotFound, "payment not found")
		case errors.Is(err, domain.ErrTerminalStatus):
			respondError(s.logger, w, http.StatusConflict, "payment status is final")
		default:
			s.serverError(w, "update payment status", err)
		}
		return
	}

	s.afterStatusChange(r, payment)
	respondJSON(s.logger, w, http.StatusOK, payment)
}

// afterStatusChange pushes the user and operator notifications owed after a
// payment reaches a terminal status.
func (s *Server) afterStatusChange(r *http.Request, payment domain.Payment) {
	ctx := r.Context()

	if s.deps.Notifier != nil {
		s.deps.Notifier.NotifyPaymentStatus(ctx, payment.TgID, payment)
	}

	if payment.Status == domain.PaymentPaid && s.deps.Relay != nil {
		s.deps.Relay.NotifyOperator(ctx, fmt.Sprintf(
			"Payment received\n\nAmount: %d\nPlayer ID: %s\nUser: %s",
			payment.Amount, payment.PlayerID, payment.TgID))
	}
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := s.deps.Tickets.All(r.Context())
	if err != nil {
		s.serverError(w, "list tickets", err)
		return
	}
	if tickets == nil {
		tickets = []domain.Ticket{}
	}
	respondJSON(s.logger, w, http.StatusOK, tickets)
}

func (s *Server) handleResolveTicket(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Relay.Resolve(r.Context(), chi.URLParam(r, "id")); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(s.logger, w, http.StatusNotFound, "message not found")
			return
		}
		s.serverError(w, "resolve ticket", err)
		return
	}
	respondJSON(s.logger, w, http.StatusOK, map[string]string{"result": "resolved"})
}

func (s *Server) handleListReplies(w http.ResponseWriter, r *http.Request) {
	replies, err := s.deps.Replies.ForTicket(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.serverError(w, "list replies", err)
		return
	}
	if replies == nil {
		replies = []domain.Reply{}
	}
	respondJSON(s.logger, w, http.StatusOK, replies)
}

type replyRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCreateReply(w http.ResponseWriter, r *http.Request) {
	var req replyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(s.logger, w, http.StatusBadRequest, "text is required")
		return
	}

	reply, err := s.deps.Relay.DashboardReply(r.Context(), chi.URLParam(r, "id"), req.Text)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(s.logger, w, http.StatusNotFound, "message not found")
			return
		}
		s.serverError(w, "create reply", err)
		return
	}
	respondJSON(s.logger, w, http.StatusCreated, reply)
}

func (s *Server) handleListConfig(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Config.All(r.Context())
	if err != nil {
		s.serverError(w, "list config", err)
		return
	}
	if entries == nil {
		entries = []settings.Entry{}
	}
	respondJSON(s.logger, w, http.StatusOK, entries)
}

type configRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		respondError(s.logger, w, http.StatusBadRequest, "key is required")
		return
	}

	if err := s.deps.Config.Set(r.Context(), req.Key, req.Value); err != nil {
		s.serverError(w, "set config", err)
		return
	}
	respondJSON(s.logger, w, http.StatusOK, map[string]string{
		"key":   req.Key,
		"value": req.Value,
	})
}

type statsResponse struct {
	Users        int64            `json:"users"`
	ByStep       map[string]int64 `json:"by_step"`
	BonusClaimed int64            `json:"bonus_claimed"`
	Payments     map[string]int64 `json:"payments"`
	Revenue      int64            `json:"revenue"`
	OpenTickets  int64            `json:"open_tickets"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := s.deps.Stats.CountUsers(ctx)
	if err != nil {
		s.serverError(w, "count users", err)
		return
	}

	byStep := make(map[string]int64)
	for _, step := range []string{domain.StepHome, domain.StepInstall, domain.StepClub, domain.StepBonus, domain.StepPayment} {
		count, err := s.deps.Sessions.CountByStep(ctx, step)
		if err != nil {
			s.serverError(w, "count sessions by step", err)
			return
		}
		byStep[step] = count
	}

	bonusClaimed, err := s.deps.Sessions.CountBonusClaimed(ctx)
	if err != nil {
		s.serverError(w, "count bonus claims", err)
		return
	}

	payments := make(map[string]int64)
	for _, status := range []string{domain.PaymentPending, domain.PaymentProcessing, domain.PaymentPaid, domain.PaymentCancelled} {
		count, err := s.deps.Stats.CountPaymentsByStatus(ctx, status)
		if err != nil {
			s.serverError(w, "count payments", err)
			return
		}
		payments[status] = count
	}

	revenue, err := s.deps.Stats.SumPaymentsByStatus(ctx, domain.PaymentPaid)
	if err != nil {
		s.serverError(w, "sum revenue", err)
		return
	}

	openTickets, err := s.deps.Stats.CountPendingTickets(ctx)
	if err != nil {
		s.serverError(w, "count tickets", err)
		return
	}

	respondJSON(s.logger, w, http.StatusOK, statsResponse{
		Users:        users,
		ByStep:       byStep,
		BonusClaimed: bonusClaimed,
		Payments:     payments,
		Revenue:      revenue,
		OpenTickets:  openTickets,
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "malformed multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		s.serverError(w, "create upload dir", err)
		return
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(header.Filename))
	target, err := os.Create(filepath.Join(s.uploadDir, name))
	if err != nil {
		s.serverError(w, "create upload file", err)
		return
	}
	defer target.Close()

	if _, err := io.Copy(target, file); err != nil {
		s.serverError(w, "store upload", err)
		return
	}

	path := "/uploads/" + name
	url := path
	if s.publicBaseURL != "" {
		url = s.publicBaseURL + path
	}
	respondJSON(s.logger, w, http.StatusCreated, map[string]string{
		"path": path,
		"url":  url,
	})
}

// handlePaymentWebhook applies a provider status notification. The shared
// secret is checked before anything else; unauthenticated calls learn nothing
// about known payments.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	supplied := r.Header.Get("X-Webhook-Secret")
	if supplied == "" {
		supplied = r.URL.Query().Get("secret")
	}
	configured := s.deps.Config.Value(r.Context(), settings.KeyMerchantSecret, "")
	if !gateway.SecretMatches(supplied, configured) {
		respondError(s.logger, w, http.StatusUnauthorized, "invalid webhook secret")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		respondError(s.logger, w, http.StatusBadRequest, "unreadable request body")
		return
	}

	notification, err := gateway.ParseNotification(body)
	if err != nil {
		respondError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	payment, err := s.lookupNotifiedPayment(r, notification)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(s.logger, w, http.StatusNotFound, "payment not found")
			return
		}
		s.serverError(w, "lookup payment", err)
		return
	}

	updated, err := s.deps.Payments.UpdateStatus(r.Context(), payment.ID, notification.Status)
	if err != nil {
		if errors.Is(err, domain.ErrTerminalStatus) {
			// Providers redeliver webhooks; a settled payment is not an error.
			respondJSON(s.logger, w, http.StatusOK, map[string]string{"result": "ignored"})
			return
		}
		s.serverError(w, "update payment status", err)
		return
	}

	s.logger.WithFields(logging.Fields{
		"event":      "webhook_applied",
		"payment_id": updated.ID,
		"status":     updated.Status,
	}).Info("payment webhook applied")

	s.afterStatusChange(r, updated)
	respondJSON(s.logger, w, http.StatusOK, map[string]string{"result": "ok"})
}

func (s *Server) lookupNotifiedPayment(r *http.Request, notification gateway.Notification) (domain.Payment, error) {
	ctx := r.Context()

	if notification.PaymentID != "" {
		payment, err := s.deps.Payments.GetByID(ctx, notification.PaymentID)
		if err == nil {
			return payment, nil
		}
		if !errors.Is(err, domain.ErrNotFound) || notification.InvoiceID == "" {
			return domain.Payment{}, err
		}
	}

	return s.deps.Payments.GetByInvoice(ctx, notification.InvoiceID)
}

func (s *Server) serverError(w http.ResponseWriter, action string, err error) {
	s.logger.WithField("event", "api_error").WithError(err).Errorf("failed to %s", action)
	respondError(s.logger, w, http.StatusInternalServerError, "internal error")
}

func respondJSON(logger *logrus.Entry, w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithField("event", "api_write_error").WithError(err).Error("failed to encode response")
	}
}

func respondError(logger *logrus.Entry, w http.ResponseWriter, status int, message string) {
	respondJSON(logger, w, status, map[string]string{"error": message})
}
