package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"subscription_reminder_bot/internal/app"
	"subscription_reminder_bot/internal/domain/subscription"
	"subscription_reminder_bot/internal/infra/paidlink"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type PaymentMarker interface {
	MarkAsPaid(ctx context.Context, userID int64, id uuid.UUID, expected *time.Time) (*subscription.Subscription, error)
}

type TokenVerifier interface {
	Verify(token string) (*paidlink.Claims, error)
}

type SweepRunner interface {
	RunOnce(ctx context.Context) (app.SweepResult, error)
}

type PaymentCounter interface {
	IncPaymentMarked()
}

// Handler serves the public endpoints: mark-as-paid links, the external cron
// trigger, health and metrics.
type Handler struct {
	payments   PaymentMarker
	tokens     TokenVerifier
	sweeper    SweepRunner
	counter    PaymentCounter
	cronSecret string
	logger     *logrus.Entry
}

func NewHandler(payments PaymentMarker, tokens TokenVerifier, sweeper SweepRunner, counter PaymentCounter, cronSecret string, logger *logrus.Entry) *Handler {
	return &Handler{
		payments:   payments,
		tokens:     tokens,
		sweeper:    sweeper,
		counter:    counter,
		cronSecret: cronSecret,
		logger:     logger,
	}
}

// NewRouter wires the handler and the metrics registry onto a mux router.
func NewRouter(h *Handler, registry *prometheus.Registry) *mux.Router {
	router := mux.NewRouter()
	router.Use(h.loggingMiddleware)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/mark-as-paid", h.MarkAsPaid).Methods(http.MethodGet)
	api.HandleFunc("/cron", h.Cron).Methods(http.MethodGet, http.MethodPost)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return router
}

type markAsPaidResponse struct {
	SubscriptionID  uuid.UUID  `json:"subscriptionId"`
	Enabled         bool       `json:"enabled"`
	NextPaymentDate *time.Time `json:"nextPaymentDate,omitempty"`
}

// MarkAsPaid confirms the payment a signed link was issued for.
func (h *Handler) MarkAsPaid(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondWithError(w, http.StatusBadRequest, errors.New("missing token"))
		return
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		h.logger.WithError(err).Warn("Rejected mark-as-paid token")
		respondWithError(w, http.StatusUnauthorized, paidlink.ErrInvalidToken)
		return
	}

	expected := claims.PaymentDate
	sub, err := h.payments.MarkAsPaid(r.Context(), claims.UserID, claims.SubscriptionID, &expected)
	if err != nil {
		switch {
		case errors.Is(err, subscription.ErrNotFound), errors.Is(err, app.ErrNotOwner):
			respondWithError(w, http.StatusNotFound, subscription.ErrNotFound)
		case errors.Is(err, app.ErrStalePayment):
			respondWithError(w, http.StatusConflict, errors.New("this payment was already marked as paid"))
		default:
			h.logger.WithError(err).Error("Failed to mark subscription as paid")
			respondWithError(w, http.StatusInternalServerError, errors.New("internal error"))
		}
		return
	}
	if h.counter != nil {
		h.counter.IncPaymentMarked()
	}

	resp := markAsPaidResponse{SubscriptionID: sub.ID, Enabled: sub.Enabled}
	if sub.Enabled {
		next := sub.PaymentDate
		resp.NextPaymentDate = &next
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// Cron runs one sweep when called with the configured bearer secret.
func (h *Handler) Cron(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		respondWithError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	auth := r.Header.Get("Authorization")
	got, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(h.cronSecret)) != 1 {
		respondWithError(w, http.StatusUnauthorized, errors.New("unauthorized"))
		return
	}

	res, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Sweep triggered over HTTP failed")
		respondWithError(w, http.StatusInternalServerError, errors.New("sweep failed"))
		return
	}
	respondWithJSON(w, http.StatusOK, res)
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("HTTP request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, code int, err error) {
	respondWithJSON(w, code, map[string]string{"error": err.Error()})
}
