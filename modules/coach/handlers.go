package coach

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wodworks/coachkit/pkg/credits"
	"github.com/wodworks/coachkit/pkg/entitlement"
	"github.com/wodworks/coachkit/pkg/ledger"
	"github.com/wodworks/coachkit/pkg/trial"
	coachsvc "github.com/wodworks/coachkit/svc/coach"
)

// CreditReader is the slice of the credit engine the read endpoints need.
type CreditReader interface {
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]ledger.Entry, error)
}

// TrialManager is the trial surface the module mounts.
type TrialManager interface {
	Start(ctx context.Context, userID uuid.UUID, planID string) (*trial.Trial, error)
	Status(ctx context.Context, userID uuid.UUID, planID string) (trial.Status, error)
}

// SubscriptionService handles billing provider callbacks.
type SubscriptionService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// CreditAdmin is the back-office surface: aggregate reporting plus manual
// grants and refunds with an audit actor. Satisfied by *credits.Engine.
type CreditAdmin interface {
	Stats(ctx context.Context) (ledger.Stats, error)
	Grant(ctx context.Context, userID uuid.UUID, amount int64, reason string, metadata map[string]any) (int64, error)
	Refund(ctx context.Context, transactionID uuid.UUID, actorID string) (int64, error)
}

type handlers struct {
	coach   *coachsvc.Service
	credits CreditReader
	trials  TrialManager
	subs    SubscriptionService
	admin   CreditAdmin
}

func (h *handlers) performAction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	action := entitlement.Action(chi.URLParam(r, "action"))

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	outcome, err := h.coach.Perform(r.Context(), userID, action,
		coachsvc.GenerationRequest{Payload: payload},
		coachsvc.RequestInfo{Endpoint: r.URL.Path, Method: r.Method})
	if err != nil {
		writeActionError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"content":        json.RawMessage(outcome.Content.Content),
		"provider":       outcome.Content.Provider,
		"funded_by":      outcome.Decision.FundedBy,
		"remaining":      outcome.Decision.Remaining,
		"credits_spent":  outcome.CreditsSpent,
		"new_balance":    outcome.NewBalance,
		"transaction_id": outcome.TransactionID,
	})
}

func (h *handlers) previewAction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	action := entitlement.Action(chi.URLParam(r, "action"))

	decision, err := h.coach.Preview(r.Context(), userID, action)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, decisionPayload(decision))
}

func (h *handlers) creditBalance(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	balance, err := h.credits.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read balance")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
}

func (h *handlers) creditHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	entries, err := h.credits.History(r.Context(), userID, 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *handlers) startTrial(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	planID := chi.URLParam(r, "planID")

	t, err := h.trials.Start(r.Context(), userID, planID)
	switch {
	case errors.Is(err, trial.ErrAlreadyTrialed):
		writeError(w, http.StatusConflict, "plan already trialed")
	case errors.Is(err, trial.ErrTrialNotAvailable):
		writeError(w, http.StatusBadRequest, "plan does not offer a trial")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to start trial")
	default:
		writeJSON(w, http.StatusCreated, map[string]any{
			"plan_id":    t.PlanID,
			"started_at": t.StartedAt,
			"ends_at":    t.EndsAt,
		})
	}
}

func (h *handlers) trialStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	planID := chi.URLParam(r, "planID")

	status, err := h.trials.Status(r.Context(), userID, planID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read trial status")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_history":    status.HasHistory,
		"active":         status.Active,
		"days_remaining": status.DaysRemaining,
		"converted":      status.Converted,
	})
}

func (h *handlers) billingWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := r.Header.Get("Paddle-Signature")
	if err := h.subs.HandleWebhook(r.Context(), payload, signature); err != nil {
		writeError(w, http.StatusBadRequest, "webhook rejected")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *handlers) adminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read ledger stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total_granted":  stats.TotalGranted,
		"total_deducted": stats.TotalDeducted,
		"outstanding":    stats.Outstanding,
		"usage_records":  stats.UsageRecords,
		"credit_entries": stats.CreditEntries,
		"distinct_users": stats.DistinctUsers,
	})
}

func (h *handlers) adminGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID uuid.UUID `json:"user_id"`
		Amount int64     `json:"amount"`
		Reason string    `json:"reason"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Reason == "" {
		req.Reason = "manual_grant"
	}

	balance, err := h.admin.Grant(r.Context(), req.UserID, req.Amount, req.Reason,
		map[string]any{"actor": adminActor(r)})
	switch {
	case errors.Is(err, credits.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "amount must be a positive integer")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to grant credits")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
	}
}

func (h *handlers) adminRefund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID uuid.UUID `json:"transaction_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "transaction_id is required")
		return
	}

	balance, err := h.admin.Refund(r.Context(), req.TransactionID, adminActor(r))
	switch {
	case errors.Is(err, credits.ErrNotRefundable):
		writeError(w, http.StatusConflict, "transaction is not refundable")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to refund")
	default:
		writeJSON(w, http.StatusOK, map[string]any{"balance": balance})
	}
}

// adminActor reads the operator identity forwarded by the internal gateway.
func adminActor(r *http.Request) string {
	if actor := r.Header.Get("X-Admin-ID"); actor != "" {
		return actor
	}
	return "unknown"
}

// writeActionError maps orchestration errors onto HTTP statuses. Entitlement
// denials are expected outcomes and carry the upgrade-path context.
func writeActionError(w http.ResponseWriter, err error) {
	var denied *coachsvc.DeniedError
	if errors.As(err, &denied) {
		writeJSON(w, http.StatusPaymentRequired, decisionPayload(denied.Decision))
		return
	}

	var insufficient *credits.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":             "insufficient_credits",
			"credits_required":  insufficient.Required,
			"credits_available": insufficient.Available,
		})
		return
	}

	switch {
	case errors.Is(err, entitlement.ErrUnknownAction):
		writeError(w, http.StatusBadRequest, "unknown action")
	case errors.Is(err, coachsvc.ErrGenerationFailed):
		writeError(w, http.StatusBadGateway, "generation temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decisionPayload(d *entitlement.Decision) map[string]any {
	return map[string]any{
		"allowed":           d.Allowed,
		"funded_by":         d.FundedBy,
		"denial":            d.Denial,
		"plan_id":           d.PlanID,
		"remaining":         d.Remaining,
		"credits_required":  d.CreditsRequired,
		"credits_available": d.CreditsAvailable,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
