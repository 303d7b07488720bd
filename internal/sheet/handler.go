package sheet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

const maxExpenseBody = 8 << 10

// Gateway is the part of Service the handlers need.
type Gateway interface {
	Options(ctx context.Context) (*Options, error)
	Append(ctx context.Context, e Expense) (*AppendResult, error)
}

// Handler exposes the sheet gateway over HTTP.
type Handler struct {
	gw      Gateway
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewHandler(gw Gateway, logger *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	return &Handler{gw: gw, logger: logger, metrics: m, now: time.Now}
}

// OptionsResponse is the body of GET /api/options.
type OptionsResponse struct {
	Success bool `json:"success"`
	*Options
}

// AppendResponse is the body of POST /api/expenses.
type AppendResponse struct {
	Success bool `json:"success"`
	*AppendResult
}

// ValidationResponse lists field errors.
type ValidationResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors"`
}

func (h *Handler) Options(w http.ResponseWriter, r *http.Request) {
	opts, err := h.gw.Options(r.Context())
	if err != nil {
		h.fail(w, "options", err)
		return
	}
	h.metrics.SheetRequests.WithLabelValues("options", metrics.OutcomeSuccess).Inc()
	utilities.WriteJSON(w, http.StatusOK, OptionsResponse{Success: true, Options: opts})
}

func (h *Handler) Append(w http.ResponseWriter, r *http.Request) {
	var in ExpenseInput
	r.Body = http.MaxBytesReader(w, r.Body, maxExpenseBody)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		h.logger.Debugw("invalid expense payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	exp, err := in.Validate(h.now())
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			utilities.WriteJSON(w, apperr.Status(err), ValidationResponse{
				Success: false,
				Message: "Validation failed",
				Errors:  ve.Fields,
			})
			return
		}
		utilities.WriteError(w, http.StatusBadRequest, "Validation failed")
		return
	}

	res, err := h.gw.Append(r.Context(), exp)
	if err != nil {
		h.fail(w, "append", err)
		return
	}
	h.metrics.SheetRequests.WithLabelValues("append", metrics.OutcomeSuccess).Inc()

	user := ""
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		user = p.Username
	}
	h.logger.Infow("expense appended",
		"id", res.ID,
		"range", res.UpdatedRange,
		"category", exp.Category,
		"author", exp.Author,
		"user", user,
	)
	utilities.WriteJSON(w, http.StatusCreated, AppendResponse{Success: true, AppendResult: res})
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	outcome := metrics.OutcomeError
	msg := "Spreadsheet request failed"
	if errors.Is(err, apperr.ErrConfiguration) {
		outcome = metrics.OutcomeNotConfigured
		msg = "Spreadsheet access is not configured"
	}
	h.logger.Errorw("sheet gateway failed", "op", op, "err", err)
	h.metrics.SheetRequests.WithLabelValues(op, outcome).Inc()
	utilities.WriteError(w, apperr.Status(err), msg)
}
