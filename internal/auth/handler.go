package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

const maxLoginBody = 4 << 10

// Handler exposes HTTP endpoints for operator login and the protected check endpoint.
type Handler struct {
	svc     *Service
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewHandler(svc *Service, logger *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, logger: logger, metrics: m}
}

// LoginRequest login payload.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token.
type LoginResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ProtectedResponse echoes the authenticated principal.
type ProtectedResponse struct {
	Success bool       `json:"success"`
	User    *Principal `json:"user"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxLoginBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// blank fields go through Issue like any other wrong pair
	tok, err := h.svc.Issue(strings.TrimSpace(req.Username), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotConfigured):
			h.logger.Errorw("login unavailable", "err", err)
			h.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
			utilities.WriteError(w, apperr.Status(err), MsgNotConfigured)
		case errors.Is(err, ErrBadCredentials):
			h.logger.Infow("login failed", "remote", r.RemoteAddr, "err", err)
			h.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeInvalid).Inc()
			utilities.WriteError(w, apperr.Status(err), MsgBadCredentials)
		default:
			h.logger.Errorw("login error", "err", err)
			h.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeError).Inc()
			utilities.WriteError(w, http.StatusInternalServerError, MsgInternal)
		}
		return
	}

	h.metrics.LoginAttempts.WithLabelValues(metrics.OutcomeSuccess).Inc()
	h.logger.Infow("login succeeded", "remote", r.RemoteAddr, "expires_at", tok.ExpiresAt)
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{Success: true, Token: tok.Value, ExpiresAt: tok.ExpiresAt})
}

// Protected returns the principal attached by the session gate.
func (h *Handler) Protected(w http.ResponseWriter, r *http.Request) {
	p, ok := PrincipalFrom(r.Context())
	if !ok {
		utilities.WriteError(w, http.StatusUnauthorized, MsgMissingToken)
		return
	}
	utilities.WriteJSON(w, http.StatusOK, ProtectedResponse{Success: true, User: p})
}
