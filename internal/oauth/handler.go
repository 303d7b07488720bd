package oauth

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

// Handler serves delegated tokens to the browser.
type Handler struct {
	minter  TokenMinter
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewHandler(minter TokenMinter, logger *zap.SugaredLogger, m *metrics.Metrics) *Handler {
	return &Handler{minter: minter, logger: logger, metrics: m}
}

// TokenResponse is the body of a successful mint.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// GoogleToken mints a fresh spreadsheet-scoped token. Failure detail stays in
// the log.
func (h *Handler) GoogleToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.minter.Mint(r.Context())
	if err != nil {
		if errors.Is(err, apperr.ErrConfiguration) {
			h.logger.Errorw("service account not configured", "err", err)
			h.metrics.DelegatedMints.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
			utilities.WriteError(w, apperr.Status(err), "Service account credentials not configured")
			return
		}
		h.logger.Errorw("delegated token exchange failed", "err", err)
		h.metrics.DelegatedMints.WithLabelValues(metrics.OutcomeError).Inc()
		utilities.WriteError(w, apperr.Status(err), "Failed to generate access token")
		return
	}

	h.metrics.DelegatedMints.WithLabelValues(metrics.OutcomeSuccess).Inc()
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	utilities.WriteJSON(w, http.StatusOK, TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tokenType,
		ExpiresAt:   tok.Expiry,
	})
}
