package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the session gate.
func PrincipalFrom(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < len("bearer ") || !strings.EqualFold(h[:len("bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[len("bearer "):])
}

// Gate returns the session gate middleware. Missing token is 401, any
// verification failure is 403 with one message.
func Gate(svc *Service, logger *zap.SugaredLogger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := svc.Authenticate(BearerToken(r))
			if err != nil {
				var msg string
				switch {
				case errors.Is(err, ErrMissingToken):
					msg = MsgMissingToken
					m.SessionChecks.WithLabelValues("missing").Inc()
				case errors.Is(err, ErrNotConfigured):
					msg = MsgNotConfigured
					logger.Errorw("session gate unavailable", "err", err)
					m.SessionChecks.WithLabelValues(metrics.OutcomeNotConfigured).Inc()
				default:
					msg = MsgInvalidToken
					logger.Debugw("session rejected", "path", r.URL.Path, "err", err)
					m.SessionChecks.WithLabelValues(metrics.OutcomeInvalid).Inc()
				}
				utilities.WriteError(w, apperr.Status(err), msg)
				return
			}
			m.SessionChecks.WithLabelValues(metrics.OutcomeSuccess).Inc()
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
