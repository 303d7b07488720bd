package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

const LimitedMessage = "Too many login attempts, please try again later"

// ClientAddress returns the address attempts are counted against. With
// trustProxy the left-most X-Forwarded-For entry wins.
func ClientAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware admits each request through l before calling next. Every
// response carries RateLimit-* headers; rejected ones also get Retry-After
// and a 429. onLimited may be nil.
func Middleware(l *Limiter, trustProxy bool, onLimited func(r *http.Request, addr string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := ClientAddress(r, trustProxy)
			d := l.Admit(addr)

			reset := secondsUntil(d.Reset, l.now())
			w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(reset))

			if err := d.Err(); err != nil {
				if onLimited != nil {
					onLimited(r, addr)
				}
				w.Header().Set("Retry-After", strconv.Itoa(reset))
				utilities.WriteError(w, apperr.Status(err), LimitedMessage)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func secondsUntil(t, now time.Time) int {
	s := int(math.Ceil(t.Sub(now).Seconds()))
	if s < 0 {
		return 0
	}
	return s
}
