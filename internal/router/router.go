// Package router mounts every HTTP endpoint of the expense service on a chi
// router and wraps it with the shared middleware.
package router

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/csrf"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/envinfo"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/sheet"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

// Deps are the constructed components the routes dispatch to.
type Deps struct {
	Config  *config.Config
	Logger  *zap.SugaredLogger
	Metrics *metrics.Metrics
	Auth    *auth.Service
	Limiter *ratelimit.Limiter
	Minter  oauth.TokenMinter
	Sheets  sheet.Gateway
	CSRF    *csrf.Guard
}

// RegisterRoutes builds the complete handler.
func RegisterRoutes(d Deps) http.Handler {
	cfg := d.Config
	r := chi.NewRouter()
	r.Use(
		RequestIDMiddleware,
		LoggingMiddleware(d.Logger),
		RecoverMiddleware(d.Logger),
		SecurityHeadersMiddleware(),
		CORSMiddleware(cfg.HTTP.CORSOrigins),
	)

	gate := auth.Gate(d.Auth, d.Logger, d.Metrics)
	limited := ratelimit.Middleware(d.Limiter, cfg.HTTP.TrustProxy, func(req *http.Request, addr string) {
		d.Metrics.RateLimited.Inc()
		d.Logger.Warnw("login rate limited", "addr", addr, "request_id", RequestIDFrom(req.Context()))
	})

	authHandler := auth.NewHandler(d.Auth, d.Logger, d.Metrics)
	tokenHandler := oauth.NewHandler(d.Minter, d.Logger, d.Metrics)
	sheetHandler := sheet.NewHandler(d.Sheets, d.Logger, d.Metrics)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		utilities.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Get("/api/csrf-token", d.CSRF.Token)
	r.With(limited, d.CSRF.Protect).Post("/api/auth/login", authHandler.Login)

	if cfg.Google.RequireSession {
		r.With(gate).Post("/api/auth/google-token", tokenHandler.GoogleToken)
	} else {
		d.Logger.Warn("google-token endpoint is not behind the session gate")
		r.Post("/api/auth/google-token", tokenHandler.GoogleToken)
	}

	r.Group(func(r chi.Router) {
		r.Use(gate)
		r.Get("/api/protected", authHandler.Protected)
		r.Get("/api/options", sheetHandler.Options)
		r.With(d.CSRF.Protect).Post("/api/expenses", sheetHandler.Append)
	})

	if !cfg.IsProduction() {
		r.Get("/api/env-info", envinfo.NewHandler(cfg, d.Logger).Get)
	}

	r.NotFound(notFound(cfg))
	return r
}

// notFound answers unknown /api paths with JSON. In production every other
// path is served from the static directory with an index.html fallback.
func notFound(cfg *config.Config) http.HandlerFunc {
	var spa http.Handler
	if cfg.IsProduction() {
		spa = SPAHandler(cfg.HTTP.StaticDir)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if spa == nil || strings.HasPrefix(r.URL.Path, "/api/") || r.URL.Path == "/api" {
			utilities.WriteError(w, http.StatusNotFound, "Not found")
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			utilities.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		spa.ServeHTTP(w, r)
	}
}

// SPAHandler serves files from dir and falls back to dir/index.html for
// any path that is not an existing file.
func SPAHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := path.Clean("/" + r.URL.Path)
		fi, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		if err != nil || fi.IsDir() {
			http.ServeFile(w, r, index)
			return
		}
		files.ServeHTTP(w, r)
	})
}
