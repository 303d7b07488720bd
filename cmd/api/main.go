package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/csrf"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/ratelimit"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/sheet"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

func main() {
	// seed the environment from .env files; real env vars always win
	loaded, envErr := config.LoadEnvFiles(".", os.Getenv("APP_ENV"))

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	if envErr != nil {
		sugar.Warnw("env file load failed", "err", envErr)
	}

	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("config: %v", err)
	}
	cfg.LoadedEnvFiles = loaded

	lifetime, _ := cfg.Auth.TokenLifetime() // validated by Load

	sugar.Infow("starting service-expense-go", "env", cfg.Env, "env_files", loaded)
	sugar.Infof("Auth: %s", status(cfg.Auth.Configured()))
	sugar.Infof("Spreadsheet ID: %s", status(cfg.Sheet.SpreadsheetID != ""))
	sugar.Infof("Service Account Email: %s", status(cfg.Google.ServiceAccountEmail != ""))
	sugar.Infof("Service Account Private Key: %s", status(cfg.Google.ServiceAccountPrivateKey != ""))

	m := metrics.New()
	minter := oauth.NewMinter(oauth.Options{
		Email:      cfg.Google.ServiceAccountEmail,
		PrivateKey: cfg.Google.ServiceAccountPrivateKey,
		Scopes:     []string{config.SpreadsheetsScope},
		TokenURL:   cfg.Google.TokenURL,
		Timeout:    cfg.Google.TokenTimeout,
	})

	handler := router.RegisterRoutes(router.Deps{
		Config:  cfg,
		Logger:  sugar,
		Metrics: m,
		Auth: auth.NewService(auth.Options{
			Username:     cfg.Auth.Username,
			PasswordHash: cfg.Auth.PasswordHash,
			Secret:       cfg.Auth.JWTSecret,
			Lifetime:     lifetime,
		}),
		Limiter: ratelimit.New(cfg.RateLimit.MaxLoginAttempts, cfg.RateLimit.Window()),
		Minter:  minter,
		Sheets: sheet.NewService(sheet.ServiceOptions{
			SpreadsheetID:   cfg.Sheet.SpreadsheetID,
			Endpoint:        cfg.Sheet.Endpoint,
			CategoriesRange: cfg.Sheet.CategoriesRange,
			AuthorsRange:    cfg.Sheet.AuthorsRange,
			ExpensesRange:   cfg.Sheet.ExpensesRange,
			WriteID:         cfg.Sheet.WriteID,
			Minter:          minter,
			IDs:             utilities.NewIDGeneratorFromEnv(),
		}),
		CSRF: csrf.New(csrf.Config{Enabled: cfg.CSRF.Enabled, Secure: cfg.CSRF.Secure}, sugar),
	})

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	sugar.Infow("server is running", "addr", srv.Addr)

	<-ctx.Done()

	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}

func status(ok bool) string {
	if ok {
		return "configured"
	}
	return "missing"
}
