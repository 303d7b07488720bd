// Package envinfo serves a redacted view of the running configuration for
// the development frontend. It is never mounted in production.
package envinfo

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

// Summary is the response body. The private key is reduced to a flag.
type Summary struct {
	AppEnv                      string   `json:"APP_ENV"`
	Port                        string   `json:"PORT"`
	SpreadsheetID               string   `json:"SPREADSHEET_ID"`
	ServiceAccountEmail         string   `json:"SERVICE_ACCOUNT_EMAIL"`
	HasServiceAccountPrivateKey bool     `json:"HAS_SERVICE_ACCOUNT_PRIVATE_KEY"`
	AuthConfigured              bool     `json:"AUTH_CONFIGURED"`
	LoadedEnvFiles              []string `json:"LOADED_ENV_FILES"`
}

// Summarize builds the redacted view of cfg.
func Summarize(cfg *config.Config) Summary {
	files := cfg.LoadedEnvFiles
	if files == nil {
		files = []string{}
	}
	return Summary{
		AppEnv:                      cfg.Env,
		Port:                        cfg.HTTP.Port,
		SpreadsheetID:               cfg.Sheet.SpreadsheetID,
		ServiceAccountEmail:         cfg.Google.ServiceAccountEmail,
		HasServiceAccountPrivateKey: cfg.Google.ServiceAccountPrivateKey != "",
		AuthConfigured:              cfg.Auth.Configured(),
		LoadedEnvFiles:              files,
	}
}

// Handler contains dependencies for the env-info endpoint.
type Handler struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func NewHandler(cfg *config.Config, logger *zap.SugaredLogger) *Handler {
	return &Handler{cfg: cfg, logger: logger}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	h.logger.Debugw("env info requested", "remote", r.RemoteAddr)
	utilities.WriteJSON(w, http.StatusOK, Summarize(h.cfg))
}
