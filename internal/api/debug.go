package api

import (
	"net/http"
	"time"

	"taptimise/internal/buildinfo"
)

// DebugJSON reports build stamps and the effective non-secret settings.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	c := s.Cfg
	writeJSON(w, http.StatusOK, map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"port":                 c.Server.Port,
			"rateRps":              c.Server.RateRPS,
			"rateBurst":            c.Server.RateBurst,
			"maxPoints":            c.Server.MaxPoints,
			"workers":              c.Server.Workers,
			"webhookMaxAttempts":   c.Webhooks.MaxAttempts,
			"hasWebhookSecret":     c.Webhooks.Secret != "",
			"hasDatabaseUrl":       c.Store.DatabaseURL != "",
			"hasRedisUrl":          c.Server.RedisURL != "",
			"logLevel":             c.Log.Level,
			"optimizerTimeout":     c.Optimizer.Timeout.String(),
			"optimizerStepsPerRun": c.Optimizer.Steps,
		},
	})
}
