// Package handlers implements the HTTP handlers for the chatrelay server:
// the webhook entry point, configuration introspection, health, monitoring
// and the debug endpoints.
package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/obs"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/relay"
)

// maxBodyBytes bounds inbound webhook bodies.
const maxBodyBytes = 1 << 20

// Handlers holds all handler dependencies.
type Handlers struct {
	Cfg        *config.Config
	Relay      *relay.Relay
	Dispatcher relay.AIDispatcher
	Sink       *obs.Sink
}

// New creates a Handlers instance.
func New(cfg *config.Config, rl *relay.Relay, d relay.AIDispatcher, sink *obs.Sink) *Handlers {
	return &Handlers{Cfg: cfg, Relay: rl, Dispatcher: d, Sink: sink}
}

// ── Webhook ──────────────────────────────────────────────────

// HandleWebhook is POST /webhook: the relay entry point.
func (h *Handlers) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":   false,
			"error":     "unreadable request body",
			"details":   err.Error(),
			"timestamp": now(),
		})
		return
	}

	resp, status := h.Relay.Route(r.Context(), raw)
	respondJSON(w, status, resp)
}

// WebhookInfo is GET /webhook: configuration introspection. Secret tokens are
// never returned.
func (h *Handlers) WebhookInfo(w http.ResponseWriter, r *http.Request) {
	desc := provider.Resolve(h.Cfg.AI.Provider, h.Cfg.AI.URL)

	model := h.Cfg.AI.Model
	if model == "" {
		model = desc.DefaultModel()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ai_configured":       h.Cfg.AI.Configured(),
		"chatwoot_configured": h.Cfg.Chatwoot.Configured(),
		"provider":            desc.Name(),
		"model":               model,
		"supported_models":    desc.SupportedModels(),
		"supported_events":    event.KnownTypes(),
		"system_prompt":       h.Cfg.AI.SystemPrompt,
		"max_tokens":          h.Cfg.AI.MaxTokens,
		"temperature":         h.Cfg.AI.Temperature,
	})
}

// ── Health & version ─────────────────────────────────────────

// Health is GET /health: a static liveness payload. Aggregated operator
// health lives under /monitoring?action=health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "chatrelay",
		"version":   h.Cfg.Version,
		"timestamp": now(),
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"service": "chatrelay",
		"version": h.Cfg.Version,
	})
}

// ── Monitoring ───────────────────────────────────────────────

// Monitoring is GET /monitoring?action=metrics|logs|health, the read side of
// the observability sink. logs accepts limit, level and event filters.
func (h *Handlers) Monitoring(w http.ResponseWriter, r *http.Request) {
	action := r.URL.Query().Get("action")
	if action == "" {
		action = "metrics"
	}

	switch action {
	case "metrics":
		respondData(w, http.StatusOK, h.Sink.Metrics())

	case "logs":
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				limit = n
			}
		}
		level := obs.Level(r.URL.Query().Get("level"))
		respondData(w, http.StatusOK, h.Sink.Logs(limit, level, r.URL.Query().Get("event")))

	case "health":
		health := h.Sink.Health()
		status := http.StatusOK
		if health.Status == "error" {
			status = http.StatusInternalServerError
		}
		respondData(w, status, health)

	default:
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":           false,
			"error":             "unsupported action",
			"supported_actions": []string{"metrics", "logs", "health"},
		})
	}
}

// MonitoringReset is DELETE /monitoring?action=logs|metrics: manual operator
// reset of sink state.
func (h *Handlers) MonitoringReset(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("action") {
	case "logs":
		h.Sink.ClearLogs()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "logs cleared",
			"timestamp": now(),
		})

	case "metrics":
		h.Sink.ResetMetrics()
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"message":   "metrics reset",
			"timestamp": now(),
		})

	default:
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":           false,
			"error":             "unsupported action",
			"supported_actions": []string{"logs", "metrics"},
		})
	}
}

// ── Debug ────────────────────────────────────────────────────

// Debug is GET /debug: diagnostics showing which options are set without
// echoing any secret values.
func (h *Handlers) Debug(w http.ResponseWriter, r *http.Request) {
	desc := provider.Resolve(h.Cfg.AI.Provider, h.Cfg.AI.URL)

	providerSetting := h.Cfg.AI.Provider
	if providerSetting == "" {
		providerSetting = "auto-detect"
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"timestamp": now(),
		"environment": map[string]interface{}{
			"has_ai_url":         h.Cfg.AI.URL != "",
			"has_ai_token":       h.Cfg.AI.Token != "",
			"has_chatwoot_url":   h.Cfg.Chatwoot.BaseURL != "",
			"has_chatwoot_token": h.Cfg.Chatwoot.BotToken != "",
			"ai_provider":        providerSetting,
			"ai_model":           h.Cfg.AI.Model,
		},
		"provider": map[string]interface{}{
			"name":             desc.Name(),
			"base_url":         desc.BaseURL(),
			"default_model":    desc.DefaultModel(),
			"supported_models": desc.SupportedModels(),
		},
		"chatwoot": map[string]interface{}{
			"api_path_template": "/api/v1/accounts/{account_id}/conversations/{conversation_id}/messages",
			"note":              "account_id comes from the webhook payload's account.id field",
		},
	})
}

// DebugTest is POST /debug: runs a single AI call with a caller-supplied
// message against the configured provider.
func (h *Handlers) DebugTest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success": false,
			"error":   "request must include a non-empty 'message' field",
		})
		return
	}

	start := time.Now()
	res := h.Dispatcher.Dispatch(r.Context(), req.Message, provider.Config{
		Endpoint:     h.Cfg.AI.URL,
		Token:        h.Cfg.AI.Token,
		SystemPrompt: h.Cfg.AI.SystemPrompt,
		Provider:     h.Cfg.AI.Provider,
		Model:        h.Cfg.AI.Model,
		MaxTokens:    h.Cfg.AI.MaxTokens,
		Temperature:  h.Cfg.AI.Temperature,
	})

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"ai_response": res,
		"duration_ms": time.Since(start).Milliseconds(),
		"timestamp":   now(),
	})
}

// ── Helpers ──────────────────────────────────────────────────

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondData wraps sink payloads in the monitoring envelope.
func respondData(w http.ResponseWriter, status int, data interface{}) {
	respondJSON(w, status, map[string]interface{}{
		"success":   status < 400,
		"data":      data,
		"timestamp": now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
