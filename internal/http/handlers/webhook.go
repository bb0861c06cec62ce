package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/julioamaral/juliobot/internal/conversation"
	observemetrics "github.com/julioamaral/juliobot/internal/observability/metrics"
	"github.com/julioamaral/juliobot/pkg/logging"
)

// maxBodyBytes bounds inbound webhook bodies; gateway events are small.
const maxBodyBytes = 1 << 20

type eventProcessor interface {
	ProcessEvent(ctx context.Context, envelope map[string]any) conversation.BatchResult
}

// WebhookHandler receives gateway events and drives the reply pipeline.
type WebhookHandler struct {
	responder eventProcessor
	logger    *logging.Logger
	metrics   *observemetrics.PipelineMetrics

	serviceName string
	instance    string
	baseSet     bool
	selfSet     bool
	selfTest    bool
}

// WebhookConfig wires the webhook handler.
type WebhookConfig struct {
	Responder eventProcessor
	Logger    *logging.Logger
	Metrics   *observemetrics.PipelineMetrics

	ServiceName string
	Instance    string
	BaseSet     bool
	SelfSet     bool
	SelfTest    bool
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "julio-bot"
	}
	return &WebhookHandler{
		responder:   cfg.Responder,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		serviceName: cfg.ServiceName,
		instance:    cfg.Instance,
		baseSet:     cfg.BaseSet,
		selfSet:     cfg.SelfSet,
		selfTest:    cfg.SelfTest,
	}
}

// HandlePost processes an inbound event batch. It always answers 200 with
// the per-message delivery statuses; failures live inside the replied
// array, never in the HTTP status, so the gateway does not retry-storm us.
func (h *WebhookHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.logger.Warn("failed to read webhook body", "error", err)
		body = nil
	}

	envelope := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &envelope); err != nil {
			// Unrecognized bodies are expected traffic, not errors.
			h.logger.Info("webhook body is not a JSON object", "error", err)
			envelope = map[string]any{}
		}
	}

	result := h.responder.ProcessEvent(r.Context(), envelope)
	h.metrics.ObserveWebhookLatency(time.Since(start).Seconds())

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"got":     result.Got,
		"replied": result.Replied,
	})
}

// HandleGet is the shape probe the gateway uses when registering the hook.
func (h *WebhookHandler) HandleGet(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":       true,
		"endpoint": "webhook",
	})
}

// HandleRoot reports liveness plus which knobs are configured.
func (h *WebhookHandler) HandleRoot(w http.ResponseWriter, _ *http.Request) {
	selfTest := "0"
	if h.selfTest {
		selfTest = "1"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":            true,
		"service":       h.serviceName,
		"inst":          h.instance,
		"ev_base_set":   h.baseSet,
		"my_number_set": h.selfSet,
		"self_test":     selfTest,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
