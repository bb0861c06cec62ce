// Package gateway talks to the Evolution API instance that fronts WhatsApp.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/julioamaral/juliobot/pkg/logging"
)

var sendTracer = otel.Tracer("juliobot.internal.gateway.send")

// StatusError is reported when the send never reached the provider; HTTP
// responses surface their status code verbatim instead.
const StatusError = "error"

// Client posts text messages through the Evolution API sendText endpoint.
type Client struct {
	base       string
	apiKey     string
	instance   string
	httpClient *http.Client
	logger     *logging.Logger
}

// New builds a gateway client. base is the Evolution API root URL.
func New(base, apiKey, instance string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		base:     strings.TrimRight(base, "/"),
		apiKey:   apiKey,
		instance: instance,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		logger: logger,
	}
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText delivers one outbound message and returns the provider status:
// the HTTP status code as text, or "error" when the call never completed.
// It deliberately does not return an error so one failed delivery cannot
// abort the rest of a batch.
func (c *Client) SendText(ctx context.Context, number, text string) string {
	ctx, span := sendTracer.Start(ctx, "gateway.send_text")
	defer span.End()
	span.SetAttributes(attribute.String("juliobot.to", number))

	body, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		span.RecordError(err)
		c.logger.Error("failed to marshal sendText payload", "error", err)
		return StatusError
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.base, c.instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		c.logger.Error("failed to build sendText request", "error", err)
		return StatusError
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("sendText call failed", "error", err, "to", number)
		return StatusError
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
	c.logger.Info("sendText reply",
		"to", number,
		"status", resp.StatusCode,
		"body", string(respBody),
	)
	return strconv.Itoa(resp.StatusCode)
}
