package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/nzskirting/orderdesk/pkg/circuitbreaker"
	"github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// WebhookClient forwards submissions to an external automation endpoint.
// One attempt per call; a breaker stops calls to an endpoint that keeps failing.
type WebhookClient struct {
	url        string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     logger.Logger
}

// NewWebhookClient creates a client for url. An empty url yields a client
// whose Send is a no-op.
func NewWebhookClient(name, url string, timeout time.Duration, logger logger.Logger) *WebhookClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &WebhookClient{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             name,
			FailureThreshold: 5,
			ResetTimeout:     time.Minute,
			HalfOpenMaxCalls: 1,
		}),
		logger: logger,
	}
}

// Enabled reports whether a target URL is configured
func (c *WebhookClient) Enabled() bool {
	return c.url != ""
}

// Breaker exposes the client's circuit breaker
func (c *WebhookClient) Breaker() *circuitbreaker.CircuitBreaker {
	return c.breaker
}

// Send POSTs payload as JSON
func (c *WebhookClient) Send(ctx context.Context, payload interface{}) error {
	if !c.Enabled() {
		return nil
	}

	body, err := json.Marshal(payload)

	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to marshal webhook payload: %v", err))
	}

	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.post(ctx, body)
	})
}

func (c *WebhookClient) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))

	if err != nil {
		return errors.NewInternalError(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)

	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return errors.NewTimeoutError("webhook request timed out")
		}
		return errors.NewUpstreamError(fmt.Sprintf("failed to make request: %v", err), http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.NewUpstreamError(
			fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(text)),
			resp.StatusCode,
		)
	}

	c.logger.Debug("Webhook delivered", "status", resp.StatusCode)
	return nil
}
