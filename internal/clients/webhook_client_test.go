package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nzskirting/orderdesk/pkg/circuitbreaker"
	"github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookClient_Send(t *testing.T) {
	var got map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	c := NewWebhookClient("orders", server.URL, time.Second, logger.NewNop())

	require.NoError(t, c.Send(context.Background(), map[string]string{"order_number": "NZO-2025-000001"}))
	assert.Equal(t, "NZO-2025-000001", got["order_number"])
}

func TestWebhookClient_DisabledIsNoop(t *testing.T) {
	c := NewWebhookClient("orders", "", 0, logger.NewNop())

	assert.False(t, c.Enabled())
	assert.NoError(t, c.Send(context.Background(), map[string]string{}))
}

func TestWebhookClient_NoRetryAndBreakerOpens(t *testing.T) {
	calls := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewWebhookClient("contact", server.URL, time.Second, logger.NewNop())

	for i := 0; i < 5; i++ {
		err := c.Send(context.Background(), map[string]string{})
		assert.ErrorIs(t, err, errors.ErrUpstream)
		assert.Equal(t, http.StatusInternalServerError, errors.StatusCode(err))
	}
	assert.Equal(t, 5, calls, "one attempt per send")

	err := c.Send(context.Background(), map[string]string{})
	assert.ErrorIs(t, err, errors.ErrCircuitOpen)
	assert.Equal(t, 5, calls)
	assert.Equal(t, circuitbreaker.StateOpen, c.Breaker().State())
}
