package api

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nzskirting/orderdesk/internal/clients"
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/notify"
	"github.com/nzskirting/orderdesk/internal/repository"
	"github.com/nzskirting/orderdesk/internal/service"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryOrders keeps created orders in memory
type memoryOrders struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (m *memoryOrders) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = append(m.orders, order)
	return nil
}

func (m *memoryOrders) GetByID(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memoryOrders) List(ctx context.Context, filter repository.ListFilter) ([]*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.Order(nil), m.orders...), nil
}

func (m *memoryOrders) ApplyUpdate(ctx context.Context, id string, changes []repository.Change) (*models.Order, error) {
	return m.GetByID(ctx, id)
}

func (m *memoryOrders) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// hangingUpstream accepts requests and never answers them
func hangingUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	release := make(chan struct{})
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	t.Cleanup(upstream.Close)
	t.Cleanup(func() { close(release) })

	return upstream
}

func TestCreateOrder_SlowProvidersStillAnswerCreated(t *testing.T) {
	upstream := hangingUpstream(t)
	log := logger.NewNop()

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			WriteTimeout:     2 * time.Second,
			SideEffectBudget: 300 * time.Millisecond,
		},
		Email: config.EmailConfig{
			Provider:        notify.ProviderResend,
			APIKey:          "re_test",
			APIURL:          upstream.URL,
			From:            "orders@example.com",
			OrderRecipients: []string{"orders@example.com"},
		},
	}

	orders := &memoryOrders{}
	intake := service.NewIntakeService(service.IntakeConfig{
		Orders:    orders,
		Mailer:    notify.NewDispatcher(cfg.Email, log),
		OrderHook: clients.NewWebhookClient("order-webhook", upstream.URL, 10*time.Second, log),
		Email:     cfg.Email,

		SideEffectBudget: cfg.HTTP.SideEffectBudget,
	}, log)

	s := newServer(cfg, Dependencies{Intake: intake}, log)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.httpServer.Serve(ln)
	t.Cleanup(func() { s.httpServer.Close() })

	body := `{
		"customer_name": "Aroha",
		"customer_email": "aroha@example.co.nz",
		"customer_phone": "021 555 0101",
		"items": [{"product_name": "Oak", "unit_price": 30, "length": 2, "quantity": 1}]
	}`

	start := time.Now()
	resp, err := http.Post("http://"+ln.Addr().String()+"/api/v1/orders", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Less(t, time.Since(start), cfg.HTTP.WriteTimeout)
	assert.Equal(t, 1, orders.count())
}
