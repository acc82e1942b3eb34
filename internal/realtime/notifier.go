package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// Toast is what the admin panel shows for a new order or inquiry
type Toast struct {
	Table     string    `json:"table"`
	RecordID  string    `json:"record_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Sound     bool      `json:"sound"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier observes inserts on orders and inquiries and fans toasts out to
// connected admin browsers. It never writes state.
type Notifier struct {
	source Source
	logger logger.Logger

	mu           sync.Mutex
	started      bool
	unsubscribes []func()
	onEvent      func(Toast)

	subMu       sync.RWMutex
	subscribers map[chan Toast]struct{}
}

func NewNotifier(source Source, logger logger.Logger) *Notifier {
	return &Notifier{
		source:      source,
		logger:      logger,
		subscribers: make(map[chan Toast]struct{}),
	}
}

// Start subscribes to the orders and inquiries feeds once. Calling Start again
// before Stop is a no-op.
func (n *Notifier) Start(onEvent func(Toast)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.started {
		return nil
	}

	var unsubscribes []func()

	for _, table := range []string{models.AggregateOrder, models.AggregateInquiry} {
		unsubscribe, err := n.source.Subscribe(table, n.handle)

		if err != nil {
			for _, u := range unsubscribes {
				u()
			}
			return fmt.Errorf("failed to subscribe to %s: %w", table, err)
		}

		unsubscribes = append(unsubscribes, unsubscribe)
	}

	n.started = true
	n.unsubscribes = unsubscribes
	n.onEvent = onEvent

	n.logger.Info("Realtime notifier started")
	return nil
}

// Stop tears down both subscriptions
func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return
	}

	for _, unsubscribe := range n.unsubscribes {
		unsubscribe()
	}

	n.started = false
	n.unsubscribes = nil
	n.onEvent = nil

	n.logger.Info("Realtime notifier stopped")
}

// Subscribe registers an admin browser. The channel is closed when ctx ends.
func (n *Notifier) Subscribe(ctx context.Context) <-chan Toast {
	ch := make(chan Toast, 16)

	n.subMu.Lock()
	n.subscribers[ch] = struct{}{}
	n.subMu.Unlock()

	go func() {
		<-ctx.Done()

		n.subMu.Lock()
		delete(n.subscribers, ch)
		close(ch)
		n.subMu.Unlock()
	}()

	return ch
}

func (n *Notifier) handle(ctx context.Context, event models.InsertEvent) {
	toast, err := BuildToast(event)

	if err != nil {
		n.logger.Warn("Skipping undecodable realtime event", "error", err, "table", event.Table)
		return
	}

	n.broadcast(toast)

	n.mu.Lock()
	onEvent := n.onEvent
	n.mu.Unlock()

	if onEvent != nil {
		onEvent(toast)
	}
}

func (n *Notifier) broadcast(toast Toast) {
	n.subMu.RLock()
	defer n.subMu.RUnlock()

	for ch := range n.subscribers {
		select {
		case ch <- toast:
		default:
			n.logger.Warn("Dropping toast for slow subscriber", "recordID", toast.RecordID)
		}
	}
}

// BuildToast renders the toast for an insert event
func BuildToast(event models.InsertEvent) (Toast, error) {
	toast := Toast{
		Table:     event.Table,
		RecordID:  event.RecordID,
		Sound:     true,
		CreatedAt: event.OccurredAt,
	}

	switch event.Table {
	case models.AggregateOrder:
		var order models.Order
		if err := json.Unmarshal(event.Record, &order); err != nil {
			return Toast{}, err
		}
		toast.Title = "New order"
		toast.Message = fmt.Sprintf("%s from %s ($%.2f)", order.OrderNumber, order.CustomerName, order.TotalAmount)

	case models.AggregateInquiry:
		var inquiry models.Inquiry
		if err := json.Unmarshal(event.Record, &inquiry); err != nil {
			return Toast{}, err
		}
		toast.Title = "New inquiry"
		toast.Message = fmt.Sprintf("%s (%s)", inquiry.FullName(), inquiry.Service)

	default:
		return Toast{}, fmt.Errorf("unexpected table %q", event.Table)
	}

	return toast, nil
}
