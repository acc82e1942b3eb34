package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/notify"
	"github.com/nzskirting/orderdesk/internal/repository"
)

type fakeOrderStore struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	events      []*models.OutboxMessage
	applyCalls  int
	updateErr   error
	lastChanges []repository.Change
	onCreate    func()
}

func newFakeOrderStore(orders ...*models.Order) *fakeOrderStore {
	s := &fakeOrderStore{orders: map[string]*models.Order{}}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *fakeOrderStore) Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders[order.ID] = order
	s.events = append(s.events, event)
	if s.onCreate != nil {
		s.onCreate()
	}
	return nil
}

func (s *fakeOrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *o
	return &copied, nil
}

func (s *fakeOrderStore) List(ctx context.Context, filter repository.ListFilter) ([]*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Order
	for _, o := range s.orders {
		if filter.Status == "" || string(o.Status) == filter.Status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeOrderStore) ApplyUpdate(ctx context.Context, id string, changes []repository.Change) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.applyCalls++
	s.lastChanges = changes

	if s.updateErr != nil {
		return nil, s.updateErr
	}

	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	updated := *o
	for _, c := range changes {
		switch c.Column {
		case "status":
			updated.Status = c.Value.(models.OrderStatus)
		case "payment_status":
			updated.PaymentStatus = c.Value.(models.PaymentStatus)
		case "amount_paid":
			updated.AmountPaid = c.Value.(*float64)
		case "payment_method":
			updated.PaymentMethod = c.Value.(*string)
		case "transaction_reference":
			updated.TransactionReference = c.Value.(*string)
		case "payment_date":
			updated.PaymentDate = c.Value.(*models.Date)
		case "payment_notes":
			updated.PaymentNotes = c.Value.(*string)
		case "admin_notes":
			updated.AdminNotes = c.Value.(*string)
		case "contacted_at":
			ts := c.Value.(time.Time)
			updated.ContactedAt = &ts
		case "confirmed_at":
			ts := c.Value.(time.Time)
			updated.ConfirmedAt = &ts
		case "shipped_at":
			ts := c.Value.(time.Time)
			updated.ShippedAt = &ts
		case "delivered_at":
			ts := c.Value.(time.Time)
			updated.DeliveredAt = &ts
		case "updated_at":
			updated.UpdatedAt = c.Value.(time.Time)
		default:
			return nil, fmt.Errorf("unexpected column %s", c.Column)
		}
	}

	s.orders[id] = &updated
	copied := updated
	return &copied, nil
}

type fakeInquiryStore struct {
	inquiries  map[string]*models.Inquiry
	events     []*models.OutboxMessage
	applyCalls int
}

func newFakeInquiryStore(inquiries ...*models.Inquiry) *fakeInquiryStore {
	s := &fakeInquiryStore{inquiries: map[string]*models.Inquiry{}}
	for _, i := range inquiries {
		s.inquiries[i.ID] = i
	}
	return s
}

func (s *fakeInquiryStore) Create(ctx context.Context, inquiry *models.Inquiry, event *models.OutboxMessage) error {
	s.inquiries[inquiry.ID] = inquiry
	s.events = append(s.events, event)
	return nil
}

func (s *fakeInquiryStore) GetByID(ctx context.Context, id string) (*models.Inquiry, error) {
	i, ok := s.inquiries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return i, nil
}

func (s *fakeInquiryStore) List(ctx context.Context, filter repository.ListFilter) ([]*models.Inquiry, error) {
	var out []*models.Inquiry
	for _, i := range s.inquiries {
		out = append(out, i)
	}
	return out, nil
}

func (s *fakeInquiryStore) ApplyUpdate(ctx context.Context, id string, changes []repository.Change) (*models.Inquiry, error) {
	s.applyCalls++

	i, ok := s.inquiries[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	updated := *i
	for _, c := range changes {
		switch c.Column {
		case "status":
			updated.Status = c.Value.(models.InquiryStatus)
		case "admin_notes":
			updated.AdminNotes = c.Value.(*string)
		case "contacted_at":
			ts := c.Value.(time.Time)
			updated.ContactedAt = &ts
		case "resolved_at":
			ts := c.Value.(time.Time)
			updated.ResolvedAt = &ts
		case "updated_at":
			updated.UpdatedAt = c.Value.(time.Time)
		default:
			return nil, fmt.Errorf("unexpected column %s", c.Column)
		}
	}

	s.inquiries[id] = &updated
	return &updated, nil
}

type fakeProductStore struct {
	products map[string]*models.Product
	listErr  error
}

func newFakeProductStore(products ...*models.Product) *fakeProductStore {
	s := &fakeProductStore{products: map[string]*models.Product{}}
	for _, p := range products {
		s.products[p.ID] = p
	}
	return s
}

func (s *fakeProductStore) List(ctx context.Context, activeOnly bool) ([]*models.Product, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []*models.Product
	for _, p := range s.products {
		if !activeOnly || p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeProductStore) GetBySlug(ctx context.Context, slug string) (*models.Product, error) {
	for _, p := range s.products {
		if p.Slug == slug {
			return p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeProductStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakeProductStore) SlugsWithPrefix(ctx context.Context, base string) ([]string, error) {
	var out []string
	for _, p := range s.products {
		if p.Slug == base || strings.HasPrefix(p.Slug, base+"-") {
			out = append(out, p.Slug)
		}
	}
	return out, nil
}

func (s *fakeProductStore) Create(ctx context.Context, product *models.Product) error {
	for _, p := range s.products {
		if p.Slug == product.Slug {
			return repository.ErrSlugTaken
		}
	}
	copied := *product
	s.products[product.ID] = &copied
	return nil
}

func (s *fakeProductStore) Update(ctx context.Context, product *models.Product) error {
	if _, ok := s.products[product.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *product
	s.products[product.ID] = &copied
	return nil
}

func (s *fakeProductStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

type fakeMailer struct {
	mu         sync.Mutex
	configured bool
	fail       bool
	hang       bool
	sent       []notify.Email
}

func (m *fakeMailer) Configured() bool { return m.configured }

func (m *fakeMailer) Send(ctx context.Context, email notify.Email) notify.Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, email)
	if m.hang {
		<-ctx.Done()
		return notify.Result{Error: ctx.Err().Error()}
	}
	if m.fail {
		return notify.Result{StatusCode: 500, Error: "provider down"}
	}
	return notify.Result{Success: true, StatusCode: 200}
}

type fakeWebhook struct {
	enabled  bool
	err      error
	hang     bool
	ctxErr   error
	payloads []interface{}
}

func (w *fakeWebhook) Enabled() bool { return w.enabled }

func (w *fakeWebhook) Send(ctx context.Context, payload interface{}) error {
	w.payloads = append(w.payloads, payload)
	if w.hang {
		<-ctx.Done()
		w.ctxErr = ctx.Err()
		return w.ctxErr
	}
	w.ctxErr = ctx.Err()
	return w.err
}

type fakeNudger struct{ count int }

func (n *fakeNudger) Nudge() { n.count++ }
