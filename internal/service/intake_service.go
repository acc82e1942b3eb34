package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/notify"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/shopspring/decimal"
)

// OrderRequest is the storefront checkout payload
type OrderRequest struct {
	CustomerName  string            `json:"customer_name" validate:"required"`
	CustomerEmail string            `json:"customer_email" validate:"required,email"`
	CustomerPhone string            `json:"customer_phone" validate:"required"`
	Address       string            `json:"address"`
	City          string            `json:"city"`
	PostalCode    string            `json:"postal_code"`
	Notes         string            `json:"notes"`
	Items         []models.LineItem `json:"items" validate:"required,min=1,dive"`
}

// InquiryRequest is the contact form payload
type InquiryRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone"`
	Service   string `json:"service" validate:"omitempty,oneof=quote installation consultation other"`
	Message   string `json:"message" validate:"required"`
}

// IntakeService stores customer submissions and fires the best-effort side effects
type IntakeService struct {
	orders      OrderStore
	inquiries   InquiryStore
	mailer      notify.Sender
	orderHook   Webhook
	contactHook Webhook
	nudger      Nudger
	email       config.EmailConfig
	site        config.SiteConfig
	budget      time.Duration
	validate    *validator.Validate
	logger      logger.Logger
	now         func() time.Time
}

// IntakeConfig groups IntakeService collaborators
type IntakeConfig struct {
	Orders      OrderStore
	Inquiries   InquiryStore
	Mailer      notify.Sender
	OrderHook   Webhook
	ContactHook Webhook
	Nudger      Nudger
	Email       config.EmailConfig
	Site        config.SiteConfig

	// SideEffectBudget caps the webhook and emails that follow a write
	SideEffectBudget time.Duration
}

func NewIntakeService(cfg IntakeConfig, logger logger.Logger) *IntakeService {
	return &IntakeService{
		orders:      cfg.Orders,
		inquiries:   cfg.Inquiries,
		mailer:      cfg.Mailer,
		orderHook:   cfg.OrderHook,
		contactHook: cfg.ContactHook,
		nudger:      cfg.Nudger,
		email:       cfg.Email,
		site:        cfg.Site,
		budget:      cfg.SideEffectBudget,
		validate:    newValidator(),
		logger:      logger,
		now:         models.GetCurrentTime,
	}
}

func optionalText(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

// priceItems recomputes every subtotal as unit price x length x quantity and
// returns the order total, both rounded to cents
func priceItems(items []models.LineItem) (models.LineItems, float64) {
	priced := make(models.LineItems, len(items))
	total := decimal.Zero

	for i, item := range items {
		subtotal := decimal.NewFromFloat(item.UnitPrice).
			Mul(decimal.NewFromFloat(item.Length)).
			Mul(decimal.NewFromInt(int64(item.Quantity))).
			Round(2)

		item.Subtotal = subtotal.InexactFloat64()
		priced[i] = item
		total = total.Add(subtotal)
	}

	return priced, total.Round(2).InexactFloat64()
}

// CreateOrder validates req, stores the order with its outbox event and then
// runs the webhook and email side effects, ignoring their failures
func (s *IntakeService) CreateOrder(ctx context.Context, req OrderRequest) (*models.Order, error) {
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	req.CustomerEmail = strings.TrimSpace(req.CustomerEmail)
	req.CustomerPhone = strings.TrimSpace(req.CustomerPhone)
	for i := range req.Items {
		req.Items[i].ProductName = strings.TrimSpace(req.Items[i].ProductName)
	}

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	order := models.NewOrder(s.now())
	order.CustomerName = req.CustomerName
	order.CustomerEmail = req.CustomerEmail
	order.CustomerPhone = req.CustomerPhone
	order.Address = optionalText(req.Address)
	order.City = optionalText(req.City)
	order.PostalCode = optionalText(req.PostalCode)
	order.Notes = optionalText(req.Notes)
	order.Items, order.TotalAmount = priceItems(req.Items)

	event, err := models.NewOrderCreatedEvent(order)

	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	if err := s.orders.Create(ctx, order, event); err != nil {
		return nil, err
	}

	s.logger.Info("Order created", "orderID", order.ID, "orderNumber", order.OrderNumber, "total", order.TotalAmount)
	s.wake()

	runBestEffort(ctx, s.budget,
		func(ctx context.Context) {
			s.forward(ctx, s.orderHook, "order", "orderID", order.ID, map[string]interface{}{
				"type":  models.EventOrderCreated,
				"order": order,
			})
		},
		func(ctx context.Context) {
			if !s.mailer.Configured() {
				return
			}

			if email, err := notify.NewOrderEmail(s.site, order, s.email.OrderRecipients); err == nil {
				s.send(ctx, email, "orderID", order.ID)
			} else {
				s.logger.Error("Failed to render new order email", "error", err)
			}

			if email, err := notify.OrderReceivedEmail(s.site, order); err == nil {
				s.send(ctx, email, "orderID", order.ID)
			} else {
				s.logger.Error("Failed to render order confirmation email", "error", err)
			}
		},
	)

	return order, nil
}

// CreateInquiry validates req and stores the inquiry with its outbox event
func (s *IntakeService) CreateInquiry(ctx context.Context, req InquiryRequest) (*models.Inquiry, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = strings.TrimSpace(req.Email)
	req.Message = strings.TrimSpace(req.Message)
	req.Service = strings.TrimSpace(req.Service)

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	inquiry := models.NewInquiry(s.now())
	inquiry.FirstName = req.FirstName
	inquiry.LastName = req.LastName
	inquiry.Email = req.Email
	inquiry.Phone = optionalText(req.Phone)
	inquiry.Message = req.Message
	if req.Service != "" {
		inquiry.Service = models.ServiceType(req.Service)
	}

	event, err := models.NewInquiryCreatedEvent(inquiry)

	if err != nil {
		return nil, fmt.Errorf("failed to create outbox message: %w", err)
	}

	if err := s.inquiries.Create(ctx, inquiry, event); err != nil {
		return nil, err
	}

	s.logger.Info("Inquiry created", "inquiryID", inquiry.ID, "service", inquiry.Service)
	s.wake()

	runBestEffort(ctx, s.budget,
		func(ctx context.Context) {
			s.forward(ctx, s.contactHook, "contact", "inquiryID", inquiry.ID, map[string]interface{}{
				"type":    models.EventInquiryCreated,
				"inquiry": inquiry,
			})
		},
		func(ctx context.Context) {
			if !s.mailer.Configured() {
				return
			}

			if email, err := notify.NewInquiryEmail(s.site, inquiry, s.email.ContactRecipients); err == nil {
				s.send(ctx, email, "inquiryID", inquiry.ID)
			} else {
				s.logger.Error("Failed to render new inquiry email", "error", err)
			}
		},
	)

	return inquiry, nil
}

func (s *IntakeService) wake() {
	if s.nudger != nil {
		s.nudger.Nudge()
	}
}

func (s *IntakeService) forward(ctx context.Context, hook Webhook, name, idKey, id string, payload interface{}) {
	if hook == nil || !hook.Enabled() {
		return
	}

	err := hook.Send(ctx, payload)

	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrCircuitOpen):
		s.logger.Warn("Webhook skipped, circuit open", "webhook", name, idKey, id)
	default:
		s.logger.Warn("Webhook forward failed", "webhook", name, idKey, id, "error", err)
	}
}

func (s *IntakeService) send(ctx context.Context, email notify.Email, keyvals ...interface{}) {
	if result := s.mailer.Send(ctx, email); !result.Success {
		s.logger.Warn("Notification email not sent",
			append(keyvals, "subject", email.Subject, "status", result.StatusCode, "error", result.Error)...)
	}
}
