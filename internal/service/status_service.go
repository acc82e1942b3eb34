package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/notify"
	"github.com/nzskirting/orderdesk/internal/repository"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
)

// StatusService applies admin status and payment changes to orders and inquiries
type StatusService struct {
	orders    OrderStore
	inquiries InquiryStore
	mailer    notify.Sender
	site      config.SiteConfig
	budget    time.Duration
	logger    logger.Logger
	now       func() time.Time
}

// NewStatusService creates a new StatusService
func NewStatusService(
	orders OrderStore,
	inquiries InquiryStore,
	mailer notify.Sender,
	site config.SiteConfig,
	sideEffectBudget time.Duration,
	logger logger.Logger,
) *StatusService {
	return &StatusService{
		orders:    orders,
		inquiries: inquiries,
		mailer:    mailer,
		site:      site,
		budget:    sideEffectBudget,
		logger:    logger,
		now:       models.GetCurrentTime,
	}
}

// parsePaymentDate normalizes free-form input to a calendar date. Anything
// that does not parse becomes nil.
func parsePaymentDate(raw string) *models.Date {
	raw = strings.TrimSpace(raw)

	if raw == "" {
		return nil
	}

	t, err := dateparse.ParseAny(raw)

	if err != nil {
		return nil
	}

	d := models.NewDate(t)
	return &d
}

// orderChanges validates every field of req and returns the column changes.
// Nothing is written when it returns an error.
func (s *StatusService) orderChanges(req models.OrderStatusUpdate, now time.Time) ([]repository.Change, error) {
	var changes []repository.Change

	if req.Status != nil {
		status := models.OrderStatus(*req.Status)

		if !status.Valid() {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid order status %q", *req.Status))
		}

		changes = append(changes, repository.Change{Column: "status", Value: status})

		if col, ok := status.MilestoneColumn(); ok {
			changes = append(changes, repository.Change{Column: col, Value: now})
		}
	}

	if req.PaymentStatus.Set {
		paymentStatus := models.PaymentStatusUnpaid

		if trimmed := strings.TrimSpace(req.PaymentStatus.Value); req.PaymentStatus.Valid && trimmed != "" {
			paymentStatus = models.PaymentStatus(trimmed)

			if !paymentStatus.Valid() {
				return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid payment status %q", req.PaymentStatus.Value))
			}
		}

		changes = append(changes, repository.Change{Column: "payment_status", Value: paymentStatus})
	}

	if req.AmountPaid.Set {
		changes = append(changes, repository.Change{Column: "amount_paid", Value: req.AmountPaid.Value})
	}

	if req.PaymentDate.Set {
		var date *models.Date
		if req.PaymentDate.Valid {
			date = parsePaymentDate(req.PaymentDate.Value)
		}
		changes = append(changes, repository.Change{Column: "payment_date", Value: date})
	}

	for _, text := range []struct {
		column string
		value  models.Optional[string]
	}{
		{"payment_method", req.PaymentMethod},
		{"transaction_reference", req.TransactionReference},
		{"payment_notes", req.PaymentNotes},
		{"admin_notes", req.AdminNotes},
	} {
		if text.value.Set {
			changes = append(changes, repository.Change{Column: text.column, Value: text.value.Ptr()})
		}
	}

	return append(changes, repository.Change{Column: "updated_at", Value: now}), nil
}

// UpdateOrderStatus validates and applies req to the order in one statement,
// then emails the customer when status or payment fields were part of the request
func (s *StatusService) UpdateOrderStatus(ctx context.Context, id string, req models.OrderStatusUpdate) (*models.Order, error) {
	changes, err := s.orderChanges(req, s.now())

	if err != nil {
		return nil, err
	}

	order, err := s.orders.ApplyUpdate(ctx, id, changes)

	if err != nil {
		return nil, notFound(err, "order")
	}

	s.logger.Info("Order updated", "orderID", order.ID, "status", order.Status, "paymentStatus", order.PaymentStatus)

	if req.Status != nil || req.TouchesPayment() {
		s.notifyCustomer(ctx, order)
	}

	return order, nil
}

func (s *StatusService) notifyCustomer(ctx context.Context, order *models.Order) {
	if order.CustomerEmail == "" || !s.mailer.Configured() {
		return
	}

	email, err := notify.OrderStatusEmail(s.site, order)

	if err != nil {
		s.logger.Error("Failed to render status email", "error", err, "orderID", order.ID)
		return
	}

	var result notify.Result
	runBestEffort(ctx, s.budget, func(ctx context.Context) {
		result = s.mailer.Send(ctx, email)
	})

	if !result.Success {
		s.logger.Warn("Order status email not sent",
			"orderID", order.ID,
			"status", result.StatusCode,
			"error", result.Error)
	}
}

// UpdateInquiryStatus validates and applies req to the inquiry. Inquiries never
// trigger email.
func (s *StatusService) UpdateInquiryStatus(ctx context.Context, id string, req models.InquiryStatusUpdate) (*models.Inquiry, error) {
	now := s.now()
	var changes []repository.Change

	if req.Status != nil {
		status := models.InquiryStatus(*req.Status)

		if !status.Valid() {
			return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid inquiry status %q", *req.Status))
		}

		changes = append(changes, repository.Change{Column: "status", Value: status})

		if col, ok := status.MilestoneColumn(); ok {
			changes = append(changes, repository.Change{Column: col, Value: now})
		}
	}

	if req.AdminNotes.Set {
		changes = append(changes, repository.Change{Column: "admin_notes", Value: req.AdminNotes.Ptr()})
	}

	changes = append(changes, repository.Change{Column: "updated_at", Value: now})

	inquiry, err := s.inquiries.ApplyUpdate(ctx, id, changes)

	if err != nil {
		return nil, notFound(err, "inquiry")
	}

	s.logger.Info("Inquiry updated", "inquiryID", inquiry.ID, "status", inquiry.Status)
	return inquiry, nil
}

// ListOrders returns orders newest first
func (s *StatusService) ListOrders(ctx context.Context, filter repository.ListFilter) ([]*models.Order, error) {
	if filter.Status != "" && !models.OrderStatus(filter.Status).Valid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid order status %q", filter.Status))
	}
	return s.orders.List(ctx, filter)
}

// GetOrder returns one order
func (s *StatusService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, id)

	if err != nil {
		return nil, notFound(err, "order")
	}

	return order, nil
}

// ListInquiries returns inquiries newest first
func (s *StatusService) ListInquiries(ctx context.Context, filter repository.ListFilter) ([]*models.Inquiry, error) {
	if filter.Status != "" && !models.InquiryStatus(filter.Status).Valid() {
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("invalid inquiry status %q", filter.Status))
	}
	return s.inquiries.List(ctx, filter)
}

// GetInquiry returns one inquiry
func (s *StatusService) GetInquiry(ctx context.Context, id string) (*models.Inquiry, error) {
	inquiry, err := s.inquiries.GetByID(ctx, id)

	if err != nil {
		return nil, notFound(err, "inquiry")
	}

	return inquiry, nil
}
