package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/repository"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

type statusFixture struct {
	svc       *StatusService
	orders    *fakeOrderStore
	inquiries *fakeInquiryStore
	mailer    *fakeMailer
	clock     *stepClock
	order     *models.Order
	inquiry   *models.Inquiry
}

func newStatusFixture(t *testing.T) *statusFixture {
	t.Helper()

	created := time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

	order := models.NewOrder(created)
	order.OrderNumber = "NZO-2025-654321"
	order.CustomerName = "Aroha"
	order.CustomerEmail = "a@b.com"
	order.Items = models.LineItems{{ProductName: "Oak", UnitPrice: 10, Length: 2, Quantity: 1, Subtotal: 20}}
	order.TotalAmount = 20

	inquiry := models.NewInquiry(created)
	inquiry.FirstName = "Tui"
	inquiry.Email = "tui@example.com"

	f := &statusFixture{
		orders:    newFakeOrderStore(order),
		inquiries: newFakeInquiryStore(inquiry),
		mailer:    &fakeMailer{configured: true},
		clock:     &stepClock{t: created},
		order:     order,
		inquiry:   inquiry,
	}

	f.svc = NewStatusService(f.orders, f.inquiries, f.mailer, config.SiteConfig{Name: "NZ Skirting"}, 0, logger.NewNop())
	f.svc.now = f.clock.Now

	return f
}

func decodeOrderUpdate(t *testing.T, body string) models.OrderStatusUpdate {
	t.Helper()

	var req models.OrderStatusUpdate
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req
}

func TestUpdateOrderStatus_EveryValidStatusIsStored(t *testing.T) {
	for _, status := range models.OrderStatuses {
		t.Run(string(status), func(t *testing.T) {
			f := newStatusFixture(t)
			s := string(status)

			order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, models.OrderStatusUpdate{Status: &s})

			require.NoError(t, err)
			assert.Equal(t, status, order.Status)
		})
	}
}

func TestUpdateOrderStatus_InvalidStatusTouchesNothing(t *testing.T) {
	f := newStatusFixture(t)

	for _, body := range []string{
		`{"status":"lost"}`,
		`{"status":""}`,
		`{"status":"Shipped"}`,
		`{"status":"shipped","payment_status":"refunded"}`,
	} {
		_, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, body))

		require.Error(t, err, body)
		assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err), body)
	}

	assert.Equal(t, 0, f.orders.applyCalls)
	assert.Empty(t, f.mailer.sent)

	stored, _ := f.orders.GetByID(context.Background(), f.order.ID)
	assert.Equal(t, models.OrderStatusPending, stored.Status)
}

func TestUpdateOrderStatus_ShippedScenario(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"shipped"}`))

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	require.NotNil(t, order.ShippedAt)
	assert.Equal(t, f.clock.t, *order.ShippedAt)
	assert.Equal(t, f.clock.t, order.UpdatedAt)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"a@b.com"}, f.mailer.sent[0].To)
	assert.Contains(t, f.mailer.sent[0].Subject, "NZO-2025-654321")
	assert.Contains(t, f.mailer.sent[0].Subject, "Shipped")
}

func TestUpdateOrderStatus_RepeatedConfirmOverwritesTimestamp(t *testing.T) {
	f := newStatusFixture(t)
	req := decodeOrderUpdate(t, `{"status":"confirmed"}`)

	first, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, req)
	require.NoError(t, err)
	require.NotNil(t, first.ConfirmedAt)

	second, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, req)
	require.NoError(t, err)
	require.NotNil(t, second.ConfirmedAt)

	assert.True(t, second.ConfirmedAt.After(*first.ConfirmedAt))
}

func TestUpdateOrderStatus_LenientPaymentFields(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID,
		decodeOrderUpdate(t, `{"payment_date":"not-a-date","amount_paid":"abc"}`))

	require.NoError(t, err)
	assert.Nil(t, order.PaymentDate)
	assert.Nil(t, order.AmountPaid)
}

func TestUpdateOrderStatus_NonStringPaymentDate(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID,
		decodeOrderUpdate(t, `{"payment_date": 20240101}`))

	require.NoError(t, err)
	require.NotNil(t, order.PaymentDate)
	assert.Equal(t, "2024-01-01", order.PaymentDate.String())

	order, err = f.svc.UpdateOrderStatus(context.Background(), f.order.ID,
		decodeOrderUpdate(t, `{"payment_date": {"day": 1}}`))

	require.NoError(t, err)
	assert.Nil(t, order.PaymentDate)
}

func TestUpdateOrderStatus_BuiltRequest(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, models.OrderStatusUpdate{
		PaymentStatus: models.Null[string](),
		AdminNotes:    models.Some("left voicemail"),
	})

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	require.NotNil(t, order.AdminNotes)
	assert.Equal(t, "left voicemail", *order.AdminNotes)
}

func TestUpdateOrderStatus_PaymentFields(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{
		"payment_status": " partial ",
		"amount_paid": "45.50",
		"payment_method": "bank transfer",
		"transaction_reference": "",
		"payment_date": "2025-03-04T22:15:00Z",
		"payment_notes": null
	}`))

	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPartial, order.PaymentStatus)
	require.NotNil(t, order.AmountPaid)
	assert.Equal(t, 45.5, *order.AmountPaid)
	require.NotNil(t, order.PaymentMethod)
	assert.Equal(t, "bank transfer", *order.PaymentMethod)
	require.NotNil(t, order.TransactionReference, "explicit empty string is kept")
	assert.Equal(t, "", *order.TransactionReference)
	require.NotNil(t, order.PaymentDate)
	assert.Equal(t, "2025-03-04", order.PaymentDate.String())
	assert.Nil(t, order.PaymentNotes)
	assert.Equal(t, models.OrderStatusPending, order.Status, "status untouched when absent")

	assert.Len(t, f.mailer.sent, 1, "payment changes notify the customer")
}

func TestUpdateOrderStatus_EmptyPaymentStatusMeansUnpaid(t *testing.T) {
	for _, body := range []string{`{"payment_status":""}`, `{"payment_status":"  "}`, `{"payment_status":null}`} {
		f := newStatusFixture(t)
		f.order.PaymentStatus = models.PaymentStatusPaid

		order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, body))

		require.NoError(t, err, body)
		assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus, body)
	}
}

func TestUpdateOrderStatus_AdminNotesOnlySendsNoEmail(t *testing.T) {
	f := newStatusFixture(t)

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID,
		decodeOrderUpdate(t, `{"adminNotes":"called, left voicemail"}`))

	require.NoError(t, err)
	require.NotNil(t, order.AdminNotes)
	assert.Equal(t, "called, left voicemail", *order.AdminNotes)
	assert.Empty(t, f.mailer.sent)

	for _, c := range f.orders.lastChanges {
		assert.NotEqual(t, "status", c.Column)
	}
}

func TestUpdateOrderStatus_NoEmailWithoutConfigOrAddress(t *testing.T) {
	f := newStatusFixture(t)
	f.mailer.configured = false

	_, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"contacted"}`))
	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)

	f = newStatusFixture(t)
	f.order.CustomerEmail = ""

	_, err = f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"contacted"}`))
	require.NoError(t, err)
	assert.Empty(t, f.mailer.sent)
}

func TestUpdateOrderStatus_EmailFailureDoesNotFailUpdate(t *testing.T) {
	f := newStatusFixture(t)
	f.mailer.fail = true

	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"delivered"}`))

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, order.Status)
	assert.Len(t, f.mailer.sent, 1)
}

func TestUpdateOrderStatus_HangingMailerBoundedByBudget(t *testing.T) {
	f := newStatusFixture(t)
	f.svc.budget = 50 * time.Millisecond
	f.mailer.hang = true

	start := time.Now()
	order, err := f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"shipped"}`))

	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, order.Status)
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, f.mailer.sent, 1)
}

func TestUpdateOrderStatus_StoreErrors(t *testing.T) {
	f := newStatusFixture(t)

	_, err := f.svc.UpdateOrderStatus(context.Background(), "missing", decodeOrderUpdate(t, `{"status":"shipped"}`))
	assert.Equal(t, http.StatusNotFound, apperrors.StatusCode(err))

	f.orders.updateErr = fmt.Errorf("%w: connection refused", repository.ErrDatabase)
	_, err = f.svc.UpdateOrderStatus(context.Background(), f.order.ID, decodeOrderUpdate(t, `{"status":"shipped"}`))

	assert.True(t, errors.Is(err, repository.ErrDatabase))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Empty(t, f.mailer.sent)
}

func TestUpdateInquiryStatus_Resolved(t *testing.T) {
	f := newStatusFixture(t)
	status := "resolved"

	inquiry, err := f.svc.UpdateInquiryStatus(context.Background(), f.inquiry.ID, models.InquiryStatusUpdate{Status: &status})

	require.NoError(t, err)
	assert.Equal(t, models.InquiryStatusResolved, inquiry.Status)
	require.NotNil(t, inquiry.ResolvedAt)
	assert.Equal(t, f.clock.t, *inquiry.ResolvedAt)
	assert.Nil(t, inquiry.ContactedAt)
	assert.Empty(t, f.mailer.sent)
}

func TestUpdateInquiryStatus_InvalidStatus(t *testing.T) {
	f := newStatusFixture(t)
	status := "closed"

	_, err := f.svc.UpdateInquiryStatus(context.Background(), f.inquiry.ID, models.InquiryStatusUpdate{Status: &status})

	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))
	assert.Equal(t, 0, f.inquiries.applyCalls)
}

func TestUpdateInquiryStatus_ClearNotes(t *testing.T) {
	f := newStatusFixture(t)
	notes := "old"
	f.inquiry.AdminNotes = &notes

	var req models.InquiryStatusUpdate
	require.NoError(t, json.Unmarshal([]byte(`{"adminNotes":null}`), &req))

	inquiry, err := f.svc.UpdateInquiryStatus(context.Background(), f.inquiry.ID, req)

	require.NoError(t, err)
	assert.Nil(t, inquiry.AdminNotes)
	assert.Equal(t, models.InquiryStatusNew, inquiry.Status)
}

func TestListOrdersRejectsUnknownStatusFilter(t *testing.T) {
	f := newStatusFixture(t)

	_, err := f.svc.ListOrders(context.Background(), repository.ListFilter{Status: "nope"})
	assert.Equal(t, http.StatusBadRequest, apperrors.StatusCode(err))

	orders, err := f.svc.ListOrders(context.Background(), repository.ListFilter{Status: "pending"})
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}
