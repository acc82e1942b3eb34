package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/repository"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
)

// OrderStore is the order persistence the services need
type OrderStore interface {
	Create(ctx context.Context, order *models.Order, event *models.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.Order, error)
	ApplyUpdate(ctx context.Context, id string, changes []repository.Change) (*models.Order, error)
}

// InquiryStore is the inquiry persistence the services need
type InquiryStore interface {
	Create(ctx context.Context, inquiry *models.Inquiry, event *models.OutboxMessage) error
	GetByID(ctx context.Context, id string) (*models.Inquiry, error)
	List(ctx context.Context, filter repository.ListFilter) ([]*models.Inquiry, error)
	ApplyUpdate(ctx context.Context, id string, changes []repository.Change) (*models.Inquiry, error)
}

// ProductStore is the product persistence the catalog needs
type ProductStore interface {
	List(ctx context.Context, activeOnly bool) ([]*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, error)
	GetByID(ctx context.Context, id string) (*models.Product, error)
	SlugsWithPrefix(ctx context.Context, base string) ([]string, error)
	Create(ctx context.Context, product *models.Product) error
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
}

// Webhook forwards a payload to an external endpoint
type Webhook interface {
	Enabled() bool
	Send(ctx context.Context, payload interface{}) error
}

// Nudger wakes the outbox processor after a write
type Nudger interface {
	Nudge()
}

// DefaultSideEffectBudget bounds the best-effort calls that follow a write
// when no budget is configured
const DefaultSideEffectBudget = 8 * time.Second

// runBestEffort runs the calls concurrently under one shared deadline and
// returns once all of them have returned. The deadline is detached from
// request cancellation so a client hanging up does not abort a started send.
func runBestEffort(ctx context.Context, budget time.Duration, calls ...func(context.Context)) {
	if len(calls) == 0 {
		return
	}

	if budget <= 0 {
		budget = DefaultSideEffectBudget
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	var wg sync.WaitGroup
	for _, call := range calls {
		wg.Add(1)
		go func(call func(context.Context)) {
			defer wg.Done()
			call(ctx)
		}(call)
	}
	wg.Wait()
}

func newValidator() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return v
}

func validationMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		if fe.Kind() == reflect.Slice {
			return field + " must contain at least " + fe.Param() + " item(s)"
		}
		return field + " must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.Slice {
			return field + " must contain at most " + fe.Param() + " item(s)"
		}
		return field + " must be at most " + fe.Param()
	case "gt":
		return field + " must be greater than " + fe.Param()
	case "gte":
		return field + " must be at least " + fe.Param()
	case "oneof":
		return field + " must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		return field + " is invalid"
	}
}

// validationError turns validator output into a 400 AppError
func validationError(err error) error {
	var verrs validator.ValidationErrors

	if !errors.As(err, &verrs) {
		return apperrors.NewInvalidInputError(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, validationMessage(fe))
	}

	return apperrors.NewInvalidInputError(strings.Join(msgs, "; "))
}

// notFound maps repository.ErrNotFound to a 404 and passes other errors through
func notFound(err error, what string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFoundError(fmt.Sprintf("%s not found", what))
	}
	return err
}
