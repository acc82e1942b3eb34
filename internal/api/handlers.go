package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/realtime"
	"github.com/nzskirting/orderdesk/internal/repository"
	"github.com/nzskirting/orderdesk/internal/service"
	apperrors "github.com/nzskirting/orderdesk/pkg/errors"
)

const maxBodyBytes = 1 << 20

type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Intake accepts storefront submissions
type Intake interface {
	CreateOrder(ctx context.Context, req service.OrderRequest) (*models.Order, error)
	CreateInquiry(ctx context.Context, req service.InquiryRequest) (*models.Inquiry, error)
}

// StatusUpdater serves the admin order and inquiry screens
type StatusUpdater interface {
	ListOrders(ctx context.Context, filter repository.ListFilter) ([]*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, req models.OrderStatusUpdate) (*models.Order, error)
	ListInquiries(ctx context.Context, filter repository.ListFilter) ([]*models.Inquiry, error)
	GetInquiry(ctx context.Context, id string) (*models.Inquiry, error)
	UpdateInquiryStatus(ctx context.Context, id string, req models.InquiryStatusUpdate) (*models.Inquiry, error)
}

// Catalog reads and edits products
type Catalog interface {
	ListPublic(ctx context.Context) ([]*models.Product, error)
	ListAdmin(ctx context.Context) ([]*models.Product, error)
	GetBySlug(ctx context.Context, slug string) (*models.Product, bool, error)
	CreateProduct(ctx context.Context, in models.ProductInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, id string, in models.ProductInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	SeedFallback(ctx context.Context) (int, error)
}

// EventFeed streams new-submission toasts to admin browsers
type EventFeed interface {
	Subscribe(ctx context.Context) <-chan realtime.Toast
}

// Pinger checks a backing store
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health represents the health check response
type Health struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Database  string            `json:"database"`
	Webhooks  map[string]string `json:"webhooks,omitempty"`
}

// healthCheckHandler reports "degraded" instead of failing when the database
// is unreachable, since the storefront keeps serving the fallback catalog
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := Health{
		Status:    "ok",
		Version:   "1.0.0",
		Timestamp: time.Now().Format(time.RFC3339),
		Database:  "ok",
	}

	if s.deps.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := s.deps.Health.Ping(ctx); err != nil {
			s.logger.Warn("Health check database ping failed", "error", err)
			health.Status = "degraded"
			health.Database = "unavailable"
		}
	}

	if len(s.deps.Breakers) > 0 {
		health.Webhooks = make(map[string]string, len(s.deps.Breakers))
		for _, b := range s.deps.Breakers {
			snap := b.Snapshot()
			health.Webhooks[snap.Name] = snap.State
		}
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: health})
}

// listProductsHandler returns the active catalog
func (s *Server) listProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Catalog.ListPublic(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: products})
}

func (s *Server) getProductHandler(w http.ResponseWriter, r *http.Request) {
	product, found, err := s.deps.Catalog.GetBySlug(r.Context(), mux.Vars(r)["slug"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	if !found {
		s.respondWithError(w, http.StatusNotFound, "Product not found")
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: product})
}

// createOrderHandler accepts a guest checkout
func (s *Server) createOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req service.OrderRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	order, err := s.deps.Intake.CreateOrder(r.Context(), req)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data: map[string]string{
			"id":           order.ID,
			"order_number": order.OrderNumber,
		},
	})
}

// createInquiryHandler accepts a contact form submission
func (s *Server) createInquiryHandler(w http.ResponseWriter, r *http.Request) {
	var req service.InquiryRequest

	if !s.decodeJSON(w, r, &req) {
		return
	}

	inquiry, err := s.deps.Intake.CreateInquiry(r.Context(), req)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{
		Success: true,
		Data:    map[string]string{"id": inquiry.ID},
	})
}

// decodeJSON reads the request body into dst, answering 400 on failure
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return false
	}

	return true
}

// respondWithServiceError maps a service error to its HTTP status. Store
// failures surface their raw text; the admin screens show it as a toast.
func (s *Server) respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *apperrors.AppError
	code := http.StatusInternalServerError

	switch {
	case errors.As(err, &appErr):
		code = appErr.StatusCode
	case errors.Is(err, repository.ErrNotFound):
		code = http.StatusNotFound
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}

	s.respondWithError(w, code, err.Error())
}

// respondWithError sends a JSON response with an error message
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, ApiResponse{
		Success: false,
		Error:   message,
	})
}

// respondWithJSON sends a JSON response
func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)

	if err != nil {
		s.logger.Error("Failed to marshal response", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
