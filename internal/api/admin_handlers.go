package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/repository"
)

// listFilter reads ?status=&limit=&offset=
func listFilter(r *http.Request) (repository.ListFilter, error) {
	q := r.URL.Query()
	filter := repository.ListFilter{Status: q.Get("status")}

	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}

		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}

	return filter, nil
}

func (s *Server) listOrdersHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	orders, err := s.deps.Status.ListOrders(r.Context(), filter)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: orders})
}

func (s *Server) getOrderHandler(w http.ResponseWriter, r *http.Request) {
	order, err := s.deps.Status.GetOrder(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

// updateOrderHandler applies a status, notes or payment change
func (s *Server) updateOrderHandler(w http.ResponseWriter, r *http.Request) {
	var req models.OrderStatusUpdate

	if !s.decodeJSON(w, r, &req) {
		return
	}

	order, err := s.deps.Status.UpdateOrderStatus(r.Context(), mux.Vars(r)["id"], req)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: order})
}

func (s *Server) listInquiriesHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := listFilter(r)

	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	inquiries, err := s.deps.Status.ListInquiries(r.Context(), filter)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: inquiries})
}

func (s *Server) getInquiryHandler(w http.ResponseWriter, r *http.Request) {
	inquiry, err := s.deps.Status.GetInquiry(r.Context(), mux.Vars(r)["id"])

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: inquiry})
}

func (s *Server) updateInquiryHandler(w http.ResponseWriter, r *http.Request) {
	var req models.InquiryStatusUpdate

	if !s.decodeJSON(w, r, &req) {
		return
	}

	inquiry, err := s.deps.Status.UpdateInquiryStatus(r.Context(), mux.Vars(r)["id"], req)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: inquiry})
}

func (s *Server) adminListProductsHandler(w http.ResponseWriter, r *http.Request) {
	products, err := s.deps.Catalog.ListAdmin(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: products})
}

func (s *Server) createProductHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput

	if !s.decodeJSON(w, r, &in) {
		return
	}

	product, err := s.deps.Catalog.CreateProduct(r.Context(), in)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: product})
}

func (s *Server) updateProductHandler(w http.ResponseWriter, r *http.Request) {
	var in models.ProductInput

	if !s.decodeJSON(w, r, &in) {
		return
	}

	product, err := s.deps.Catalog.UpdateProduct(r.Context(), mux.Vars(r)["id"], in)

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: product})
}

func (s *Server) deleteProductHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := s.deps.Catalog.DeleteProduct(r.Context(), id); err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"id": id}})
}

// seedHandler copies the built-in catalog into the store. The route does not
// exist unless SEED_KEY is configured.
func (s *Server) seedHandler(w http.ResponseWriter, r *http.Request) {
	key := s.config.Admin.SeedKey

	if key == "" {
		s.respondWithError(w, http.StatusNotFound, "Not found")
		return
	}

	if subtle.ConstantTimeCompare([]byte(r.Header.Get("X-Seed-Key")), []byte(key)) != 1 {
		s.respondWithError(w, http.StatusUnauthorized, "Invalid seed key")
		return
	}

	created, err := s.deps.Catalog.SeedFallback(r.Context())

	if err != nil {
		s.respondWithServiceError(w, r, err)
		return
	}

	s.respondWithJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]int{"created": created}})
}
