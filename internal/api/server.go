package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nzskirting/orderdesk/internal/clients"
	"github.com/nzskirting/orderdesk/internal/config"
	"github.com/nzskirting/orderdesk/internal/database"
	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/internal/notify"
	"github.com/nzskirting/orderdesk/internal/outbox"
	"github.com/nzskirting/orderdesk/internal/realtime"
	"github.com/nzskirting/orderdesk/internal/repository"
	"github.com/nzskirting/orderdesk/internal/service"
	"github.com/nzskirting/orderdesk/pkg/circuitbreaker"
	"github.com/nzskirting/orderdesk/pkg/kafka"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/nzskirting/orderdesk/pkg/middleware"
	"github.com/nzskirting/orderdesk/pkg/retry"
	"golang.org/x/crypto/bcrypt"
)

// Dependencies are the collaborators the HTTP layer routes to
type Dependencies struct {
	Intake   Intake
	Status   StatusUpdater
	Catalog  Catalog
	Events   EventFeed
	Health   Pinger
	Breakers []*circuitbreaker.CircuitBreaker
	Limiter  *middleware.RateLimiterMiddleware
}

type Server struct {
	config     *config.Config
	logger     logger.Logger
	router     *mux.Router
	httpServer *http.Server
	deps       Dependencies
	bcryptCost int

	// background infrastructure, nil when the server was built from Dependencies
	db        *database.Database
	processor *outbox.Processor
	notifier  *realtime.Notifier
	producer  *kafka.Producer
	consumer  *kafka.Consumer
}

// NewServer connects to the database, wires every component and registers
// the routes. Background workers start with Start.
func NewServer(cfg *config.Config, logger logger.Logger) (*Server, error) {
	db, err := database.New(cfg, logger)

	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Initialize repositories
	outboxRepo := repository.NewOutboxRepository(db, logger)
	orderRepo := repository.NewOrderRepository(db, outboxRepo, logger)
	inquiryRepo := repository.NewInquiryRepository(db, outboxRepo, logger)
	productRepo := repository.NewProductRepository(db, logger)

	processor := outbox.NewProcessor(outboxRepo, outbox.ProcessorConfig{
		PollingInterval: cfg.Outbox.PollInterval,
		BatchSize:       cfg.Outbox.BatchSize,
		MaxAttempts:     cfg.Outbox.MaxAttempts,
		Backoff:         retry.NewOutboxBackoff(),
	}, logger)

	s := &Server{
		config:     cfg,
		logger:     logger,
		bcryptCost: bcrypt.DefaultCost,
		db:         db,
		processor:  processor,
	}

	source, err := s.setupRealtime(processor)

	if err != nil {
		db.Close()
		return nil, err
	}

	s.notifier = realtime.NewNotifier(source, logger)

	fallback, err := service.LoadFallbackProducts()

	if err != nil {
		s.closeInfrastructure()
		return nil, err
	}

	mailer := notify.NewDispatcher(cfg.Email, logger)
	orderHook := clients.NewWebhookClient("order-webhook", cfg.Webhooks.OrderURL, cfg.Webhooks.Timeout, logger)
	contactHook := clients.NewWebhookClient("contact-webhook", cfg.Webhooks.ContactURL, cfg.Webhooks.Timeout, logger)

	s.deps = Dependencies{
		Intake: service.NewIntakeService(service.IntakeConfig{
			Orders:      orderRepo,
			Inquiries:   inquiryRepo,
			Mailer:      mailer,
			OrderHook:   orderHook,
			ContactHook: contactHook,
			Nudger:      processor,
			Email:       cfg.Email,
			Site:        cfg.Site,

			SideEffectBudget: cfg.HTTP.SideEffectBudget,
		}, logger),
		Status:   service.NewStatusService(orderRepo, inquiryRepo, mailer, cfg.Site, cfg.HTTP.SideEffectBudget, logger),
		Catalog:  service.NewCatalogService(productRepo, fallback, logger),
		Events:   s.notifier,
		Health:   db,
		Breakers: []*circuitbreaker.CircuitBreaker{orderHook.Breaker(), contactHook.Breaker()},
		Limiter: middleware.NewRateLimiterMiddleware(middleware.RateLimiterConfig{
			IPMaxTokens:       cfg.RateLimit.Burst,
			IPRefillRate:      cfg.RateLimit.PerSecond,
			TrustForwardedFor: cfg.Env == "production",
		}, logger),
	}

	s.setupHTTP()
	return s, nil
}

// newServer builds a server around ready-made dependencies
func newServer(cfg *config.Config, deps Dependencies, logger logger.Logger) *Server {
	s := &Server{
		config:     cfg,
		logger:     logger,
		deps:       deps,
		bcryptCost: bcrypt.DefaultCost,
	}

	s.setupHTTP()
	return s
}

// setupRealtime picks the insert feed. Without brokers the outbox publishes
// straight into an in-process source.
func (s *Server) setupRealtime(processor *outbox.Processor) (realtime.Source, error) {
	cfg := s.config
	topics := map[string]string{
		models.AggregateOrder:   cfg.Kafka.OrdersTopic,
		models.AggregateInquiry: cfg.Kafka.InquiriesTopic,
	}

	if !cfg.Kafka.Enabled() {
		local := realtime.NewLocalSource()
		handler := outbox.NewLocalHandler(local)
		processor.RegisterHandler(models.EventOrderCreated, handler)
		processor.RegisterHandler(models.EventInquiryCreated, handler)

		s.logger.Info("Realtime feed running in-process")
		return local, nil
	}

	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, s.logger)

	if err != nil {
		return nil, err
	}

	consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
		Brokers:       cfg.Kafka.Brokers,
		Topics:        []string{cfg.Kafka.OrdersTopic, cfg.Kafka.InquiriesTopic},
		ConsumerGroup: cfg.Kafka.ConsumerGroup,
	}, s.logger)

	if err != nil {
		producer.Close()
		return nil, err
	}

	handler := outbox.NewKafkaHandler(producer, topics, s.logger)
	processor.RegisterHandler(models.EventOrderCreated, handler)
	processor.RegisterHandler(models.EventInquiryCreated, handler)

	s.producer = producer
	s.consumer = consumer

	s.logger.Info("Realtime feed running over Kafka", "brokers", cfg.Kafka.Brokers)
	return realtime.NewKafkaSource(consumer, topics), nil
}

func (s *Server) setupHTTP() {
	readTimeout, writeTimeout := s.config.HTTP.ReadTimeout, s.config.HTTP.WriteTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}

	s.router = mux.NewRouter()
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
}

// Start runs the background workers and then serves HTTP until Shutdown
func (s *Server) Start() error {
	if s.processor != nil {
		s.processor.Start()
	}

	if s.notifier != nil {
		err := s.notifier.Start(func(t realtime.Toast) {
			s.logger.Info("New submission", "table", t.Table, "recordID", t.RecordID, "title", t.Title)
		})

		if err != nil {
			return err
		}
	}

	// start consuming only once the notifier is subscribed
	if s.consumer != nil {
		if err := s.consumer.Start(); err != nil {
			s.logger.Error("Failed to start Kafka consumer", "error", err)
		}
	}

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.deps.Limiter != nil {
		s.deps.Limiter.Stop()
	}

	s.closeInfrastructure()
	return err
}

func (s *Server) closeInfrastructure() {
	if s.notifier != nil {
		s.notifier.Stop()
	}

	if s.processor != nil {
		s.processor.Stop()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			s.logger.Error("Error stopping Kafka consumer", "error", err)
		}
	}

	if s.producer != nil {
		if err := s.producer.Close(); err != nil {
			s.logger.Error("Error closing Kafka producer", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Error closing database connection", "error", err)
		}
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// limited applies the per-IP limiter when one is configured
func (s *Server) limited(h http.HandlerFunc) http.Handler {
	if s.deps.Limiter == nil {
		return h
	}
	return s.deps.Limiter.Middleware(h)
}

// setupRoutes configures all the routes for our API
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", s.healthCheckHandler).Methods(http.MethodGet)
	api.HandleFunc("/products", s.listProductsHandler).Methods(http.MethodGet)
	api.HandleFunc("/products/{slug}", s.getProductHandler).Methods(http.MethodGet)
	api.Handle("/orders", s.limited(s.createOrderHandler)).Methods(http.MethodPost)
	api.Handle("/contact", s.limited(s.createInquiryHandler)).Methods(http.MethodPost)
	api.Handle("/admin/login", s.limited(s.loginHandler)).Methods(http.MethodPost)
	api.HandleFunc("/admin/logout", s.logoutHandler).Methods(http.MethodPost)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAdmin)

	admin.HandleFunc("/orders", s.listOrdersHandler).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.getOrderHandler).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}", s.updateOrderHandler).Methods(http.MethodPatch)
	admin.HandleFunc("/inquiries", s.listInquiriesHandler).Methods(http.MethodGet)
	admin.HandleFunc("/inquiries/{id}", s.getInquiryHandler).Methods(http.MethodGet)
	admin.HandleFunc("/inquiries/{id}", s.updateInquiryHandler).Methods(http.MethodPatch)
	admin.HandleFunc("/products", s.adminListProductsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/products", s.createProductHandler).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", s.updateProductHandler).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}", s.deleteProductHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/events", s.eventsHandler).Methods(http.MethodGet)
	admin.HandleFunc("/seed", s.seedHandler).Methods(http.MethodPost)
	admin.HandleFunc("/webhooks", s.getWebhookStatusHandler).Methods(http.MethodGet)
	admin.HandleFunc("/webhooks/{name}/reset", s.resetWebhookHandler).Methods(http.MethodPost)
}

// statusRecorder captures the response code for the request log
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Middleware for logging requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		s.logger.Info("Request processed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"remoteAddr", r.RemoteAddr,
		)
	})
}
