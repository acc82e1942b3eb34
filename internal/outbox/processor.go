package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nzskirting/orderdesk/internal/models"
	"github.com/nzskirting/orderdesk/pkg/logger"
	"github.com/nzskirting/orderdesk/pkg/retry"
)

// MessageHandler defines the interface for handling outbox messages
type MessageHandler interface {
	HandleMessage(ctx context.Context, message *models.OutboxMessage) error
}

// Store is the subset of the outbox repository the processor needs
type Store interface {
	GetPendingMessages(ctx context.Context, limit int) ([]*models.OutboxMessage, error)
	MarkAsProcessing(ctx context.Context, id int64) error
	MarkAsCompleted(ctx context.Context, id int64) error
	ScheduleRetry(ctx context.Context, id int64, next time.Time, errorMessage string) error
	MarkAsFailed(ctx context.Context, id int64, errorMessage string) error
	ReleaseProcessing(ctx context.Context) (int64, error)
}

// Processor is responsible for processing outbox messages
type Processor struct {
	store           Store
	handlers        map[string]MessageHandler
	pollingInterval time.Duration
	batchSize       int
	maxAttempts     int
	backoff         retry.BackoffStrategy
	logger          logger.Logger
	ctx             context.Context
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	running         bool
	mu              sync.Mutex
	nudge           chan struct{}
	now             func() time.Time
}

// ProcessorConfig holds the configuration for the Processor
type ProcessorConfig struct {
	PollingInterval time.Duration
	BatchSize       int
	MaxAttempts     int
	Backoff         retry.BackoffStrategy
}

// NewProcessor creates a new Processor
func NewProcessor(store Store, config ProcessorConfig, logger logger.Logger) *Processor {
	ctx, cancel := context.WithCancel(context.Background())

	if config.Backoff == nil {
		config.Backoff = retry.NewOutboxBackoff()
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}

	return &Processor{
		store:           store,
		handlers:        make(map[string]MessageHandler),
		pollingInterval: config.PollingInterval,
		batchSize:       config.BatchSize,
		maxAttempts:     config.MaxAttempts,
		backoff:         config.Backoff,
		logger:          logger,
		ctx:             ctx,
		cancel:          cancel,
		nudge:           make(chan struct{}, 1),
		now:             time.Now,
	}
}

// RegisterHandler registers a message handler for a specific event type
func (p *Processor) RegisterHandler(eventType string, handler MessageHandler) {
	p.handlers[eventType] = handler
}

// Start starts the outbox processor
func (p *Processor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()
		p.releaseStale()
		p.processOutbox()
	}()

	p.logger.Info("Outbox processor started",
		"pollingInterval", p.pollingInterval,
		"batchSize", p.batchSize)
}

// Stop stops the outbox processor
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	p.cancel()
	p.wg.Wait()
	p.running = false

	p.logger.Info("Outbox processor stopped")
}

// Nudge asks for a poll now instead of waiting for the next tick
func (p *Processor) Nudge() {
	select {
	case p.nudge <- struct{}{}:
	default:
	}
}

// releaseStale requeues messages a previous run claimed but never finished.
// Assumes a single processor per database.
func (p *Processor) releaseStale() {
	ctx, cancel := context.WithTimeout(p.ctx, 10*time.Second)
	defer cancel()

	released, err := p.store.ReleaseProcessing(ctx)

	if err != nil {
		p.logger.Error("Failed to release stale outbox messages", "error", err)
		return
	}

	if released > 0 {
		p.logger.Warn("Released outbox messages left in processing", "count", released)
	}
}

func (p *Processor) processOutbox() {
	ticker := time.NewTicker(p.pollingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
		case <-p.nudge:
		}

		if err := p.processBatch(p.ctx); err != nil {
			p.logger.Error("Failed to process outbox batch", "error", err)
		}
	}
}

func (p *Processor) processBatch(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, p.pollingInterval+10*time.Second)
	defer cancel()

	messages, err := p.store.GetPendingMessages(ctx, p.batchSize)

	if err != nil {
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	if len(messages) == 0 {
		return nil
	}

	p.logger.Debug("Processing batch of outbox messages", "count", len(messages))

	for _, msg := range messages {
		if err := p.processMessage(ctx, msg); err != nil {
			p.logger.Error("Failed to process message",
				"error", err,
				"messageID", msg.ID,
				"aggregateID", msg.AggregateID,
				"eventType", msg.EventType)
		}
	}

	return nil
}

func (p *Processor) processMessage(ctx context.Context, msg *models.OutboxMessage) error {
	if err := p.store.MarkAsProcessing(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as processing: %w", err)
	}

	attempt := msg.ProcessingAttempts + 1
	handler, exists := p.handlers[msg.EventType]

	if !exists {
		errorMsg := fmt.Sprintf("no handler registered for event type: %s", msg.EventType)

		if err := p.store.MarkAsFailed(ctx, msg.ID, errorMsg); err != nil {
			p.logger.Error("Failed to mark message as failed", "error", err, "messageID", msg.ID)
		}

		return fmt.Errorf("%s", errorMsg)
	}

	if err := handler.HandleMessage(ctx, msg); err != nil {
		if attempt >= p.maxAttempts {
			errorMsg := fmt.Sprintf("max attempts reached: %s", err.Error())

			if markErr := p.store.MarkAsFailed(ctx, msg.ID, errorMsg); markErr != nil {
				p.logger.Error("Failed to mark message as failed", "error", markErr, "messageID", msg.ID)
			}

			return fmt.Errorf("message failed after %d attempts: %w", attempt, err)
		}

		next := p.now().Add(p.backoff.NextBackoff(attempt))

		if markErr := p.store.ScheduleRetry(ctx, msg.ID, next, err.Error()); markErr != nil {
			p.logger.Error("Failed to schedule retry", "error", markErr, "messageID", msg.ID)
		}

		p.logger.Warn("Message processing failed, will retry",
			"error", err,
			"messageID", msg.ID,
			"attempt", attempt,
			"nextAttemptAt", next)
		return err
	}

	if err := p.store.MarkAsCompleted(ctx, msg.ID); err != nil {
		return fmt.Errorf("failed to mark message as completed: %w", err)
	}

	p.logger.Debug("Processed outbox message",
		"messageID", msg.ID,
		"aggregateID", msg.AggregateID,
		"eventType", msg.EventType)

	return nil
}
