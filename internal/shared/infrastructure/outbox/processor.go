package outbox

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/slotlinehq/slotline/internal/shared/infrastructure/eventbus"
)

// ProcessorConfig tunes the outbox drain loop.
type ProcessorConfig struct {
	PollInterval     time.Duration
	BatchSize        int
	MaxRetries       int
	RetryBackoffBase time.Duration
	RetryBackoffMax  time.Duration
}

// DefaultProcessorConfig returns the defaults the container starts from.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval:     100 * time.Millisecond,
		BatchSize:        100,
		MaxRetries:       5,
		RetryBackoffBase: 1 * time.Second,
		RetryBackoffMax:  1 * time.Minute,
	}
}

// Stats counts what the processor has done since it was created.
type Stats struct {
	Published    uint64
	Retried      uint64
	DeadLettered uint64
	LastError    string
	LastErrorAt  *time.Time
}

// Processor drains the outbox: unpublished messages go to the broker in
// poll-interval batches, transient failures back off exponentially, and a
// message that exhausts its retries is parked as a dead letter for manual
// inspection.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
	quit    chan struct{}
	done    sync.WaitGroup

	statsMu sync.Mutex
	stats   Stats
}

// NewProcessor creates a processor over the given repository and publisher.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config,
		logger:    logger,
		quit:      make(chan struct{}),
	}
}

// Start launches the poll loop. Starting a running processor is a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	p.running = true
	p.quit = make(chan struct{})

	p.done.Add(1)
	go p.loop(ctx)

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
	)
	return nil
}

// Stop ends the poll loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.quit)
	p.mu.Unlock()

	p.done.Wait()
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the poll loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) loop(ctx context.Context) {
	defer p.done.Done()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case <-ticker.C:
			if err := p.drain(ctx); err != nil {
				p.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// ProcessOnce drains a single batch synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	return p.drain(ctx)
}

func (p *Processor) drain(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}

	for _, msg := range batch {
		p.deliver(ctx, msg)
	}
	return nil
}

// deliver publishes one message and records the outcome. A delivery
// failure never aborts the batch; the message either gets a retry slot in
// the future or a dead-letter mark.
func (p *Processor) deliver(ctx context.Context, msg *Message) {
	if err := p.publisher.Publish(ctx, msg.RoutingKey, msg.Payload); err != nil {
		p.logger.Warn("publish failed",
			"id", msg.ID,
			"routing_key", msg.RoutingKey,
			"retry_count", msg.RetryCount,
			"error", err,
		)
		p.noteError(err)

		attempt := msg.RetryCount + 1
		if p.config.MaxRetries <= 0 || attempt >= p.config.MaxRetries {
			p.bump(func(s *Stats) { s.DeadLettered++ })
			if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
				p.logger.Error("failed to dead-letter message", "id", msg.ID, "error", markErr)
			}
			return
		}

		p.bump(func(s *Stats) { s.Retried++ })
		retryAt := time.Now().Add(p.backoff(attempt))
		if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), retryAt); markErr != nil {
			p.logger.Error("failed to schedule retry", "id", msg.ID, "error", markErr)
		}
		return
	}

	if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
		p.logger.Error("failed to mark message published",
			"id", msg.ID,
			"event_id", msg.EventID,
			"error", err,
		)
		return
	}
	p.bump(func(s *Stats) { s.Published++ })
}

// backoff doubles the delay per attempt up to the configured ceiling.
func (p *Processor) backoff(attempt int) time.Duration {
	base := p.config.RetryBackoffBase
	if base <= 0 {
		base = time.Second
	}
	ceiling := p.config.RetryBackoffMax
	if ceiling <= 0 {
		ceiling = time.Minute
	}

	delay := base
	for i := 1; i < attempt && delay < ceiling; i++ {
		delay *= 2
	}
	if delay > ceiling {
		delay = ceiling
	}
	return delay
}

// Snapshot returns a copy of the counters.
func (p *Processor) Snapshot() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Processor) bump(fn func(*Stats)) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	fn(&p.stats)
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	now := time.Now()
	p.stats.LastError = err.Error()
	p.stats.LastErrorAt = &now
}
