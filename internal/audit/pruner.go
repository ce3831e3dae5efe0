package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// PrunerConfig holds configuration for the audit pruner.
type PrunerConfig struct {
	Interval  time.Duration
	Retention time.Duration
}

// DefaultPrunerConfig returns sensible defaults.
func DefaultPrunerConfig() PrunerConfig {
	return PrunerConfig{
		Interval:  1 * time.Hour,
		Retention: 90 * 24 * time.Hour,
	}
}

// Pruner periodically deletes audit entries past the retention window.
type Pruner struct {
	repo   Repository
	config PrunerConfig
	logger *slog.Logger

	wg       sync.WaitGroup
	stopChan chan struct{}
	running  bool
	mu       sync.Mutex
}

// NewPruner creates a new audit pruner.
func NewPruner(repo Repository, config PrunerConfig, logger *slog.Logger) *Pruner {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPrunerConfig().Interval
	}
	if config.Retention <= 0 {
		config.Retention = DefaultPrunerConfig().Retention
	}
	return &Pruner{
		repo:     repo,
		config:   config,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the prune loop. It is a no-op if already running.
func (p *Pruner) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stopChan = make(chan struct{})
	p.mu.Unlock()

	p.wg.Add(1)
	go p.run(ctx)

	p.logger.Info("audit pruner started",
		slog.Duration("interval", p.config.Interval),
		slog.Duration("retention", p.config.Retention))
}

// Stop halts the prune loop and waits for it to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Info("audit pruner stopped")
}

func (p *Pruner) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.PruneOnce(ctx)
		}
	}
}

// PruneOnce deletes entries past retention a single time.
func (p *Pruner) PruneOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.config.Retention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to prune audit log", slog.String("error", err.Error()))
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned audit log", slog.Int64("deleted", deleted))
	}
}
