package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Poller runs the queue on a fixed interval until stopped
type Poller struct {
	queue    *Queue
	interval time.Duration
	logger   *zap.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
	once     sync.Once
	started  atomic.Bool
}

// NewPoller creates a stopped poller. A non-positive interval disables it.
func NewPoller(queue *Queue, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		queue:    queue,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background task
func (p *Poller) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	if p.interval <= 0 {
		close(p.doneCh)
		p.logger.Info("Periodic ingestion disabled")
		return
	}
	p.logger.Info("Starting periodic ingestion", zap.Duration("interval", p.interval))
	go p.loop()
}

// Stop cancels an in-flight run and waits for the task to exit
func (p *Poller) Stop() {
	p.once.Do(func() { close(p.stopCh) })
	if p.started.Load() {
		<-p.doneCh
	}
}

func (p *Poller) loop() {
	defer close(p.doneCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := p.queue.Run(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				p.logger.Warn("Periodic ingestion failed", zap.Error(err))
			}
		case <-p.stopCh:
			return
		}
	}
}
