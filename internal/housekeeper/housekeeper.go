// Package housekeeper implements the periodic maintenance tick spec.md
// §4.E describes: purge terminal-state rows past their age, and
// checkpoint the backend when it isn't already durable on its own.
package housekeeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shyding/kura-spool/internal/config"
	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/pkg/metrics"
)

// firstTickDelay is the delay before the very first tick, giving the
// spool a moment to finish start-up before housekeeping begins.
const firstTickDelay = time.Second

// Housekeeper runs the maintenance tick on an updatable interval.
// Grounded on the teacher's GracePeriodWorker, generalised with an
// Update path so the interval can be reconfigured without a restart.
type Housekeeper struct {
	repo   domain.MessageRepository
	logger *logger.Logger

	mu       sync.Mutex
	cfg      config.SpoolConfig
	updateCh chan time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a housekeeper bound to repo, with the initial spool config.
func New(repo domain.MessageRepository, cfg config.SpoolConfig, log *logger.Logger) *Housekeeper {
	return &Housekeeper{
		repo:     repo,
		logger:   log,
		cfg:      cfg,
		updateCh: make(chan time.Duration, 1),
		stopCh:   make(chan struct{}),
	}
}

func (h *Housekeeper) Name() string { return "Housekeeper" }

// Start runs the maintenance loop until Stop is called or ctx is
// cancelled. It fires its first tick one second after Start, then
// fires again every configured interval.
func (h *Housekeeper) Start(ctx context.Context) {
	h.wg.Add(1)
	defer h.wg.Done()

	h.logger.Info("housekeeper started", zap.Duration("interval", h.interval()))

	timer := time.NewTimer(firstTickDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("housekeeper stopping due to context cancellation")
			return
		case <-h.stopCh:
			h.logger.Info("housekeeper stopping due to stop signal")
			return
		case newInterval := <-h.updateCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			h.setInterval(newInterval)
			timer.Reset(newInterval)
		case <-timer.C:
			h.tick(ctx)
			timer.Reset(h.interval())
		}
	}
}

// Stop signals the loop to exit and waits for it to finish. Not safe
// to call more than once.
func (h *Housekeeper) Stop() {
	close(h.stopCh)
	h.wg.Wait()
	h.logger.Info("housekeeper stopped")
}

// Update changes the tick interval, and the purge age and checkpoint
// policy the next tick will read; cfg.Capacity is ignored. Safe to
// call before or after Start.
func (h *Housekeeper) Update(cfg config.SpoolConfig) {
	h.mu.Lock()
	h.cfg.PurgeAge = cfg.PurgeAge
	h.cfg.BackendLogDataEnabled = cfg.BackendLogDataEnabled
	h.mu.Unlock()

	select {
	case h.updateCh <- cfg.HouseKeeperInterval:
	default:
		select {
		case <-h.updateCh:
		default:
		}
		h.updateCh <- cfg.HouseKeeperInterval
	}
}

func (h *Housekeeper) interval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.HouseKeeperInterval
}

func (h *Housekeeper) setInterval(d time.Duration) {
	h.mu.Lock()
	h.cfg.HouseKeeperInterval = d
	h.mu.Unlock()
}

func (h *Housekeeper) snapshot() config.SpoolConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

func (h *Housekeeper) tick(ctx context.Context) {
	start := time.Now()
	cfg := h.snapshot()

	if err := h.repo.DeleteStale(ctx, cfg.PurgeAge); err != nil && ctx.Err() == nil {
		h.logger.Error("housekeeper: delete stale failed", zap.Error(err))
	}
	if ctx.Err() != nil {
		return
	}

	if !cfg.BackendLogDataEnabled {
		if err := h.repo.Checkpoint(ctx); err != nil {
			h.logger.Error("housekeeper: checkpoint failed", zap.Error(err))
		}
	}

	if count, err := h.repo.Count(ctx); err == nil {
		metrics.SetSpoolDepth(count)
	}

	metrics.ObserveHousekeeperTick(time.Since(start).Seconds())
	h.logger.Debug("housekeeper tick completed", zap.Duration("duration", time.Since(start)))
}
