package worker

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shyding/kura-spool/internal/pkg/database"
	"github.com/shyding/kura-spool/internal/pkg/logger"
)

// PoolMonitorWorker adapts database.StartPoolMonitor to the Worker
// interface so it can be hosted by the same Manager as the housekeeper.
type PoolMonitorWorker struct {
	pool     *pgxpool.Pool
	logger   *logger.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPoolMonitorWorker creates a pool-stats monitor worker.
func NewPoolMonitorWorker(pool *pgxpool.Pool, log *logger.Logger, interval time.Duration) *PoolMonitorWorker {
	return &PoolMonitorWorker{pool: pool, logger: log, interval: interval}
}

func (w *PoolMonitorWorker) Name() string { return "PoolMonitorWorker" }

func (w *PoolMonitorWorker) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)

	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	defer w.wg.Done()

	database.StartPoolMonitor(runCtx, w.pool, w.logger, w.interval)
}

func (w *PoolMonitorWorker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}
