// Package spool ties every internal component together behind the
// single facade an embedding MQTT client needs: Open, the publisher
// contract, and Close.
package spool

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shyding/kura-spool/internal/config"
	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/housekeeper"
	"github.com/shyding/kura-spool/internal/pkg/database"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/repair"
	"github.com/shyding/kura-spool/internal/repository"
	"github.com/shyding/kura-spool/internal/schema"
	"github.com/shyding/kura-spool/internal/worker"
)

// Spool is the durable message store spec.md §6 names the "Publisher/
// session contract" against. It owns the database pool, the schema,
// the repository, and the housekeeper/pool-monitor workers.
type Spool struct {
	pool    *pgxpool.Pool
	repo    *repository.MessageRepositoryImpl
	hk      *housekeeper.Housekeeper
	workers *worker.Manager
	logger  *logger.Logger
}

// Open connects to the backend, migrates the schema, runs one repair
// pass, and starts the housekeeper and pool-monitor workers.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Spool, error) {
	pool, err := database.NewPoolWithRetry(&cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("open spool: %w", err)
	}

	if err := schema.NewManager(pool, log).Start(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("open spool: %w", err)
	}

	if err := repair.Repair(ctx, pool, repair.PolicyRemoveAll, log); err != nil {
		pool.Close()
		return nil, fmt.Errorf("open spool: %w", err)
	}

	repo := repository.NewMessageRepository(pool, cfg.Spool.Capacity, log)

	hk := housekeeper.New(repo, cfg.Spool, log)
	poolMonitor := worker.NewPoolMonitorWorker(pool, log, cfg.Database.MonitorInterval)

	workers := worker.NewManager()
	workers.Register(hk)
	workers.Register(poolMonitor)
	workers.StartAll(ctx)

	log.Info("spool open")

	return &Spool{pool: pool, repo: repo, hk: hk, workers: workers, logger: log}, nil
}

// Close stops the background workers and closes the pool. Safe to call
// once; Spool is not reusable afterward.
func (s *Spool) Close(ctx context.Context) {
	s.workers.StopAll()
	s.pool.Close()
	s.logger.Info("spool closed")
}

// UpdateHousekeeping reconfigures the housekeeper's interval, purge
// age, and checkpoint policy without restarting the spool.
func (s *Spool) UpdateHousekeeping(cfg config.SpoolConfig) {
	s.hk.Update(cfg)
}

// Store persists a new message, enforcing the capacity and identity
// policies of spec.md §4.D.
func (s *Spool) Store(ctx context.Context, topic string, payload []byte, qos domain.QoS, retain bool, priority int) (domain.Message, error) {
	return s.repo.Store(ctx, topic, payload, qos, retain, priority)
}

// Get returns the full row for id, or nil if it doesn't exist.
func (s *Spool) Get(ctx context.Context, id int32) (*domain.Message, error) {
	return s.repo.Get(ctx, id)
}

// GetNext returns the highest-priority, oldest unpublished message.
func (s *Spool) GetNext(ctx context.Context) (*domain.Message, error) {
	return s.repo.GetNext(ctx)
}

// Published marks id published.
func (s *Spool) Published(ctx context.Context, id int32) error {
	return s.repo.Published(ctx, id)
}

// PublishedWithSession marks id published under a QoS>=1 session.
func (s *Spool) PublishedWithSession(ctx context.Context, id int32, publishedMessageID int32, sessionID string) error {
	return s.repo.PublishedWithSession(ctx, id, publishedMessageID, sessionID)
}

// Confirmed marks id confirmed.
func (s *Spool) Confirmed(ctx context.Context, id int32) error {
	return s.repo.Confirmed(ctx, id)
}

// AllUnpublishedNoPayload lists unpublished rows, payload stripped.
func (s *Spool) AllUnpublishedNoPayload(ctx context.Context) ([]domain.Message, error) {
	return s.repo.AllUnpublishedNoPayload(ctx)
}

// AllInFlightNoPayload lists QoS>0 in-flight rows, payload stripped.
func (s *Spool) AllInFlightNoPayload(ctx context.Context) ([]domain.Message, error) {
	return s.repo.AllInFlightNoPayload(ctx)
}

// AllDroppedInFlightNoPayload lists dropped rows, payload stripped.
func (s *Spool) AllDroppedInFlightNoPayload(ctx context.Context) ([]domain.Message, error) {
	return s.repo.AllDroppedInFlightNoPayload(ctx)
}

// UnpublishAllInFlight rejoins in-flight QoS>0 messages to the
// unpublished queue, for session-resume after a transport loss.
func (s *Spool) UnpublishAllInFlight(ctx context.Context) error {
	return s.repo.UnpublishAllInFlight(ctx)
}

// DropAllInFlight marks in-flight QoS>0 messages dropped, for
// session-abandon.
func (s *Spool) DropAllInFlight(ctx context.Context) error {
	return s.repo.DropAllInFlight(ctx)
}

// Count returns the current row count.
func (s *Spool) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}

// DeleteStale purges terminal-state rows older than purgeAge seconds,
// per spec.md §4.C. The housekeeper calls this on its own schedule;
// this passthrough lets an embedder trigger an out-of-band purge too.
func (s *Spool) DeleteStale(ctx context.Context, purgeAge int64) error {
	return s.repo.DeleteStale(ctx, purgeAge)
}

// Checkpoint flushes the backend's write-ahead data, per spec.md §4.A.
func (s *Spool) Checkpoint(ctx context.Context) error {
	return s.repo.Checkpoint(ctx)
}

// Defrag compacts the backend's on-disk storage, per spec.md §4.A.
func (s *Spool) Defrag(ctx context.Context) error {
	return s.repo.Defrag(ctx)
}

// Repair runs one pass of the duplicate-id cleanup routine of
// spec.md §4.F against the live pool, using policy to decide which
// copies survive.
func (s *Spool) Repair(ctx context.Context, policy repair.Policy) error {
	return repair.Repair(ctx, s.pool, policy, s.logger)
}
