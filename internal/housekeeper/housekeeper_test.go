package housekeeper_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyding/kura-spool/internal/config"
	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/housekeeper"
	"github.com/shyding/kura-spool/internal/pkg/logger"
)

// fakeRepo is a minimal in-memory stand-in for domain.MessageRepository,
// used to observe which calls a housekeeper tick makes without a live
// backend.
type fakeRepo struct {
	mu sync.Mutex

	deleteStaleCalls int
	checkpointCalls  int
	lastPurgeAge     int64
}

func (f *fakeRepo) Store(context.Context, string, []byte, domain.QoS, bool, int) (domain.Message, error) {
	return domain.Message{}, nil
}
func (f *fakeRepo) Get(context.Context, int32) (*domain.Message, error)      { return nil, nil }
func (f *fakeRepo) GetNext(context.Context) (*domain.Message, error)        { return nil, nil }
func (f *fakeRepo) Published(context.Context, int32) error                  { return nil }
func (f *fakeRepo) PublishedWithSession(context.Context, int32, int32, string) error {
	return nil
}
func (f *fakeRepo) Confirmed(context.Context, int32) error { return nil }

func (f *fakeRepo) AllUnpublishedNoPayload(context.Context) ([]domain.Message, error) { return nil, nil }
func (f *fakeRepo) AllInFlightNoPayload(context.Context) ([]domain.Message, error)    { return nil, nil }
func (f *fakeRepo) AllDroppedInFlightNoPayload(context.Context) ([]domain.Message, error) {
	return nil, nil
}

func (f *fakeRepo) UnpublishAllInFlight(context.Context) error { return nil }
func (f *fakeRepo) DropAllInFlight(context.Context) error      { return nil }

func (f *fakeRepo) DeleteStale(ctx context.Context, purgeAge int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteStaleCalls++
	f.lastPurgeAge = purgeAge
	return nil
}

func (f *fakeRepo) Checkpoint(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpointCalls++
	return nil
}

func (f *fakeRepo) Defrag(context.Context) error { return nil }

func (f *fakeRepo) Count(context.Context) (int64, error) { return 0, nil }

func (f *fakeRepo) snapshot() (deleteStale, checkpoint int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deleteStaleCalls, f.checkpointCalls
}

var _ domain.MessageRepository = (*fakeRepo)(nil)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return log
}

// Scenario 6: with log-data-enabled=false, after one tick a checkpoint
// must have been issued.
func TestHousekeeper_IssuesCheckpointWhenBackendLogDataDisabled(t *testing.T) {
	repo := &fakeRepo{}
	cfg := config.SpoolConfig{
		HouseKeeperInterval:   time.Hour,
		PurgeAge:              3600,
		Capacity:              100,
		BackendLogDataEnabled: false,
	}

	hk := housekeeper.New(repo, cfg, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go hk.Start(ctx)

	require.Eventually(t, func() bool {
		deleteStale, checkpoint := repo.snapshot()
		return deleteStale >= 1 && checkpoint >= 1
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	hk.Stop()
}

func TestHousekeeper_SkipsCheckpointWhenBackendLogDataEnabled(t *testing.T) {
	repo := &fakeRepo{}
	cfg := config.SpoolConfig{
		HouseKeeperInterval:   time.Hour,
		PurgeAge:              3600,
		Capacity:              100,
		BackendLogDataEnabled: true,
	}

	hk := housekeeper.New(repo, cfg, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go hk.Start(ctx)

	require.Eventually(t, func() bool {
		deleteStale, _ := repo.snapshot()
		return deleteStale >= 1
	}, 3*time.Second, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	_, checkpoint := repo.snapshot()
	assert.Equal(t, 0, checkpoint)

	cancel()
	hk.Stop()
}

func TestHousekeeper_UpdateReschedulesInterval(t *testing.T) {
	repo := &fakeRepo{}
	cfg := config.SpoolConfig{
		HouseKeeperInterval:   time.Hour,
		PurgeAge:              3600,
		Capacity:              100,
		BackendLogDataEnabled: true,
	}

	hk := housekeeper.New(repo, cfg, newTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go hk.Start(ctx)

	require.Eventually(t, func() bool {
		deleteStale, _ := repo.snapshot()
		return deleteStale >= 1
	}, 3*time.Second, 10*time.Millisecond)

	hk.Update(config.SpoolConfig{
		HouseKeeperInterval:   30 * time.Millisecond,
		PurgeAge:              3600,
		Capacity:              100,
		BackendLogDataEnabled: true,
	})

	require.Eventually(t, func() bool {
		deleteStale, _ := repo.snapshot()
		return deleteStale >= 2
	}, 3*time.Second, 10*time.Millisecond)

	cancel()
	hk.Stop()
}
