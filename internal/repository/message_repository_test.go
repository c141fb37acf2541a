//go:build integration

package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/repository"
	"github.com/shyding/kura-spool/internal/testutil"
)

func newTestRepo(t *testing.T, capacity int) (*repository.MessageRepositoryImpl, *testutil.PostgresContainer) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	pc := testutil.NewPostgresContainer(t)
	log, err := logger.New("error", "console")
	require.NoError(t, err)
	return repository.NewMessageRepository(pc.Pool, capacity, log), pc
}

// Scenario 1: capacity enforcement, with priority 0/1 bypassing it.
func TestStore_CapacityEnforcementWithPriorityBypass(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 2)

	_, err := repo.Store(ctx, "a", []byte("a"), domain.QoSAtMostOnce, false, 5)
	require.NoError(t, err)
	_, err = repo.Store(ctx, "b", []byte("b"), domain.QoSAtMostOnce, false, 5)
	require.NoError(t, err)

	_, err = repo.Store(ctx, "c", []byte("c"), domain.QoSAtMostOnce, false, 5)
	assert.ErrorIs(t, err, domain.ErrCapacityReached)

	_, err = repo.Store(ctx, "lifecycle", nil, domain.QoSAtMostOnce, false, domain.PriorityLifecycle)
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)
}

// Scenario 2: priority/createdOn ordering, publish/confirm lifecycle.
func TestGetNext_OrdersByPriorityThenCreatedOn(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 100)

	a, err := repo.Store(ctx, "a", nil, domain.QoSAtLeastOnce, false, 3)
	require.NoError(t, err)
	b, err := repo.Store(ctx, "b", nil, domain.QoSAtLeastOnce, false, 2)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	c, err := repo.Store(ctx, "c", nil, domain.QoSAtLeastOnce, false, 2)
	require.NoError(t, err)
	_ = a

	next, err := repo.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, b.ID, next.ID)

	require.NoError(t, repo.PublishedWithSession(ctx, b.ID, 1, "session-1"))

	next, err = repo.GetNext(ctx)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, c.ID, next.ID)

	require.NoError(t, repo.Confirmed(ctx, b.ID))

	inFlight, err := repo.AllInFlightNoPayload(ctx)
	require.NoError(t, err)
	require.Len(t, inFlight, 0)

	require.NoError(t, repo.PublishedWithSession(ctx, c.ID, 2, "session-1"))
	inFlight, err = repo.AllInFlightNoPayload(ctx)
	require.NoError(t, err)
	require.Len(t, inFlight, 1)
	assert.Equal(t, c.ID, inFlight[0].ID)
}

// Scenario 3: stale fire-and-forget purge.
func TestDeleteStale_PurgesAgedFireAndForget(t *testing.T) {
	ctx := context.Background()
	repo, pc := newTestRepo(t, 100)

	msg, err := repo.Store(ctx, "t", nil, domain.QoSAtMostOnce, false, 5)
	require.NoError(t, err)
	require.NoError(t, repo.Published(ctx, msg.ID))

	backdate := time.Now().UTC().Add(-2 * time.Hour)
	_, err = pc.Pool.Exec(ctx, "UPDATE messages SET publishedon = $1 WHERE id = $2", backdate, msg.ID)
	require.NoError(t, err)

	require.NoError(t, repo.DeleteStale(ctx, 3600))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

// Scenario 5: dropped rows still count toward capacity.
func TestDropAllInFlight_DroppedRowsStillCountTowardCapacity(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 1)

	msg, err := repo.Store(ctx, "t", nil, domain.QoSAtLeastOnce, false, 5)
	require.NoError(t, err)
	require.NoError(t, repo.PublishedWithSession(ctx, msg.ID, 1, "s1"))

	require.NoError(t, repo.DropAllInFlight(ctx))

	got, err := repo.Get(ctx, msg.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, domain.StateDropped, got.DerivedState())

	_, err = repo.Store(ctx, "other", nil, domain.QoSAtMostOnce, false, 5)
	assert.ErrorIs(t, err, domain.ErrCapacityReached)
}

func TestStore_RejectsEmptyTopic(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 10)

	_, err := repo.Store(ctx, "  ", nil, domain.QoSAtMostOnce, false, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStore_RejectsInvalidQoS(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 10)

	_, err := repo.Store(ctx, "t", nil, domain.QoS(9), false, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStoreGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 10)

	stored, err := repo.Store(ctx, "device/1/data", []byte("payload"), domain.QoSExactlyOnce, true, 4)
	require.NoError(t, err)

	got, err := repo.Get(ctx, stored.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, stored.Topic, got.Topic)
	assert.Equal(t, stored.QoS, got.QoS)
	assert.Equal(t, stored.Retain, got.Retain)
	assert.Equal(t, stored.Priority, got.Priority)
	assert.Equal(t, stored.Payload, got.Payload)
}

func TestCheckpointAndDefrag_DoNotError(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t, 10)

	assert.NoError(t, repo.Checkpoint(ctx))
	assert.NoError(t, repo.Defrag(ctx))
}
