//go:build integration

package repair_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/repair"
	"github.com/shyding/kura-spool/internal/repository"
	"github.com/shyding/kura-spool/internal/testutil"
)

// dropPrimaryKeySQL lets a test inject duplicate ids, the corrupted
// state Repair exists to clean up.
const dropPrimaryKeySQL = `ALTER TABLE messages DROP CONSTRAINT messages_pkey`

const insertDuplicateSQL = `
	INSERT INTO messages OVERRIDING SYSTEM VALUE
		(id, topic, qos, retain, priority, payload, createdon, publishedmessageid)
	VALUES ($1, $2, 0, false, 5, ''::bytea, now(), -1)`

func TestRepair_NoOpOnCleanStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(t)
	log, err := logger.New("error", "console")
	require.NoError(t, err)

	repo := repository.NewMessageRepository(pc.Pool, 100, log)
	_, err = repo.Store(ctx, "t", nil, domain.QoSAtMostOnce, false, 5)
	require.NoError(t, err)

	require.NoError(t, repair.Repair(ctx, pc.Pool, repair.PolicyRemoveAll, log))

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

// Scenario 4: two rows sharing id=7, repair removes both, rebuilds the
// primary key, and a subsequent Store succeeds.
func TestRepair_RemovesAllCopiesOfADuplicatedID(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(t)
	log, err := logger.New("error", "console")
	require.NoError(t, err)

	repo := repository.NewMessageRepository(pc.Pool, 100, log)
	_, err = repo.Store(ctx, "untouched", nil, domain.QoSAtMostOnce, false, 5)
	require.NoError(t, err)

	_, err = pc.Pool.Exec(ctx, dropPrimaryKeySQL)
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, insertDuplicateSQL, 7, "dup-a")
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, insertDuplicateSQL, 7, "dup-b")
	require.NoError(t, err)

	var preCount int64
	require.NoError(t, pc.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages").Scan(&preCount))
	require.EqualValues(t, 3, preCount)

	require.NoError(t, repair.Repair(ctx, pc.Pool, repair.PolicyRemoveAll, log))

	var postCount int64
	require.NoError(t, pc.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages").Scan(&postCount))
	assert.EqualValues(t, 1, postCount)

	_, err = repo.Store(ctx, "after-repair", nil, domain.QoSAtMostOnce, false, 5)
	assert.NoError(t, err)
}

func TestRepair_KeepNewestPolicyKeepsLatestCopy(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(t)
	log, err := logger.New("error", "console")
	require.NoError(t, err)

	_, err = pc.Pool.Exec(ctx, dropPrimaryKeySQL)
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, insertDuplicateSQL, 9, "dup-old")
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, "UPDATE messages SET createdon = now() - interval '1 hour' WHERE topic = 'dup-old'")
	require.NoError(t, err)
	_, err = pc.Pool.Exec(ctx, insertDuplicateSQL, 9, "dup-new")
	require.NoError(t, err)

	require.NoError(t, repair.Repair(ctx, pc.Pool, repair.PolicyKeepNewest, log))

	var topic string
	require.NoError(t, pc.Pool.QueryRow(ctx, "SELECT topic FROM messages WHERE id = 9").Scan(&topic))
	assert.Equal(t, "dup-new", topic)
}
