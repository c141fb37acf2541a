// Package repair implements the duplicate-id cleanup routine spec.md
// §4.F describes: a crash between a `RESTART WITH 0` identity reset and
// the next write can leave two rows sharing one id. Repair finds and
// removes the collision, then rebuilds the primary key.
package repair

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/database"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/pkg/metrics"
)

// Policy selects which duplicate rows survive a repair pass.
type Policy int

const (
	// PolicyRemoveAll deletes every row sharing a duplicated id,
	// matching spec.md's default behaviour: the id itself is no
	// longer trustworthy once it has collided.
	PolicyRemoveAll Policy = iota
	// PolicyKeepNewest deletes every row sharing a duplicated id
	// except the one with the latest createdon, the variant spec.md
	// flags as reasonable but not its default.
	PolicyKeepNewest
)

const countDuplicatesSQL = `
	SELECT COUNT(*) FROM (
		SELECT id FROM messages GROUP BY id HAVING COUNT(*) > 1
	) d`

const dropPrimaryKeySQL = `ALTER TABLE messages DROP CONSTRAINT IF EXISTS messages_pkey`

const addPrimaryKeySQL = `ALTER TABLE messages ADD PRIMARY KEY (id)`

const removeAllDuplicatesSQL = `
	DELETE FROM messages
	WHERE id IN (SELECT id FROM messages GROUP BY id HAVING COUNT(*) > 1)`

const keepNewestDuplicatesSQL = `
	DELETE FROM messages m
	USING messages newer
	WHERE m.id = newer.id
	  AND m.createdon < newer.createdon`

// Repair runs one pass of the duplicate-id cleanup routine against
// pool, using policy to decide which copies survive.
func Repair(ctx context.Context, pool *pgxpool.Pool, policy Policy, log *logger.Logger) error {
	var dupCount int64
	if err := pool.QueryRow(ctx, countDuplicatesSQL).Scan(&dupCount); err != nil {
		return fmt.Errorf("%w: count duplicates: %w", domain.ErrStoreError, err)
	}

	if dupCount == 0 {
		log.Debug("repair: no duplicate ids found")
		return nil
	}

	log.Warn("repair: duplicate ids found, cleaning up", zap.Int64("duplicate_groups", dupCount), zap.Int("policy", int(policy)))

	var removed int64
	tm := database.NewTxManager(pool)
	err := tm.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, dropPrimaryKeySQL); err != nil {
			return fmt.Errorf("drop primary key: %w", err)
		}

		deleteSQL := removeAllDuplicatesSQL
		if policy == PolicyKeepNewest {
			deleteSQL = keepNewestDuplicatesSQL
		}

		tag, err := tx.Exec(ctx, deleteSQL)
		if err != nil {
			return fmt.Errorf("delete duplicates: %w", err)
		}
		removed = tag.RowsAffected()

		if _, err := tx.Exec(ctx, addPrimaryKeySQL); err != nil {
			return fmt.Errorf("rebuild primary key: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: repair transaction: %w", domain.ErrStoreError, err)
	}

	metrics.RecordRepairRemoved(removed)
	log.Info("repair: duplicates removed, rebuilding pk succeeded", zap.Int64("rows_removed", removed))

	if err := database.Checkpoint(ctx, pool); err != nil {
		return fmt.Errorf("%w: post-repair checkpoint: %w", domain.ErrStoreError, err)
	}
	if err := database.Defrag(ctx, pool); err != nil {
		return fmt.Errorf("%w: post-repair vacuum: %w", domain.ErrStoreError, err)
	}

	return nil
}
