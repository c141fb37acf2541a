package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Checkpoint flushes dirty buffers to durable storage. It is the
// concrete stand-in for spec.md's abstract backend "CHECKPOINT" command.
func Checkpoint(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint failed: %w", err)
	}
	return nil
}

// Defrag compacts free space after a checkpoint. Postgres has no literal
// "CHECKPOINT DEFRAG" statement; VACUUM is the nearest real equivalent
// (see DESIGN.md, Open Question 6).
func Defrag(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "VACUUM messages"); err != nil {
		return fmt.Errorf("defrag failed: %w", err)
	}
	return nil
}
