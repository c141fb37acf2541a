//go:build integration

package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/schema"
	"github.com/shyding/kura-spool/internal/testutil"
)

// TestStart_IsIdempotent validates that running the migration twice
// against the same store succeeds, exercising the 42P07-tolerant
// path around the messages_nextmsg index creation.
func TestStart_IsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	container := testutil.NewPostgresContainer(t)
	ctx := context.Background()

	log, err := logger.New("error", "console")
	require.NoError(t, err)

	require.NoError(t, schema.NewManager(container.Pool, log).Start(ctx))

	var indexCount int
	err = container.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pg_indexes WHERE indexname = 'messages_nextmsg'`,
	).Scan(&indexCount)
	require.NoError(t, err)
	require.Equal(t, 1, indexCount)

	var tableCount int
	err = container.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_name = 'messages'`,
	).Scan(&tableCount)
	require.NoError(t, err)
	require.Equal(t, 1, tableCount)
}
