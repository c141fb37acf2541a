// Package schema creates and migrates the messages table spec.md §4.B
// describes. It tolerates being run against an already-initialised
// store.
package schema

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/pkg/pgerr"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS messages (
	id                   INT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	topic                TEXT NOT NULL,
	qos                  SMALLINT NOT NULL,
	retain               BOOLEAN NOT NULL DEFAULT FALSE,
	priority             INT NOT NULL DEFAULT 0,
	payload              BYTEA,
	createdon            TIMESTAMPTZ NOT NULL,
	publishedon          TIMESTAMPTZ,
	publishedmessageid   INT NOT NULL DEFAULT -1,
	sessionid            TEXT,
	confirmedon          TIMESTAMPTZ,
	droppedon            TIMESTAMPTZ
)`

const dropLegacyIndexSQL = `DROP INDEX IF EXISTS messages_publishedon`

const createNextMsgIndexSQL = `
CREATE INDEX messages_nextmsg
	ON messages (priority ASC, createdon ASC, publishedon, qos)`

// Manager owns schema creation and migration.
type Manager struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

// NewManager creates a schema manager.
func NewManager(pool *pgxpool.Pool, log *logger.Logger) *Manager {
	return &Manager{pool: pool, logger: log}
}

// Start creates the messages table and its indexes, migrating away from
// the legacy "messages_publishedon" index if present. It is safe to call
// on every process start.
func (m *Manager) Start(ctx context.Context) error {
	if _, err := m.pool.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create messages table: %w", err)
	}

	if _, err := m.pool.Exec(ctx, dropLegacyIndexSQL); err != nil {
		return fmt.Errorf("drop legacy index: %w", err)
	}

	if _, err := m.pool.Exec(ctx, createNextMsgIndexSQL); err != nil {
		if !pgerr.Is(err, pgerr.AlreadyExists) {
			return fmt.Errorf("create messages_nextmsg index: %w", err)
		}
		m.logger.Debug("messages_nextmsg index already exists, skipping")
	}

	m.logger.Info("schema ready")
	return nil
}
