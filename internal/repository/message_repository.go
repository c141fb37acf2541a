// Package repository implements spec.md §4.C (the message repository)
// and §4.D (capacity & identity policy) against PostgreSQL via pgx.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/shyding/kura-spool/internal/domain"
	"github.com/shyding/kura-spool/internal/pkg/database"
	"github.com/shyding/kura-spool/internal/pkg/logger"
	"github.com/shyding/kura-spool/internal/pkg/metrics"
	"github.com/shyding/kura-spool/internal/pkg/pgerr"
)

const fullColumns = "id, topic, qos, retain, priority, payload, createdon, publishedon, publishedmessageid, sessionid, confirmedon, droppedon"
const listColumns = "id, topic, qos, retain, priority, createdon, publishedon, publishedmessageid, sessionid, confirmedon, droppedon"

// MessageRepositoryImpl is the production domain.MessageRepository.
// Every public method is serialised on mu, per spec.md §5's "single
// mutex" concurrency model: no two operations ever execute concurrently
// against the store.
type MessageRepositoryImpl struct {
	pool     *pgxpool.Pool
	capacity int
	logger   *logger.Logger

	mu sync.Mutex
}

// NewMessageRepository creates a message repository bound to pool, with
// the configured row-count capacity (bypassed for priorities 0 and 1).
func NewMessageRepository(pool *pgxpool.Pool, capacity int, log *logger.Logger) *MessageRepositoryImpl {
	return &MessageRepositoryImpl{pool: pool, capacity: capacity, logger: log}
}

// Store inserts a new message, enforcing the capacity and identity
// policies of spec.md §4.D.
func (r *MessageRepositoryImpl) Store(ctx context.Context, topic string, payload []byte, qos domain.QoS, retain bool, priority int) (domain.Message, error) {
	if strings.TrimSpace(topic) == "" {
		return domain.Message{}, fmt.Errorf("%w: topic must not be empty", domain.ErrInvalidArgument)
	}
	if utf8.RuneCountInString(topic) > domain.MaxTopicLength {
		return domain.Message{}, fmt.Errorf("%w: topic exceeds %d characters", domain.ErrInvalidArgument, domain.MaxTopicLength)
	}
	if len(payload) > domain.MaxPayloadBytes {
		return domain.Message{}, fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrInvalidArgument, domain.MaxPayloadBytes)
	}
	if qos != domain.QoSAtMostOnce && qos != domain.QoSAtLeastOnce && qos != domain.QoSExactlyOnce {
		return domain.Message{}, fmt.Errorf("%w: qos %d out of range", domain.ErrInvalidArgument, qos)
	}
	if payload == nil {
		payload = []byte{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if priority != domain.PriorityLifecycle && priority != domain.PriorityRemoteManagement {
		count, err := r.countLocked(ctx)
		if err != nil {
			return domain.Message{}, err
		}
		if count >= int64(r.capacity) {
			metrics.RecordCapacityRejection()
			return domain.Message{}, domain.ErrCapacityReached
		}
	}

	createdOn := time.Now().UTC()

	id, err := r.insertLocked(ctx, topic, payload, qos, retain, priority, createdOn)
	if err != nil {
		if !pgerr.Is(err, pgerr.IdentityExhausted) {
			return domain.Message{}, mapError(err)
		}

		// Best-effort mitigation only: the restarted sequence can hand out
		// an id still held by a row at the low end of the id space, in
		// which case the retried insert fails and ErrIdentityExhausted is
		// returned. repair.Repair is the cleanup for duplicate ids.
		r.logger.Warn("identity sequence exhausted, resetting and retrying once")
		metrics.RecordIdentityReset()
		if _, resetErr := r.pool.Exec(ctx, "ALTER TABLE messages ALTER COLUMN id RESTART WITH 0"); resetErr != nil {
			return domain.Message{}, fmt.Errorf("%w: identity reset failed: %v", domain.ErrIdentityExhausted, resetErr)
		}

		id, err = r.insertLocked(ctx, topic, payload, qos, retain, priority, createdOn)
		if err != nil {
			return domain.Message{}, fmt.Errorf("%w: retry after reset failed: %v", domain.ErrIdentityExhausted, err)
		}
	}

	metrics.RecordStored(priority)

	msg, err := r.getLocked(ctx, id)
	if err != nil {
		return domain.Message{}, err
	}
	if msg == nil {
		return domain.Message{}, fmt.Errorf("%w: row %d vanished after insert", domain.ErrStoreError, id)
	}
	return *msg, nil
}

func (r *MessageRepositoryImpl) insertLocked(ctx context.Context, topic string, payload []byte, qos domain.QoS, retain bool, priority int, createdOn time.Time) (int32, error) {
	const insertSQL = `
		INSERT INTO messages (topic, qos, retain, priority, payload, createdon, publishedmessageid)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int32
	err := r.pool.QueryRow(ctx, insertSQL, topic, int16(qos), retain, priority, payload, createdOn, domain.UnsetPublishedMessageID).Scan(&id)
	return id, err
}

func (r *MessageRepositoryImpl) countLocked(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM messages").Scan(&count); err != nil {
		return 0, mapError(err)
	}
	return count, nil
}

// Count returns the current row count.
func (r *MessageRepositoryImpl) Count(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countLocked(ctx)
}

func (r *MessageRepositoryImpl) getLocked(ctx context.Context, id int32) (*domain.Message, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+fullColumns+" FROM messages WHERE id = $1", id)
	msg, err := scanFullRow(row)
	if err != nil {
		if domainIsNotFound(err) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &msg, nil
}

// Get returns the full row for id, or nil if it doesn't exist.
func (r *MessageRepositoryImpl) Get(ctx context.Context, id int32) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(ctx, id)
}

// GetNext returns the highest-priority, oldest unpublished message.
func (r *MessageRepositoryImpl) GetNext(ctx context.Context) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `
		SELECT ` + fullColumns + `
		FROM messages
		WHERE publishedon IS NULL
		ORDER BY priority ASC, createdon ASC
		LIMIT 1`

	row := r.pool.QueryRow(ctx, q)
	msg, err := scanFullRow(row)
	if err != nil {
		if domainIsNotFound(err) {
			return nil, nil
		}
		return nil, mapError(err)
	}
	return &msg, nil
}

// Published marks id published, fire-and-forget form.
func (r *MessageRepositoryImpl) Published(ctx context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.pool.Exec(ctx, "UPDATE messages SET publishedon = $1 WHERE id = $2", time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	metrics.RecordPublished()
	return nil
}

// PublishedWithSession marks id published with its broker-assigned id
// and the transport session that published it (QoS >= 1 form).
func (r *MessageRepositoryImpl) PublishedWithSession(ctx context.Context, id int32, publishedMessageID int32, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctx = logger.WithSessionIDCtx(ctx, sessionID)

	const q = `UPDATE messages SET publishedon = $1, publishedmessageid = $2, sessionid = $3 WHERE id = $4`
	_, err := r.pool.Exec(ctx, q, time.Now().UTC(), publishedMessageID, sessionID, id)
	if err != nil {
		return mapError(err)
	}
	metrics.RecordPublished()
	r.logger.WithContext(ctx).Debug("message published under session", zap.Int32("id", id))
	return nil
}

// Confirmed marks id confirmed.
func (r *MessageRepositoryImpl) Confirmed(ctx context.Context, id int32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.pool.Exec(ctx, "UPDATE messages SET confirmedon = $1 WHERE id = $2", time.Now().UTC(), id)
	if err != nil {
		return mapError(err)
	}
	metrics.RecordConfirmed()
	return nil
}

// AllUnpublishedNoPayload lists unpublished rows, payload stripped.
func (r *MessageRepositoryImpl) AllUnpublishedNoPayload(ctx context.Context) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `
		SELECT ` + listColumns + `
		FROM messages
		WHERE publishedon IS NULL
		ORDER BY priority ASC, createdon ASC`
	return r.listLocked(ctx, q)
}

// AllInFlightNoPayload lists QoS>0 in-flight rows, payload stripped.
func (r *MessageRepositoryImpl) AllInFlightNoPayload(ctx context.Context) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `
		SELECT ` + listColumns + `
		FROM messages
		WHERE publishedon IS NOT NULL AND qos > 0 AND confirmedon IS NULL AND droppedon IS NULL
		ORDER BY priority ASC, createdon ASC`
	return r.listLocked(ctx, q)
}

// AllDroppedInFlightNoPayload lists dropped rows, payload stripped.
func (r *MessageRepositoryImpl) AllDroppedInFlightNoPayload(ctx context.Context) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `
		SELECT ` + listColumns + `
		FROM messages
		WHERE droppedon IS NOT NULL
		ORDER BY priority ASC, createdon ASC`
	return r.listLocked(ctx, q)
}

func (r *MessageRepositoryImpl) listLocked(ctx context.Context, query string, args ...any) ([]domain.Message, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		msg, err := scanListRow(rows)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// UnpublishAllInFlight rejoins every uncommitted in-flight QoS>0
// message to the unpublished queue, for session-resume after a
// transport loss.
func (r *MessageRepositoryImpl) UnpublishAllInFlight(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `UPDATE messages SET publishedon = NULL WHERE publishedon IS NOT NULL AND qos > 0 AND confirmedon IS NULL`
	_, err := r.pool.Exec(ctx, q)
	return mapError(err)
}

// DropAllInFlight marks every uncommitted in-flight QoS>0 message
// dropped, for session-abandon.
func (r *MessageRepositoryImpl) DropAllInFlight(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	const q = `
		UPDATE messages SET droppedon = $1
		WHERE publishedon IS NOT NULL AND qos > 0 AND confirmedon IS NULL AND droppedon IS NULL`
	tag, err := r.pool.Exec(ctx, q, time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	for i := int64(0); i < tag.RowsAffected(); i++ {
		metrics.RecordDropped()
	}
	return nil
}

// DeleteStale purges terminal-state rows older than purgeAge seconds,
// in the three independent sweeps spec.md §4.C names. On an interval
// overflow it falls back to a one-year horizon (see stale_cutoff.go).
func (r *MessageRepositoryImpl) DeleteStale(ctx context.Context, purgeAge int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff, coarse := staleCutoff(purgeAge)
	if coarse {
		r.logger.Warn("purge age overflowed, falling back to a one-year horizon", zap.Int64("purge_age_seconds", purgeAge))
	}

	sweeps := []struct {
		name  string
		query string
	}{
		{"dropped", "DELETE FROM messages WHERE droppedon IS NOT NULL AND droppedon < $1"},
		{"confirmed", "DELETE FROM messages WHERE confirmedon IS NOT NULL AND confirmedon < $1"},
		{"fire_and_forget", "DELETE FROM messages WHERE qos = 0 AND publishedon IS NOT NULL AND publishedon < $1"},
	}

	for _, sweep := range sweeps {
		if err := ctx.Err(); err != nil {
			return err
		}
		tag, err := r.pool.Exec(ctx, sweep.query, cutoff)
		if err != nil {
			if pgerr.Is(err, pgerr.IntervalOverflow) {
				yearCutoff := time.Now().UTC().AddDate(-1, 0, 0)
				if tag, err = r.pool.Exec(ctx, sweep.query, yearCutoff); err != nil {
					return mapError(err)
				}
			} else {
				return mapError(err)
			}
		}
		metrics.RecordStalePurged(sweep.name, tag.RowsAffected())
	}

	return nil
}

// Checkpoint flushes dirty pages to durable storage.
func (r *MessageRepositoryImpl) Checkpoint(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return mapError(database.Checkpoint(ctx, r.pool))
}

// Defrag compacts free space (see DESIGN.md Open Question 6).
func (r *MessageRepositoryImpl) Defrag(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return mapError(database.Defrag(ctx, r.pool))
}

func domainIsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
