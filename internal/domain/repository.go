package domain

import "context"

// MessageRepository is the contract spec.md §4.C/§6 names as the
// "Publisher/session contract". internal/repository.MessageRepositoryImpl
// is the only production implementation; the interface exists so
// internal/housekeeper can be exercised against a fake in unit tests
// without a live Postgres instance.
type MessageRepository interface {
	Store(ctx context.Context, topic string, payload []byte, qos QoS, retain bool, priority int) (Message, error)
	Get(ctx context.Context, id int32) (*Message, error)
	GetNext(ctx context.Context) (*Message, error)
	Published(ctx context.Context, id int32) error
	PublishedWithSession(ctx context.Context, id int32, publishedMessageID int32, sessionID string) error
	Confirmed(ctx context.Context, id int32) error

	AllUnpublishedNoPayload(ctx context.Context) ([]Message, error)
	AllInFlightNoPayload(ctx context.Context) ([]Message, error)
	AllDroppedInFlightNoPayload(ctx context.Context) ([]Message, error)

	UnpublishAllInFlight(ctx context.Context) error
	DropAllInFlight(ctx context.Context) error

	DeleteStale(ctx context.Context, purgeAge int64) error
	Checkpoint(ctx context.Context) error
	Defrag(ctx context.Context) error

	Count(ctx context.Context) (int64, error)
}
