package domain

import "time"

// QoS is the MQTT quality-of-service level requested for a message.
type QoS int

const (
	QoSAtMostOnce  QoS = 0
	QoSAtLeastOnce QoS = 1
	QoSExactlyOnce QoS = 2
)

// Priority bands mirror spec.md's capacity-bypass rule: 0 is lifecycle
// traffic, 1 is remote-management traffic, and both bypass the row cap.
// Everything >= 2 is ordinary application traffic and is subject to it.
const (
	PriorityLifecycle        = 0
	PriorityRemoteManagement = 1
)

// UnsetPublishedMessageID is the sentinel stored before a message has
// been handed to the transport.
const UnsetPublishedMessageID = -1

// MaxTopicLength and MaxPayloadBytes are the hard ceilings spec.md §3
// places on a stored message.
const (
	MaxTopicLength = 32767
	MaxPayloadBytes = 16 * 1024 * 1024
)

// Message is an immutable snapshot of a spooled row. Callers never
// receive a pointer into repository-owned state; every Message returned
// by the repository is a fresh value built from a freshly scanned row.
type Message struct {
	ID                 int32
	Topic              string
	QoS                QoS
	Retain             bool
	Priority           int
	Payload            []byte // nil for *NoPayload listings
	CreatedOn          time.Time
	PublishedOn        *time.Time
	PublishedMessageID int32
	SessionID          *string
	ConfirmedOn        *time.Time
	DroppedOn          *time.Time
}

// State is the derived lifecycle state named in spec.md §3.
type State int

const (
	StateUnpublished State = iota
	StateInFlight
	StatePublishedFireAndForget
	StateConfirmed
	StateDropped
)

// DerivedState computes the lifecycle state from the timestamp tuple.
// It does not validate the invariants that make a given tuple legal;
// that validation happens once, at construction time, in Builder.Build.
func (m Message) DerivedState() State {
	switch {
	case m.PublishedOn == nil:
		return StateUnpublished
	case m.DroppedOn != nil:
		return StateDropped
	case m.ConfirmedOn != nil:
		return StateConfirmed
	case m.QoS == QoSAtMostOnce:
		return StatePublishedFireAndForget
	default:
		return StateInFlight
	}
}

// Builder constructs a Message, seeded with the store-assigned id, and
// validates the §3 invariants on Build.
type Builder struct {
	m Message
}

// NewBuilder seeds a builder with the row's identity.
func NewBuilder(id int32) *Builder {
	return &Builder{m: Message{ID: id, PublishedMessageID: UnsetPublishedMessageID}}
}

func (b *Builder) Topic(topic string) *Builder {
	b.m.Topic = topic
	return b
}

func (b *Builder) QoS(qos QoS) *Builder {
	b.m.QoS = qos
	return b
}

func (b *Builder) Retain(retain bool) *Builder {
	b.m.Retain = retain
	return b
}

func (b *Builder) Priority(priority int) *Builder {
	b.m.Priority = priority
	return b
}

func (b *Builder) Payload(payload []byte) *Builder {
	b.m.Payload = payload
	return b
}

func (b *Builder) CreatedOn(t time.Time) *Builder {
	b.m.CreatedOn = t.UTC()
	return b
}

func (b *Builder) PublishedOn(t *time.Time) *Builder {
	b.m.PublishedOn = utcPtr(t)
	return b
}

func (b *Builder) PublishedMessageID(id int32) *Builder {
	b.m.PublishedMessageID = id
	return b
}

func (b *Builder) SessionID(sessionID *string) *Builder {
	b.m.SessionID = sessionID
	return b
}

func (b *Builder) ConfirmedOn(t *time.Time) *Builder {
	b.m.ConfirmedOn = utcPtr(t)
	return b
}

func (b *Builder) DroppedOn(t *time.Time) *Builder {
	b.m.DroppedOn = utcPtr(t)
	return b
}

// Build validates the §3 invariants and returns the finished snapshot.
func (b *Builder) Build() (Message, error) {
	m := b.m
	if m.CreatedOn.IsZero() {
		return Message{}, ErrInvalidArgument
	}
	if m.PublishedOn == nil {
		if m.ConfirmedOn != nil || m.DroppedOn != nil {
			return Message{}, ErrInvalidArgument
		}
		if m.PublishedMessageID != UnsetPublishedMessageID {
			return Message{}, ErrInvalidArgument
		}
		if m.SessionID != nil {
			return Message{}, ErrInvalidArgument
		}
	}
	if m.ConfirmedOn != nil && (m.PublishedOn == nil || m.QoS == QoSAtMostOnce) {
		return Message{}, ErrInvalidArgument
	}
	if m.DroppedOn != nil && (m.PublishedOn == nil || m.QoS == QoSAtMostOnce || m.ConfirmedOn != nil) {
		return Message{}, ErrInvalidArgument
	}
	return m, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
