package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_UnpublishedMessage(t *testing.T) {
	now := time.Now()

	msg, err := NewBuilder(1).
		Topic("device/1/data").
		QoS(QoSAtLeastOnce).
		Priority(5).
		CreatedOn(now).
		Build()

	require.NoError(t, err)
	assert.Equal(t, StateUnpublished, msg.DerivedState())
	assert.Equal(t, int32(UnsetPublishedMessageID), msg.PublishedMessageID)
	assert.True(t, msg.CreatedOn.Equal(now.UTC()))
}

func TestBuilder_RejectsZeroCreatedOn(t *testing.T) {
	_, err := NewBuilder(1).Topic("t").Build()
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuilder_RejectsConfirmedWithoutPublished(t *testing.T) {
	now := time.Now()
	confirmed := now.Add(time.Second)

	_, err := NewBuilder(1).
		Topic("t").
		CreatedOn(now).
		ConfirmedOn(&confirmed).
		Build()

	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestBuilder_RejectsConfirmedOnFireAndForget(t *testing.T) {
	now := time.Now()
	published := now.Add(time.Second)
	confirmed := published.Add(time.Second)

	_, err := NewBuilder(1).
		Topic("t").
		QoS(QoSAtMostOnce).
		CreatedOn(now).
		PublishedOn(&published).
		ConfirmedOn(&confirmed).
		Build()

	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestDerivedState_InFlight(t *testing.T) {
	now := time.Now()
	published := now.Add(time.Second)

	msg, err := NewBuilder(1).
		Topic("t").
		QoS(QoSAtLeastOnce).
		CreatedOn(now).
		PublishedOn(&published).
		PublishedMessageID(42).
		Build()

	require.NoError(t, err)
	assert.Equal(t, StateInFlight, msg.DerivedState())
}

func TestDerivedState_PublishedFireAndForget(t *testing.T) {
	now := time.Now()
	published := now.Add(time.Second)

	msg, err := NewBuilder(1).
		Topic("t").
		QoS(QoSAtMostOnce).
		CreatedOn(now).
		PublishedOn(&published).
		Build()

	require.NoError(t, err)
	assert.Equal(t, StatePublishedFireAndForget, msg.DerivedState())
}

func TestDerivedState_Dropped(t *testing.T) {
	now := time.Now()
	published := now.Add(time.Second)
	dropped := published.Add(time.Second)

	msg, err := NewBuilder(1).
		Topic("t").
		QoS(QoSExactlyOnce).
		CreatedOn(now).
		PublishedOn(&published).
		PublishedMessageID(7).
		DroppedOn(&dropped).
		Build()

	require.NoError(t, err)
	assert.Equal(t, StateDropped, msg.DerivedState())
}
