package repository

import (
	"time"

	"github.com/shyding/kura-spool/internal/domain"
)

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanFullRow scans a row selected with fullColumns, payload included.
func scanFullRow(s scanner) (domain.Message, error) {
	var (
		id                 int32
		topic              string
		qos                int16
		retain             bool
		priority           int32
		payload            []byte
		createdOn          time.Time
		publishedOn        *time.Time
		publishedMessageID int32
		sessionID          *string
		confirmedOn        *time.Time
		droppedOn          *time.Time
	)

	err := s.Scan(&id, &topic, &qos, &retain, &priority, &payload, &createdOn,
		&publishedOn, &publishedMessageID, &sessionID, &confirmedOn, &droppedOn)
	if err != nil {
		return domain.Message{}, err
	}

	return domain.NewBuilder(id).
		Topic(topic).
		QoS(domain.QoS(qos)).
		Retain(retain).
		Priority(int(priority)).
		Payload(payload).
		CreatedOn(createdOn).
		PublishedOn(publishedOn).
		PublishedMessageID(publishedMessageID).
		SessionID(sessionID).
		ConfirmedOn(confirmedOn).
		DroppedOn(droppedOn).
		Build()
}

// scanListRow scans a row selected with listColumns, payload omitted.
func scanListRow(s scanner) (domain.Message, error) {
	var (
		id                 int32
		topic              string
		qos                int16
		retain             bool
		priority           int32
		createdOn          time.Time
		publishedOn        *time.Time
		publishedMessageID int32
		sessionID          *string
		confirmedOn        *time.Time
		droppedOn          *time.Time
	)

	err := s.Scan(&id, &topic, &qos, &retain, &priority, &createdOn,
		&publishedOn, &publishedMessageID, &sessionID, &confirmedOn, &droppedOn)
	if err != nil {
		return domain.Message{}, err
	}

	return domain.NewBuilder(id).
		Topic(topic).
		QoS(domain.QoS(qos)).
		Retain(retain).
		Priority(int(priority)).
		CreatedOn(createdOn).
		PublishedOn(publishedOn).
		PublishedMessageID(publishedMessageID).
		SessionID(sessionID).
		ConfirmedOn(confirmedOn).
		DroppedOn(droppedOn).
		Build()
}
