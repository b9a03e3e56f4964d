package domain

import "time"

type OutboxEvent struct {
	Id            int64
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Headers       []byte
	Topic         string
	CreatedAt     time.Time
}
