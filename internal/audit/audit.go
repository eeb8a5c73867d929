// Package audit persists a trail of masking operations. Events carry request
// metadata and per-type counts; detected values are never written.
package audit

import (
	"context"
	"time"

	"github.com/raaihank/datacloak/internal/privacy"
)

// Operation names the kind of request that produced an event
type Operation string

const (
	OperationDetect Operation = "detect"
	OperationMask   Operation = "mask"
	OperationBatch  Operation = "batch"
)

// Event is one row of the audit trail
type Event struct {
	ID              int64     `db:"id" json:"id"`
	RequestID       string    `db:"request_id" json:"request_id"`
	Operation       string    `db:"operation" json:"operation"`
	TextLength      int       `db:"text_length" json:"text_length"` // records, for batch events
	ItemsFound      int       `db:"items_found" json:"items_found"`
	EmailCount      int       `db:"email_count" json:"email_count"`
	PhoneCount      int       `db:"phone_count" json:"phone_count"`
	SSNCount        int       `db:"ssn_count" json:"ssn_count"`
	CreditCardCount int       `db:"credit_card_count" json:"credit_card_count"`
	DurationMs      int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// NewEvent builds an event from the detections of a single request
func NewEvent(requestID string, op Operation, textLength int, detections []privacy.Detection, elapsed time.Duration) *Event {
	counts := privacy.CountByType(detections)
	return &Event{
		RequestID:       requestID,
		Operation:       string(op),
		TextLength:      textLength,
		ItemsFound:      len(detections),
		EmailCount:      counts[privacy.TypeEmail],
		PhoneCount:      counts[privacy.TypePhone],
		SSNCount:        counts[privacy.TypeSSN],
		CreditCardCount: counts[privacy.TypeCreditCard],
		DurationMs:      elapsed.Milliseconds(),
	}
}

// Sink receives audit events and serves the most recent ones back
type Sink interface {
	Record(ctx context.Context, event *Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// NopSink discards every event
type NopSink struct{}

func (NopSink) Record(context.Context, *Event) error         { return nil }
func (NopSink) Recent(context.Context, int) ([]Event, error) { return nil, nil }
func (NopSink) Close() error                                 { return nil }
