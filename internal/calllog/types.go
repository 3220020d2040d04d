package calllog

import (
	"context"
	"time"
)

// CallRecord stores the start and end of one bridged call.
type CallRecord struct {
	ID        string     `json:"id"`
	CallSID   string     `json:"call_sid"`
	StreamSID string     `json:"stream_sid"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	EndReason string     `json:"end_reason,omitempty"`
}

// Store persists call lifecycle records. The bridge treats it as best-effort:
// a failing store never affects call handling.
type Store interface {
	CallStarted(ctx context.Context, record CallRecord) error
	CallEnded(ctx context.Context, callSID, reason string) error
	Recent(ctx context.Context, limit int) ([]CallRecord, error)
	Close() error
}
