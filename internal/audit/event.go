// Package audit implements AuditQueue (C4) and the AuditEvent record
// schema: a bounded, lock-free multi-producer/single-consumer queue with
// guaranteed drop accounting.
package audit

// EventType enumerates the fixed schema kinds an AuditEvent may carry.
type EventType uint8

const (
	EventUnknown EventType = iota
	EventRunMetadata
	EventTelemetryIngested
	EventProposalEmitted
	EventApplyAccepted
	EventApplyRejected
	EventRollback
	EventSafeModeEnter
	EventSafeModeExit
	EventDrop
)

// Event is the fixed-schema audit record. Payload fields not relevant to a
// given EventType are left at their zero value.
type Event struct {
	Type        EventType
	TimestampNs int64
	RunID       string
	ProposalID  uint64
	Generation  uint64

	// Reason carries a Violation or SafeModeReason string tag, depending on
	// Type. Empty when not applicable.
	Reason string

	// DroppedCount is set only on EventDrop: the cumulative drop count
	// observed at the moment this marker was enqueued.
	DroppedCount uint64

	// Payload carries type-specific auxiliary data (e.g. the run-metadata
	// record, or a human-readable detail string) without growing the
	// struct for every event kind.
	Payload string
}
