package domain

import "time"

// Snapshot is a row image: column name to value. A nil value is a real
// SQL NULL; an absent key means the column was not captured. The empty
// snapshot is meaningful (after-image of a DELETE, before-image of an
// INSERT).
type Snapshot map[string]any

// Actor identifies who triggered a mutation. All fields are optional.
type Actor struct {
	ID         string
	Name       string
	Address    string
	Agent      string
	Properties map[string]string
}

// Record is the finished audit record handed to a sink. It is assembled
// once per auditable execution and immutable afterwards; ownership
// transfers to the sink on dispatch.
type Record struct {
	Timestamp time.Time // capture time, not commit time
	Event     string    // "{table}_{Created|Modified|Deleted|Changed}"
	Statement string    // original statement text, never the rewritten form
	Params    Params

	Before Snapshot
	After  Snapshot

	Schema string
	Table  string
	Op     OpKind

	ActorID      string
	ActorName    string
	ActorAddress string
	ActorAgent   string

	Host        string
	PID         int
	GoroutineID uint64

	Properties map[string]string
}
