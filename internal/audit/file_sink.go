package audit

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
)

// fileRecord is the NDJSON-serializable form of an audit record.
type fileRecord struct {
	Timestamp    string            `json:"ts"`
	Event        string            `json:"event"`
	SQL          string            `json:"sql"`
	Params       map[string]any    `json:"params,omitempty"`
	Before       map[string]any    `json:"before,omitempty"`
	After        map[string]any    `json:"after,omitempty"`
	Table        string            `json:"table"`
	Operation    string            `json:"operation"`
	ActorID      string            `json:"actor_id,omitempty"`
	ActorName    string            `json:"actor_name,omitempty"`
	ActorAddress string            `json:"actor_address,omitempty"`
	ActorAgent   string            `json:"actor_agent,omitempty"`
	Host         string            `json:"host"`
	PID          int               `json:"pid"`
	GoroutineID  uint64            `json:"goroutine_id"`
	Properties   map[string]string `json:"properties,omitempty"`
}

// FileSink writes audit records as NDJSON (one JSON object per line) to a
// file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileSink opens (or creates) the file at path for append-only writing.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileSink{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (s *FileSink) Write(_ context.Context, rec *domain.Record) error {
	fr := fileRecord{
		Timestamp:    rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:        rec.Event,
		SQL:          rec.Statement,
		Params:       rec.Params,
		Before:       rec.Before,
		After:        rec.After,
		Table:        rec.Table,
		Operation:    string(rec.Op),
		ActorID:      rec.ActorID,
		ActorName:    rec.ActorName,
		ActorAddress: rec.ActorAddress,
		ActorAgent:   rec.ActorAgent,
		Host:         rec.Host,
		PID:          rec.PID,
		GoroutineID:  rec.GoroutineID,
		Properties:   rec.Properties,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(fr)
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
