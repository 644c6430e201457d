package service

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/guillermoBallester/rowtrail/internal/core/domain"
	"github.com/guillermoBallester/rowtrail/internal/core/port"
)

// Assembler merges statement data, captured snapshots, and actor context
// into the final audit record, then dispatches it to the sink.
//
// Dispatch is synchronous: the sink write completes before the
// intercepted call returns, so record order matches execution order and
// nothing is lost on shutdown, at the cost of sink latency on the write
// path. Sink errors are logged, never propagated.
type Assembler struct {
	sink   port.Sink
	actors port.ActorProvider
	filter port.AuditFilter
	logger *slog.Logger
	inst   port.Instrumentation

	host string
	pid  int
}

func NewAssembler(sink port.Sink, actors port.ActorProvider, filter port.AuditFilter, logger *slog.Logger, inst port.Instrumentation) *Assembler {
	if sink == nil {
		sink = port.NoopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	host, _ := os.Hostname()
	return &Assembler{
		sink:   sink,
		actors: actors,
		filter: filter,
		logger: logger,
		inst:   inst,
		host:   host,
		pid:    os.Getpid(),
	}
}

// Dispatch builds the record and hands it to the sink. Ownership of the
// record transfers to the sink; the assembler keeps no copy.
func (a *Assembler) Dispatch(ctx context.Context, stmt *domain.Statement, params domain.Params, res port.CaptureResult) {
	rec := a.build(ctx, stmt, params, res)
	if err := a.sink.Write(ctx, rec); err != nil {
		a.logger.Error("audit dispatch failed",
			slog.String("event", rec.Event),
			slog.String("table", rec.Table),
			slog.String("error", err.Error()),
		)
		a.inst.IncrementDispatchFailures(ctx)
	}
}

func (a *Assembler) build(ctx context.Context, stmt *domain.Statement, params domain.Params, res port.CaptureResult) *domain.Record {
	if a.filter != nil {
		a.filter.MaskImage(stmt.Schema, stmt.Table, res.Before)
		a.filter.MaskImage(stmt.Schema, stmt.Table, res.After)
	}

	rec := &domain.Record{
		Timestamp:   time.Now().UTC(),
		Event:       domain.EventName(stmt.DisplayTable, stmt.Op),
		Statement:   stmt.Text,
		Params:      params,
		Before:      res.Before,
		After:       res.After,
		Schema:      stmt.Schema,
		Table:       stmt.DisplayTable,
		Op:          stmt.Op,
		Host:        a.host,
		PID:         a.pid,
		GoroutineID: goroutineID(),
		Properties:  map[string]string{},
	}

	if a.actors != nil {
		if actor, ok := a.actors.Current(ctx); ok {
			rec.ActorID = actor.ID
			rec.ActorName = actor.Name
			rec.ActorAddress = actor.Address
			rec.ActorAgent = actor.Agent
			for k, v := range actor.Properties {
				rec.Properties[k] = v
			}
		}
	}
	return rec
}

// goroutineID parses the current goroutine's id from the runtime stack
// header ("goroutine 123 [running]:"). It stands in for a thread id in
// the record's execution identity.
func goroutineID() uint64 {
	buf := make([]byte, 64)
	buf = buf[:runtime.Stack(buf, false)]
	buf = bytes.TrimPrefix(buf, []byte("goroutine "))
	if i := bytes.IndexByte(buf, ' '); i > 0 {
		if id, err := strconv.ParseUint(string(buf[:i]), 10, 64); err == nil {
			return id
		}
	}
	return 0
}
