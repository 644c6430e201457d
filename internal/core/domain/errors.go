package domain

import "errors"

var (
	// ErrParseFailed marks SQL text the PostgreSQL grammar could not parse.
	ErrParseFailed = errors.New("failed to parse SQL")

	// ErrNotAuditable marks statements whose leading clause is not
	// INSERT, UPDATE, or DELETE (or a multi-statement batch).
	ErrNotAuditable = errors.New("statement is not auditable")

	// ErrNoColumns means the metadata cache could not resolve the target
	// table's column list, so no capture clause can be built.
	ErrNoColumns = errors.New("no columns resolved for table")

	// ErrRewriteUnsupported means the query-rewrite strategy cannot be
	// applied to this statement (existing RETURNING clause, or the server
	// lacks old/new RETURNING support for UPDATE).
	ErrRewriteUnsupported = errors.New("query rewrite not applicable")

	// ErrCapture covers before/after snapshot failures that degrade the
	// audit record but never the real execution.
	ErrCapture = errors.New("snapshot capture failed")

	// ErrDispatch marks a sink that rejected a finished audit record.
	ErrDispatch = errors.New("audit dispatch failed")
)
