package domain

import (
	"strconv"
	"strings"
)

// OpKind classifies a statement by its leading clause.
type OpKind string

const (
	OpInsert  OpKind = "INSERT"
	OpUpdate  OpKind = "UPDATE"
	OpDelete  OpKind = "DELETE"
	OpUnknown OpKind = "UNKNOWN"
)

// ValueKind tells how an INSERT value or SET assignment sources its value.
type ValueKind int

const (
	ValueExpr ValueKind = iota // arbitrary expression, not resolvable statically
	ValueParam
	ValueLiteral
	ValueNull
)

// ValueSource is one value position in an INSERT VALUES row or UPDATE SET list.
type ValueSource struct {
	Kind    ValueKind
	Param   string // "$1", "$2", ... when Kind == ValueParam
	Literal any    // when Kind == ValueLiteral
}

// Assignment is a single column = value pair from an UPDATE SET list.
type Assignment struct {
	Column string
	Value  ValueSource
}

// Statement is the parsed descriptor of a single SQL statement.
type Statement struct {
	Op     OpKind
	Schema string // canonical (parser-folded); empty when unqualified
	Table  string // canonical (parser-folded)

	// TableRef is the verbatim table reference from the original text
	// (e.g. `public."Order Details"`), reused when building reload
	// selects so identifier folding matches the audited statement.
	TableRef string

	// DisplayTable is the table name as spelled in the source, without
	// quoting; it feeds event names and the audit record's table field.
	DisplayTable string

	// WhereText is the verbatim tail of the original text after the WHERE
	// keyword, preserved so parameter references and formatting survive for
	// reuse in reload selects. Empty when the statement has no WHERE clause.
	WhereText string

	// WhereMaxParam is the highest $n ordinal referenced inside the WHERE
	// clause.
	WhereMaxParam int

	// WhereParams lists the distinct parameter ordinals the WHERE clause
	// references, ascending. WhereBindText is WhereText with those
	// renumbered to a contiguous $1..$len(WhereParams); a select built
	// from it is bound with exactly the referenced arguments, never with
	// parameters only the SET list uses.
	WhereParams   []int
	WhereBindText string

	InsertColumns []string
	InsertValues  []ValueSource
	SetClauses    []Assignment

	// HasReturning reports an existing RETURNING clause, which rules out
	// the query-rewrite capture path.
	HasReturning bool

	// Text is the original statement text; End is the byte offset just past
	// the first statement, used as the splice point for rewriting.
	Text string
	End  int
}

// Auditable reports whether the statement is a recognized single-table
// INSERT, UPDATE, or DELETE.
func (s *Statement) Auditable() bool {
	if s == nil || s.Table == "" {
		return false
	}
	switch s.Op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// EventName derives the audit event name from a table and operation kind.
func EventName(table string, op OpKind) string {
	switch op {
	case OpInsert:
		return table + "_Created"
	case OpUpdate:
		return table + "_Modified"
	case OpDelete:
		return table + "_Deleted"
	default:
		return table + "_Changed"
	}
}

// Params maps parameter names ("$1", "$2", ...) to their bound values.
// A nil value is an explicit SQL NULL binding; an absent key means the
// parameter was never bound.
type Params map[string]any

// ParamsFromArgs builds a binding map from positional arguments.
func ParamsFromArgs(args []any) Params {
	if len(args) == 0 {
		return Params{}
	}
	p := make(Params, len(args))
	for i, a := range args {
		p["$"+strconv.Itoa(i+1)] = a
	}
	return p
}

// Lookup resolves a parameter by name, tolerating a leading "$" or "@"
// sigil on either side of the comparison.
func (p Params) Lookup(name string) (any, bool) {
	if v, ok := p[name]; ok {
		return v, true
	}
	bare := strings.TrimLeft(name, "$@")
	if v, ok := p[bare]; ok {
		return v, true
	}
	if v, ok := p["$"+bare]; ok {
		return v, true
	}
	return nil, false
}
