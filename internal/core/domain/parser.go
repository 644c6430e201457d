package domain

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// Parser classifies and parses SQL statements using PostgreSQL's actual
// parser. It never returns errors: text that cannot be parsed, or whose
// leading statement is not a recognized single-table INSERT/UPDATE/DELETE,
// yields a descriptor with Op == OpUnknown and is never audited.
type Parser struct {
	logger *slog.Logger
}

func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// IsAuditable reports whether the first statement is an INSERT, UPDATE,
// or DELETE. Classification is a pure function of the statement text.
func (p *Parser) IsAuditable(sql string) bool {
	return p.Parse(sql).Auditable()
}

// Parse extracts the structured descriptor for a single SQL statement.
// Multi-statement batches and unrecognized statement shapes classify as
// OpUnknown; grammar errors are logged (with the scanner's cursor
// position) and degrade the same way.
func (p *Parser) Parse(sql string) *Statement {
	stmt := &Statement{Op: OpUnknown, Text: sql, End: len(sql)}

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return stmt
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		p.logger.Warn("SQL parse failed, statement will not be audited",
			slog.String("error", err.Error()),
		)
		return stmt
	}
	if len(tree.Stmts) == 0 || len(tree.Stmts) > 1 {
		return stmt
	}

	raw := tree.Stmts[0]
	if raw.Stmt == nil {
		return stmt
	}
	if raw.StmtLen > 0 {
		stmt.End = int(raw.StmtLocation + raw.StmtLen)
	} else if end, ok := lastCodeTokenEnd(sql); ok {
		// StmtLen of zero means "rest of the string", which would drag a
		// trailing comment into the statement span and let an appended
		// clause disappear inside it.
		stmt.End = end
	}

	switch {
	case raw.Stmt.GetInsertStmt() != nil:
		p.parseInsert(stmt, raw.Stmt.GetInsertStmt())
	case raw.Stmt.GetUpdateStmt() != nil:
		p.parseUpdate(stmt, raw.Stmt.GetUpdateStmt())
	case raw.Stmt.GetDeleteStmt() != nil:
		p.parseDelete(stmt, raw.Stmt.GetDeleteStmt())
	}
	return stmt
}

// resolveRelation fills the canonical and as-spelled forms of the target
// table reference.
func resolveRelation(stmt *Statement, rv *pg_query.RangeVar) {
	stmt.Schema, stmt.Table = splitRelation(rv)
	stmt.DisplayTable = stmt.Table

	ref, parts := spelledReference(stmt.Text, int(rv.Location))
	if ref == "" {
		return
	}
	stmt.TableRef = ref
	if len(parts) > 0 {
		stmt.DisplayTable = parts[len(parts)-1]
	}
}

// spelledReference reads the qualified identifier starting at loc from
// the original text, returning the verbatim reference and its unquoted
// parts. Returns "" when the offset does not land on an identifier.
func spelledReference(text string, loc int) (string, []string) {
	if loc < 0 || loc >= len(text) {
		return "", nil
	}
	var parts []string
	i := loc
	for {
		switch {
		case i < len(text) && text[i] == '"':
			var part strings.Builder
			j := i + 1
			for j < len(text) {
				if text[j] == '"' {
					if j+1 < len(text) && text[j+1] == '"' {
						part.WriteByte('"')
						j += 2
						continue
					}
					j++
					break
				}
				part.WriteByte(text[j])
				j++
			}
			parts = append(parts, part.String())
			i = j
		default:
			j := i
			for j < len(text) && isIdentChar(text[j]) {
				j++
			}
			if j == i {
				return "", nil
			}
			parts = append(parts, text[i:j])
			i = j
		}
		if i < len(text) && text[i] == '.' {
			i++
			continue
		}
		break
	}
	return text[loc:i], parts
}

func isIdentChar(c byte) bool {
	return c == '_' || c == '$' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9') || c >= 0x80
}

func (p *Parser) parseInsert(stmt *Statement, n *pg_query.InsertStmt) {
	if n.Relation == nil {
		return
	}
	stmt.Op = OpInsert
	resolveRelation(stmt, n.Relation)
	stmt.HasReturning = len(n.ReturningList) > 0

	for _, col := range n.Cols {
		if rt := col.GetResTarget(); rt != nil {
			stmt.InsertColumns = append(stmt.InsertColumns, rt.Name)
		}
	}

	// Only the first row of a VALUES clause is walked; INSERT ... SELECT
	// and multi-row inserts keep an empty value list.
	sel := n.SelectStmt.GetSelectStmt()
	if sel == nil || len(sel.ValuesLists) == 0 {
		return
	}
	row := sel.ValuesLists[0].GetList()
	if row == nil {
		return
	}
	for _, item := range row.Items {
		stmt.InsertValues = append(stmt.InsertValues, valueSource(item))
	}
}

func (p *Parser) parseUpdate(stmt *Statement, n *pg_query.UpdateStmt) {
	if n.Relation == nil {
		return
	}
	stmt.Op = OpUpdate
	resolveRelation(stmt, n.Relation)
	stmt.HasReturning = len(n.ReturningList) > 0

	for _, target := range n.TargetList {
		rt := target.GetResTarget()
		if rt == nil {
			continue
		}
		stmt.SetClauses = append(stmt.SetClauses, Assignment{
			Column: rt.Name,
			Value:  valueSource(rt.Val),
		})
	}

	p.extractWhere(stmt, n.WhereClause, n.ReturningList)
}

func (p *Parser) parseDelete(stmt *Statement, n *pg_query.DeleteStmt) {
	if n.Relation == nil {
		return
	}
	stmt.Op = OpDelete
	resolveRelation(stmt, n.Relation)
	stmt.HasReturning = len(n.ReturningList) > 0

	p.extractWhere(stmt, n.WhereClause, n.ReturningList)
}

// extractWhere captures the verbatim WHERE-clause tail of the original
// text. The keyword position comes from the scanner's token stream rather
// than a raw substring search, so string literals containing "WHERE"
// cannot shift the cut point.
func (p *Parser) extractWhere(stmt *Statement, where *pg_query.Node, returning []*pg_query.Node) {
	if where == nil {
		return
	}
	stmt.WhereMaxParam = maxParamRef(where)

	end := stmt.End
	if len(returning) > 0 {
		if cut, ok := p.keywordBefore(stmt.Text, pg_query.Token_RETURNING, minLocation(returning)); ok {
			end = cut.start
		}
	}

	start := -1
	exprStart := minLocation([]*pg_query.Node{where})
	if tok, ok := p.keywordBefore(stmt.Text, pg_query.Token_WHERE, exprStart); ok {
		start = tok.end
	} else {
		// Scanner fallback: last case-insensitive WHERE in the statement text.
		upper := strings.ToUpper(stmt.Text[:end])
		if idx := strings.LastIndex(upper, "WHERE"); idx >= 0 {
			start = idx + len("WHERE")
		}
	}
	if start < 0 || start > end {
		return
	}

	seg := stmt.Text[start:end]
	lead := len(seg) - len(strings.TrimLeft(seg, " \t\r\n"))
	stmt.WhereText = strings.TrimSpace(seg)
	bindWhere(stmt, where, start+lead)
}

// bindWhere derives the bindable form of the WHERE clause. The clause's
// $n references keep their original ordinals in WhereText, so a select
// built from it verbatim needs every leading argument supplied even when
// the clause never references one; a prepared statement then fails with
// an undetermined parameter type. The bindable form renumbers the
// referenced ordinals to a contiguous $1..$k instead.
func bindWhere(stmt *Statement, where *pg_query.Node, base int) {
	type paramSite struct {
		ord int
		off int
	}
	var sites []paramSite
	located := true
	walkExpr(where, func(n *pg_query.Node) {
		ref := n.GetParamRef()
		if ref == nil {
			return
		}
		off := int(ref.Location) - base
		if ref.Location < 0 || off < 0 || off >= len(stmt.WhereText) || stmt.WhereText[off] != '$' {
			located = false
			return
		}
		sites = append(sites, paramSite{ord: int(ref.Number), off: off})
	})

	if !located {
		// Without token positions the clause cannot be renumbered; bind
		// every leading argument up to the highest referenced ordinal.
		stmt.WhereBindText = stmt.WhereText
		for i := 1; i <= stmt.WhereMaxParam; i++ {
			stmt.WhereParams = append(stmt.WhereParams, i)
		}
		return
	}

	seen := make(map[int]bool, len(sites))
	for _, s := range sites {
		seen[s.ord] = true
	}
	ords := make([]int, 0, len(seen))
	for ord := range seen {
		ords = append(ords, ord)
	}
	sort.Ints(ords)
	if len(ords) > 0 {
		stmt.WhereParams = ords
	}

	renum := make(map[int]int, len(ords))
	for i, ord := range ords {
		renum[ord] = i + 1
	}

	sort.Slice(sites, func(i, j int) bool { return sites[i].off < sites[j].off })
	var b strings.Builder
	prev := 0
	for _, s := range sites {
		b.WriteString(stmt.WhereText[prev:s.off])
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(renum[s.ord]))
		j := s.off + 1
		for j < len(stmt.WhereText) && stmt.WhereText[j] >= '0' && stmt.WhereText[j] <= '9' {
			j++
		}
		prev = j
	}
	b.WriteString(stmt.WhereText[prev:])
	stmt.WhereBindText = b.String()
}

// lastCodeTokenEnd returns the end offset of the last non-comment token
// in the text.
func lastCodeTokenEnd(sql string) (int, bool) {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return 0, false
	}
	var (
		end   int
		found bool
	)
	for _, tok := range scan.Tokens {
		if tok.Token == pg_query.Token_SQL_COMMENT || tok.Token == pg_query.Token_C_COMMENT {
			continue
		}
		if int(tok.End) > end {
			end = int(tok.End)
			found = true
		}
	}
	return end, found
}

type tokenSpan struct {
	start int
	end   int
}

// keywordBefore finds the last occurrence of the given keyword token that
// ends at or before limit. limit < 0 means "anywhere in the text".
func (p *Parser) keywordBefore(sql string, kw pg_query.Token, limit int) (tokenSpan, bool) {
	scan, err := pg_query.Scan(sql)
	if err != nil {
		return tokenSpan{}, false
	}
	var (
		found bool
		span  tokenSpan
	)
	for _, tok := range scan.Tokens {
		if tok.Token != kw {
			continue
		}
		if limit >= 0 && int(tok.End) > limit {
			continue
		}
		span = tokenSpan{start: int(tok.Start), end: int(tok.End)}
		found = true
	}
	return span, found
}

// splitRelation resolves a possibly qualified table reference to
// (schema, table). A database-name prefix is ignored.
func splitRelation(rv *pg_query.RangeVar) (schema, table string) {
	return rv.Schemaname, rv.Relname
}

// valueSource classifies one value expression from a VALUES row or SET list.
func valueSource(n *pg_query.Node) ValueSource {
	if n == nil {
		return ValueSource{Kind: ValueExpr}
	}
	if ref := n.GetParamRef(); ref != nil {
		return ValueSource{Kind: ValueParam, Param: "$" + strconv.Itoa(int(ref.Number))}
	}
	if c := n.GetAConst(); c != nil {
		if c.Isnull {
			return ValueSource{Kind: ValueNull}
		}
		return ValueSource{Kind: ValueLiteral, Literal: constValue(c)}
	}
	// TypeCast of a parameter or literal ($1::uuid, 'x'::jsonb) resolves to
	// the inner value.
	if tc := n.GetTypeCast(); tc != nil {
		inner := valueSource(tc.Arg)
		if inner.Kind != ValueExpr {
			return inner
		}
	}
	return ValueSource{Kind: ValueExpr}
}

func constValue(c *pg_query.A_Const) any {
	switch {
	case c.GetIval() != nil:
		return int64(c.GetIval().Ival)
	case c.GetFval() != nil:
		if f, err := strconv.ParseFloat(c.GetFval().Fval, 64); err == nil {
			return f
		}
		return c.GetFval().Fval
	case c.GetSval() != nil:
		return c.GetSval().Sval
	case c.GetBoolval() != nil:
		return c.GetBoolval().Boolval
	default:
		return nil
	}
}

// walkExpr visits an expression subtree, covering the node types that can
// appear in WHERE clauses and value lists. Unknown node kinds are not
// descended into.
func walkExpr(n *pg_query.Node, visit func(*pg_query.Node)) {
	if n == nil {
		return
	}
	visit(n)
	switch {
	case n.GetAExpr() != nil:
		walkExpr(n.GetAExpr().Lexpr, visit)
		walkExpr(n.GetAExpr().Rexpr, visit)
	case n.GetBoolExpr() != nil:
		for _, arg := range n.GetBoolExpr().Args {
			walkExpr(arg, visit)
		}
	case n.GetNullTest() != nil:
		walkExpr(n.GetNullTest().Arg, visit)
	case n.GetBooleanTest() != nil:
		walkExpr(n.GetBooleanTest().Arg, visit)
	case n.GetTypeCast() != nil:
		walkExpr(n.GetTypeCast().Arg, visit)
	case n.GetFuncCall() != nil:
		for _, arg := range n.GetFuncCall().Args {
			walkExpr(arg, visit)
		}
	case n.GetAArrayExpr() != nil:
		for _, el := range n.GetAArrayExpr().Elements {
			walkExpr(el, visit)
		}
	case n.GetRowExpr() != nil:
		for _, arg := range n.GetRowExpr().Args {
			walkExpr(arg, visit)
		}
	case n.GetCoalesceExpr() != nil:
		for _, arg := range n.GetCoalesceExpr().Args {
			walkExpr(arg, visit)
		}
	case n.GetList() != nil:
		for _, item := range n.GetList().Items {
			walkExpr(item, visit)
		}
	case n.GetSubLink() != nil:
		walkExpr(n.GetSubLink().Testexpr, visit)
	}
}

// maxParamRef returns the highest $n ordinal referenced in the subtree.
func maxParamRef(n *pg_query.Node) int {
	maxOrd := 0
	walkExpr(n, func(node *pg_query.Node) {
		if ref := node.GetParamRef(); ref != nil && int(ref.Number) > maxOrd {
			maxOrd = int(ref.Number)
		}
	})
	return maxOrd
}

// minLocation returns the smallest source offset across the given
// subtrees, or -1 when no node reports a location.
func minLocation(nodes []*pg_query.Node) int {
	minLoc := -1
	for _, n := range nodes {
		walkExpr(n, func(node *pg_query.Node) {
			loc := nodeLocation(node)
			if loc >= 0 && (minLoc < 0 || loc < minLoc) {
				minLoc = loc
			}
		})
	}
	return minLoc
}

func nodeLocation(n *pg_query.Node) int {
	switch {
	case n.GetAExpr() != nil:
		return int(n.GetAExpr().Location)
	case n.GetBoolExpr() != nil:
		return int(n.GetBoolExpr().Location)
	case n.GetNullTest() != nil:
		return int(n.GetNullTest().Location)
	case n.GetBooleanTest() != nil:
		return int(n.GetBooleanTest().Location)
	case n.GetTypeCast() != nil:
		return int(n.GetTypeCast().Location)
	case n.GetFuncCall() != nil:
		return int(n.GetFuncCall().Location)
	case n.GetAArrayExpr() != nil:
		return int(n.GetAArrayExpr().Location)
	case n.GetRowExpr() != nil:
		return int(n.GetRowExpr().Location)
	case n.GetCoalesceExpr() != nil:
		return int(n.GetCoalesceExpr().Location)
	case n.GetColumnRef() != nil:
		return int(n.GetColumnRef().Location)
	case n.GetAConst() != nil:
		return int(n.GetAConst().Location)
	case n.GetParamRef() != nil:
		return int(n.GetParamRef().Location)
	case n.GetSubLink() != nil:
		return int(n.GetSubLink().Location)
	case n.GetResTarget() != nil:
		return int(n.GetResTarget().Location)
	default:
		return -1
	}
}
