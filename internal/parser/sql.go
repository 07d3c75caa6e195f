// Package parser classifies SQL statements and extracts the table and
// predicate columns a statement touches. It is grounded on the teacher's
// Vitess-based DDL classifier, but repurposed: the teacher parsed MySQL
// ALTER TABLE sub-operations in exhaustive detail to pick a locking
// strategy, while this module reads query-shape for telemetry: an
// Observation carries a parsed Query, whose (table, column, clause)
// references are aggregated by the telemetry collector and by
// candidate.FromCollectorStats.
//
// Vitess's grammar is MySQL's, not Postgres's, so statements using
// Postgres-only syntax (e.g. "ALTER TABLE ... ALTER COLUMN ... TYPE",
// "RETURNING", some cast forms) may fail to parse. Callers must treat a
// parse error as "unknown shape" and fail open rather than block.
package parser

import (
	"fmt"
	"strings"
	"sync"

	"vitess.io/vitess/go/vt/sqlparser"
)

// StatementType classifies the top-level kind of statement.
type StatementType string

const (
	Select  StatementType = "SELECT"
	Insert  StatementType = "INSERT"
	Update  StatementType = "UPDATE"
	Delete  StatementType = "DELETE"
	DDL     StatementType = "DDL"
	Unknown StatementType = "UNKNOWN"
)

// ColumnRef identifies a column referenced by a query, tagged with the
// clause it came from — candidate generation weighs WHERE/JOIN columns
// far more heavily than SELECT-list columns.
type ColumnRef struct {
	Table  string
	Column string
	Clause string // "where", "join", "order_by", "group_by", "select"
}

// Query holds the result of parsing one SQL statement.
type Query struct {
	Type        StatementType
	RawSQL      string
	Tables      []string
	Columns     []ColumnRef
	HasWhere    bool
	WhereClause string
}

var (
	parserOnce      sync.Once
	globalParser    *sqlparser.Parser
	globalParserErr error
)

func getParser() (*sqlparser.Parser, error) {
	parserOnce.Do(func() {
		globalParser, globalParserErr = sqlparser.New(sqlparser.Options{})
	})
	return globalParser, globalParserErr
}

// Parse classifies sql and extracts the tables and predicate columns it
// touches. A non-nil error means Vitess could not parse the statement;
// callers should fail open (treat the query as unclassified) rather than
// treat the error as the query being unsafe.
func Parse(sql string) (*Query, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(sql), ";")

	p, err := getParser()
	if err != nil {
		return nil, fmt.Errorf("creating parser: %w", err)
	}

	stmt, err := p.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parsing SQL: %w", err)
	}

	q := &Query{RawSQL: trimmed}

	switch s := stmt.(type) {
	case *sqlparser.Select:
		q.Type = Select
		q.Tables = tableNames(s.From)
		q.Columns = append(q.Columns, selectColumns(s)...)
		q.Columns = append(q.Columns, whereColumns(q.Tables, s.Where)...)
		q.Columns = append(q.Columns, orderByColumns(q.Tables, s.OrderBy)...)
		q.Columns = append(q.Columns, groupByColumns(q.Tables, s.GroupBy)...)
		q.Columns = append(q.Columns, joinColumns(s.From)...)
		if s.Where != nil {
			q.HasWhere = true
			q.WhereClause = sqlparser.String(s.Where.Expr)
		}

	case *sqlparser.Update:
		q.Type = Update
		q.Tables = tableNames(s.TableExprs)
		q.Columns = append(q.Columns, whereColumns(q.Tables, s.Where)...)
		if s.Where != nil {
			q.HasWhere = true
			q.WhereClause = sqlparser.String(s.Where.Expr)
		}

	case *sqlparser.Delete:
		q.Type = Delete
		q.Tables = tableNames(s.TableExprs)
		q.Columns = append(q.Columns, whereColumns(q.Tables, s.Where)...)
		if s.Where != nil {
			q.HasWhere = true
			q.WhereClause = sqlparser.String(s.Where.Expr)
		}

	case *sqlparser.Insert:
		q.Type = Insert
		if tn, ok := s.Table.Expr.(sqlparser.TableName); ok {
			q.Tables = []string{tn.Name.String()}
		}

	case *sqlparser.AlterTable:
		q.Type = DDL
		q.Tables = []string{s.Table.Name.String()}

	case *sqlparser.CreateTable:
		q.Type = DDL
		q.Tables = []string{s.Table.Name.String()}

	default:
		q.Type = Unknown
	}

	return q, nil
}

func tableNames(exprs sqlparser.TableExprs) []string {
	var names []string
	for _, expr := range exprs {
		switch t := expr.(type) {
		case *sqlparser.AliasedTableExpr:
			if tn, ok := t.Expr.(sqlparser.TableName); ok && !tn.IsEmpty() {
				names = append(names, tn.Name.String())
			}
		case *sqlparser.JoinTableExpr:
			names = append(names, tableNames(sqlparser.TableExprs{t.LeftExpr})...)
			names = append(names, tableNames(sqlparser.TableExprs{t.RightExpr})...)
		}
	}
	return dedupe(names)
}

func joinColumns(exprs sqlparser.TableExprs) []ColumnRef {
	var cols []ColumnRef
	for _, expr := range exprs {
		jt, ok := expr.(*sqlparser.JoinTableExpr)
		if !ok {
			continue
		}
		if jt.Condition.On != nil {
			_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
				if col, ok := node.(*sqlparser.ColName); ok {
					cols = append(cols, ColumnRef{
						Table:  col.Qualifier.Name.String(),
						Column: col.Name.String(),
						Clause: "join",
					})
				}
				return true, nil
			}, jt.Condition.On)
		}
		cols = append(cols, joinColumns(sqlparser.TableExprs{jt.LeftExpr})...)
		cols = append(cols, joinColumns(sqlparser.TableExprs{jt.RightExpr})...)
	}
	return cols
}

func selectColumns(s *sqlparser.Select) []ColumnRef {
	var cols []ColumnRef
	for _, expr := range s.SelectExprs {
		ae, ok := expr.(*sqlparser.AliasedExpr)
		if !ok {
			continue
		}
		if col, ok := ae.Expr.(*sqlparser.ColName); ok {
			cols = append(cols, ColumnRef{
				Table:  col.Qualifier.Name.String(),
				Column: col.Name.String(),
				Clause: "select",
			})
		}
	}
	return cols
}

func whereColumns(tables []string, where *sqlparser.Where) []ColumnRef {
	if where == nil {
		return nil
	}
	var cols []ColumnRef
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if col, ok := node.(*sqlparser.ColName); ok {
			table := col.Qualifier.Name.String()
			if table == "" && len(tables) == 1 {
				table = tables[0]
			}
			cols = append(cols, ColumnRef{Table: table, Column: col.Name.String(), Clause: "where"})
		}
		return true, nil
	}, where.Expr)
	return cols
}

func orderByColumns(tables []string, order sqlparser.OrderBy) []ColumnRef {
	var cols []ColumnRef
	for _, o := range order {
		if col, ok := o.Expr.(*sqlparser.ColName); ok {
			table := col.Qualifier.Name.String()
			if table == "" && len(tables) == 1 {
				table = tables[0]
			}
			cols = append(cols, ColumnRef{Table: table, Column: col.Name.String(), Clause: "order_by"})
		}
	}
	return cols
}

func groupByColumns(tables []string, group sqlparser.GroupBy) []ColumnRef {
	var cols []ColumnRef
	for _, e := range group {
		if col, ok := e.(*sqlparser.ColName); ok {
			table := col.Qualifier.Name.String()
			if table == "" && len(tables) == 1 {
				table = tables[0]
			}
			cols = append(cols, ColumnRef{Table: table, Column: col.Name.String(), Clause: "group_by"})
		}
	}
	return cols
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// IsMutating reports whether the statement type writes data or schema.
func (q *Query) IsMutating() bool {
	switch q.Type {
	case Insert, Update, Delete, DDL:
		return true
	default:
		return false
	}
}
