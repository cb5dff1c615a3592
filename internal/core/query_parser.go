package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
)

/*
This is a parser for a simple query language over classification results:

Query       := Expr
Expr        := OrExpr ( "OR" OrExpr )*
OrExpr      := AndExpr ( "AND" AndExpr )*
AndExpr     := "NOT"? Condition
Condition   := Filter | "(" Expr ")"
Filter      := Field Op Value
Field       := "SCORE" (<identifier> | <string>) | "PATH" | "STATUS" | "TOP" | "LABEL"
Op          := "CONTAINS" | "<" | ">" | "="
Value       := <string> | <number>

Examples: SCORE "Speech" > 0.5, STATUS = "Failed", PATH CONTAINS "dogs/"
*/

// Scores are logged with 3 decimals, so = compares within half a unit of that.
const scoreTolerance = 0.0005

var (
	parser = participle.MustBuild[QueryExpr](
		participle.Unquote("String"),
		participle.Union[Value](StringValue{}, NumberValue{}),
	)
)

func ParseQuery(query string) (Filter, error) {
	q, err := parser.ParseString("", query)
	if err != nil {
		return nil, fmt.Errorf("error parsing query '%s': %w", query, err)
	}

	filter, err := q.ToFilter()
	if err != nil {
		return nil, fmt.Errorf("error converting query '%s' to filter: %w", query, err)
	}

	return filter, nil
}

type QueryExpr struct {
	Expr *Expr `@@`
}

func (q *QueryExpr) ToFilter() (Filter, error) {
	return q.Expr.ToFilter()
}

func (q *QueryExpr) String() string {
	return q.Expr.String()
}

type Expr struct {
	Ors []*OrExpr `@@ ( "OR" @@ )*`
}

func (e *Expr) ToFilter() (Filter, error) {
	if len(e.Ors) == 0 {
		return nil, fmt.Errorf("empty OR expression")
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range e.Ors {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &OrFilter{filters: filters}, nil
}

func (e *Expr) String() string {
	if len(e.Ors) == 0 {
		return ""
	}

	if len(e.Ors) == 1 {
		return e.Ors[0].String()
	}

	out := fmt.Sprintf("(%s)", e.Ors[0].String())
	for _, cond := range e.Ors[1:] {
		out += fmt.Sprintf(" OR (%s)", cond.String())
	}

	return out
}

type OrExpr struct {
	Ands []*Condition `@@ ( "AND" @@ )*`
}

func (o *OrExpr) ToFilter() (Filter, error) {
	if len(o.Ands) == 0 {
		return nil, fmt.Errorf("empty AND expression")
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].ToFilter()
	}

	var filters []Filter
	for _, cond := range o.Ands {
		f, err := cond.ToFilter()
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}

	return &AndFilter{filters: filters}, nil
}

func (o *OrExpr) String() string {
	if len(o.Ands) == 0 {
		return ""
	}

	if len(o.Ands) == 1 {
		return o.Ands[0].String()
	}

	out := fmt.Sprintf("(%s)", o.Ands[0].String())
	for _, cond := range o.Ands[1:] {
		out += fmt.Sprintf(" AND (%s)", cond.String())
	}

	return out
}

type Condition struct {
	Not  bool  `@"NOT"?`
	Atom *Atom `@@`
}

func (c *Condition) ToFilter() (Filter, error) {
	filter, err := c.Atom.ToFilter()
	if err != nil {
		return nil, err
	}

	if c.Not {
		filter = &NotFilter{filter: filter}
	}

	return filter, nil
}

func (c *Condition) String() string {
	if c.Not {
		return fmt.Sprintf("NOT (%s)", c.Atom.String())
	}
	return c.Atom.String()
}

type Atom struct {
	Filter  *FilterExpr ` @@`
	SubExpr *Expr       `| "(" @@ ")" `
}

func (a *Atom) ToFilter() (Filter, error) {
	if a.SubExpr != nil {
		return a.SubExpr.ToFilter()
	}
	if a.Filter != nil {
		return a.Filter.ToFilter()
	}
	return nil, fmt.Errorf("empty condition")
}

func (a *Atom) String() string {
	if a.SubExpr != nil {
		return a.SubExpr.String()
	}
	return a.Filter.String()
}

type FilterExpr struct {
	Field Field  ` @@`
	Op    string `@("CONTAINS" | "<" | ">" | "=" )`
	Value Value  `@@`
}

func (f *FilterExpr) ToFilter() (Filter, error) {
	if f.Field.Score {
		n, ok := f.Value.(NumberValue)
		if !ok {
			return nil, fmt.Errorf("SCORE expr requires a numeric value to compare to")
		}

		v := float32(n.Value)
		switch f.Op {
		case "<":
			return &ScoreFilter{label: f.Field.Name, min: -1, max: v}, nil
		case ">":
			return &ScoreFilter{label: f.Field.Name, min: v, max: math.MaxFloat32}, nil
		case "=":
			return &ScoreFilter{label: f.Field.Name, min: v - scoreTolerance, max: v + scoreTolerance}, nil
		default:
			return nil, fmt.Errorf("invalid operator %s used with SCORE", f.Op)
		}
	}

	field := strings.ToUpper(f.Field.Name)
	switch field {
	case FieldPath, FieldStatus, FieldTop, FieldLabel:
	default:
		return nil, fmt.Errorf("unknown field %s", f.Field.Name)
	}

	s, ok := f.Value.(StringValue)
	if !ok {
		return nil, fmt.Errorf("if not using SCORE then the value to compare to must be a string")
	}

	switch f.Op {
	case "CONTAINS":
		return &SubstringFilter{field: field, substr: s.Value}, nil
	case "<":
		return &StringLtFilter{field: field, value: s.Value}, nil
	case ">":
		return &StringGtFilter{field: field, value: s.Value}, nil
	case "=":
		return &StringEqFilter{field: field, value: s.Value}, nil
	default:
		return nil, fmt.Errorf("invalid operator %s used with string value", f.Op)
	}
}

func (f *FilterExpr) String() string {
	return fmt.Sprintf("%v %s %v", f.Field.String(), f.Op, f.Value)
}

type Field struct {
	Score bool   `@"SCORE"?`
	Name  string `@(Ident | String)`
}

func (l *Field) String() string {
	if l.Score {
		return fmt.Sprintf("SCORE %q", l.Name)
	}
	return l.Name
}

type Value interface{ value() }

type StringValue struct {
	Value string `@String`
}

func (s StringValue) value() {}

func (s StringValue) String() string {
	return strconv.Quote(s.Value)
}

type NumberValue struct {
	Value float64 `@(Float | Int)`
}

func (n NumberValue) value() {}

func (n NumberValue) String() string {
	return strconv.FormatFloat(n.Value, 'g', -1, 64)
}
