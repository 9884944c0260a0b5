// Package query defines the JSON query request accepted by the API and turns
// it into expression trees and a full SELECT statement.
//
// This is the expression producer: it expands shorthand into concrete nodes
// (via pkg/parser), assigns aliases, appends the implicit time-range and
// project conditions, and concatenates the formatted fragments into one
// statement. The formatter itself renders expressions, never statements.
package query

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eventsift/eventsift/pkg/escape"
	"github.com/eventsift/eventsift/pkg/expr"
	"github.com/eventsift/eventsift/pkg/format"
	"github.com/eventsift/eventsift/pkg/parser"
	"github.com/pkg/errors"
)

type (
	// Request is the body of a POST /query call.
	Request struct {
		// Project restricts the query to one or more project ids. The JSON
		// value may be a single number or a list.
		Project ProjectList `json:"project"`

		// FromDate and ToDate bound the queried time range, inclusive.
		FromDate string `json:"from_date"`
		ToDate   string `json:"to_date"`

		// Conditions are [column, operator, value] triples combined with AND.
		Conditions []Condition `json:"conditions,omitempty"`

		// Aggregations are [function, column, alias] triples.
		Aggregations []Aggregation `json:"aggregations,omitempty"`

		// GroupBy lists grouping columns in shorthand form. The JSON value
		// may be a single string or a list.
		GroupBy StringList `json:"groupby,omitempty"`

		// OrderBy names a selected column or alias; a leading "-" sorts
		// descending.
		OrderBy string `json:"orderby,omitempty"`

		// ArrayJoin optionally unnests an array column.
		ArrayJoin string `json:"arrayjoin,omitempty"`

		Limit  int `json:"limit,omitempty"`
		Offset int `json:"offset,omitempty"`
	}

	// Condition is one [column, operator, value] triple.
	Condition struct {
		Column   string
		Operator string
		Value    any
	}

	// Aggregation is one [function, column, alias] triple. Column may be
	// empty when the function shorthand is already a complete call such as
	// "count()".
	Aggregation struct {
		Function string
		Column   string
		Alias    string
	}

	// ProjectList accepts a single JSON number or a list of numbers.
	ProjectList []int64

	// StringList accepts a single JSON string or a list of strings.
	StringList []string

	// Statement is the outcome of building a request: executable SQL plus
	// the value-independent fingerprint of its expressions.
	Statement struct {
		SQL         string
		Fingerprint string
	}
)

// operatorFunctions maps request operators onto ClickHouse functions.
var operatorFunctions = map[string]string{
	"=":        "equals",
	"!=":       "notEquals",
	">":        "greater",
	">=":       "greaterOrEquals",
	"<":        "less",
	"<=":       "lessOrEquals",
	"IN":       "in",
	"NOT IN":   "notIn",
	"LIKE":     "like",
	"NOT LIKE": "notLike",
}

// dateLayouts are the accepted from_date/to_date formats.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts a single number or a list of numbers.
func (p *ProjectList) UnmarshalJSON(data []byte) error {
	var single int64
	if err := json.Unmarshal(data, &single); err == nil {
		*p = ProjectList{single}
		return nil
	}

	var many []int64
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "project must be a number or a list of numbers")
	}
	*p = many
	return nil
}

// UnmarshalJSON accepts a single string or a list of strings.
func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.Wrap(err, "expected a string or a list of strings")
	}
	*s = many
	return nil
}

// UnmarshalJSON decodes a [column, operator, value] triple.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var triple []json.RawMessage
	if err := json.Unmarshal(data, &triple); err != nil {
		return errors.Wrap(err, "condition must be a [column, operator, value] triple")
	}
	if len(triple) != 3 {
		return errors.Errorf("condition must have 3 elements, got %d", len(triple))
	}
	if err := json.Unmarshal(triple[0], &c.Column); err != nil {
		return errors.Wrap(err, "condition column must be a string")
	}
	if err := json.Unmarshal(triple[1], &c.Operator); err != nil {
		return errors.Wrap(err, "condition operator must be a string")
	}
	if err := json.Unmarshal(triple[2], &c.Value); err != nil {
		return errors.Wrap(err, "invalid condition value")
	}
	return nil
}

// UnmarshalJSON decodes a [function, column, alias] triple.
func (a *Aggregation) UnmarshalJSON(data []byte) error {
	var triple []string
	if err := json.Unmarshal(data, &triple); err != nil {
		return errors.Wrap(err, "aggregation must be a [function, column, alias] triple")
	}
	if len(triple) != 3 {
		return errors.Errorf("aggregation must have 3 elements, got %d", len(triple))
	}
	a.Function, a.Column, a.Alias = triple[0], triple[1], triple[2]
	return nil
}

// Validate checks the request for user errors before any expression is built.
func (r *Request) Validate() error {
	if len(r.Project) == 0 {
		return errors.New("at least one project id is required")
	}

	from, err := r.parseDate(r.FromDate)
	if err != nil {
		return errors.Wrap(err, "invalid from_date")
	}
	to, err := r.parseDate(r.ToDate)
	if err != nil {
		return errors.Wrap(err, "invalid to_date")
	}
	if from.After(to) {
		return errors.New("from_date must not be after to_date")
	}

	if len(r.GroupBy) == 0 && len(r.Aggregations) == 0 {
		return errors.New("query selects nothing: provide groupby or aggregations")
	}
	if r.Limit < 0 || r.Offset < 0 {
		return errors.New("limit and offset must be non-negative")
	}

	for _, c := range r.Conditions {
		if _, ok := operatorFunctions[c.Operator]; !ok {
			return errors.Errorf("unknown condition operator %q", c.Operator)
		}
		if _, err := parser.Parse(c.Column, ""); err != nil {
			return errors.Wrap(err, "invalid condition column")
		}
	}

	// Shorthand fields are parsed here so a malformed expression surfaces as
	// a validation error; after Validate passes, a build failure is a defect.
	for _, g := range r.GroupBy {
		if _, err := parser.Parse(g, ""); err != nil {
			return errors.Wrap(err, "invalid groupby")
		}
	}
	for _, a := range r.Aggregations {
		if _, err := parser.Parse(a.input(), a.Alias); err != nil {
			return errors.Wrap(err, "invalid aggregation")
		}
	}
	if r.OrderBy != "" {
		if _, err := parser.Parse(strings.TrimPrefix(r.OrderBy, "-"), ""); err != nil {
			return errors.Wrap(err, "invalid orderby")
		}
	}
	return nil
}

// input is the shorthand expression an aggregation expands to. An empty
// column means the function field is already a complete call ("count()").
func (a *Aggregation) input() string {
	if a.Column == "" {
		return a.Function
	}
	return a.Function + "(" + a.Column + ")"
}

func (r *Request) parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized date %q", value)
}

// selectExpressions returns the projected expressions: grouping columns first,
// then aggregates, matching the statement's column order.
func (r *Request) selectExpressions() ([]expr.Expression, error) {
	expressions := make([]expr.Expression, 0, len(r.GroupBy)+len(r.Aggregations))

	for _, g := range r.GroupBy {
		e, err := parser.Parse(g, "")
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, e)
	}

	for _, a := range r.Aggregations {
		e, err := parser.Parse(a.input(), a.Alias)
		if err != nil {
			return nil, err
		}
		expressions = append(expressions, e)
	}
	return expressions, nil
}

// conditionExpression combines user conditions with the implicit time-range
// and project restrictions into one AND tree.
func (r *Request) conditionExpression() (expr.Expression, error) {
	from, err := r.parseDate(r.FromDate)
	if err != nil {
		return nil, err
	}
	to, err := r.parseDate(r.ToDate)
	if err != nil {
		return nil, err
	}

	conditions := make([]expr.Expression, 0, len(r.Conditions)+3)
	for _, c := range r.Conditions {
		built, err := c.expression()
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, built)
	}

	timestamp := &expr.Column{ColumnName: "timestamp"}
	conditions = append(conditions,
		&expr.FunctionCall{Function: "greaterOrEquals", Parameters: []expr.Expression{
			timestamp, &expr.Literal{Value: from},
		}},
		&expr.FunctionCall{Function: "lessOrEquals", Parameters: []expr.Expression{
			timestamp, &expr.Literal{Value: to},
		}},
		&expr.FunctionCall{Function: "in", Parameters: []expr.Expression{
			&expr.Column{ColumnName: "project_id"},
			projectArray(r.Project),
		}},
	)
	return expr.And(conditions...), nil
}

func (c *Condition) expression() (expr.Expression, error) {
	fn, ok := operatorFunctions[c.Operator]
	if !ok {
		return nil, errors.Errorf("unknown condition operator %q", c.Operator)
	}

	column, err := parser.Parse(c.Column, "")
	if err != nil {
		return nil, err
	}
	return &expr.FunctionCall{
		Function:   fn,
		Parameters: []expr.Expression{column, literalExpression(c.Value)},
	}, nil
}

// literalExpression converts a decoded JSON value into a literal node. Lists
// become array constructors; integral JSON numbers become integers so they do
// not render with a floating-point suffix.
func literalExpression(value any) expr.Expression {
	if list, ok := value.([]any); ok {
		elements := make([]expr.Expression, 0, len(list))
		for _, v := range list {
			elements = append(elements, literalExpression(v))
		}
		return &expr.FunctionCall{Function: "array", Parameters: elements}
	}

	if f, ok := value.(float64); ok && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return &expr.Literal{Value: int64(f)}
	}
	return &expr.Literal{Value: value}
}

func projectArray(projects ProjectList) expr.Expression {
	elements := make([]expr.Expression, 0, len(projects))
	for _, id := range projects {
		elements = append(elements, &expr.Literal{Value: id})
	}
	return &expr.FunctionCall{Function: "array", Parameters: elements}
}

// BuildSelect renders the request into a complete SELECT against table. One
// Context backs the whole pass so aliases bound in the select list are
// back-referenced from the WHERE and GROUP BY clauses instead of re-expanded.
func (r *Request) BuildSelect(table string) (*Statement, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	selected, err := r.selectExpressions()
	if err != nil {
		return nil, err
	}
	condition, err := r.conditionExpression()
	if err != nil {
		return nil, err
	}

	ctx := expr.NewContext()

	columns := make([]string, 0, len(selected))
	for _, e := range selected {
		s, err := format.Expression(ctx, e)
		if err != nil {
			return nil, err
		}
		columns = append(columns, s)
	}

	where, err := format.Expression(ctx, condition)
	if err != nil {
		return nil, err
	}

	clauses := []string{
		"SELECT " + strings.Join(columns, ", "),
		"FROM " + escape.Identifier(table),
	}

	if r.ArrayJoin != "" {
		clauses = append(clauses, "ARRAY JOIN "+escape.Identifier(r.ArrayJoin))
	}
	clauses = append(clauses, "WHERE "+where)

	if len(r.GroupBy) > 0 {
		grouped := make([]string, 0, len(r.GroupBy))
		for _, g := range r.GroupBy {
			e, err := parser.Parse(g, "")
			if err != nil {
				return nil, err
			}
			s, err := format.Expression(ctx, e)
			if err != nil {
				return nil, err
			}
			grouped = append(grouped, s)
		}
		clauses = append(clauses, "GROUP BY ("+strings.Join(grouped, ", ")+")")
	}

	if r.OrderBy != "" {
		direction := "ASC"
		name := r.OrderBy
		if strings.HasPrefix(name, "-") {
			direction = "DESC"
			name = strings.TrimPrefix(name, "-")
		}
		e, err := parser.Parse(name, "")
		if err != nil {
			return nil, err
		}
		s, err := format.Expression(ctx, e)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, "ORDER BY "+s+" "+direction)
	}

	if r.Limit > 0 {
		clauses = append(clauses, fmt.Sprintf("LIMIT %d, %d", r.Offset, r.Limit))
	}

	fingerprint, err := format.Fingerprint(append(selected, condition)...)
	if err != nil {
		return nil, err
	}

	return &Statement{
		SQL:         strings.Join(clauses, " "),
		Fingerprint: fingerprint,
	}, nil
}
