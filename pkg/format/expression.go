// Package format renders query expression trees into ClickHouse SQL text.
//
// Two renderings share one traversal engine. The canonical formatter produces
// real, fully escaped SQL ready for execution; nothing downstream may escape
// it again. The anonymized formatter produces a structurally identical
// rendering with every literal replaced by a type-category token, yielding a
// value-independent fingerprint usable for caching and deduplication of
// structurally identical queries.
//
// Formatters render expressions, never statements. The caller concatenates
// the fragments into a full SELECT (see pkg/query).
//
// Example:
//
//	ctx := expr.NewContext()
//	sql, err := format.Expression(ctx, &expr.FunctionCall{
//		Alias:      "event_count",
//		Function:   "count",
//		Parameters: []expr.Expression{},
//	})
//	// sql == "(count() AS event_count)"
package format

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eventsift/eventsift/pkg/escape"
	"github.com/eventsift/eventsift/pkg/expr"
	"github.com/pkg/errors"
)

// maxDepth bounds recursion over the expression tree so adversarially deep
// input fails with an error instead of exhausting the stack.
const maxDepth = 1000

// arrayFunction is the array-constructor name that triggers the bracketed
// rendering workaround.
const arrayFunction = "array"

type (
	// literalStrategy renders the value of a literal node, one method per
	// literal kind. Null is not part of the strategy: it renders as NULL
	// under every strategy and is handled by the shared traversal.
	literalStrategy interface {
		stringLiteral(e *expr.Literal) (string, error)
		numberLiteral(e *expr.Literal) (string, error)
		booleanLiteral(e *expr.Literal) (string, error)
		datetimeLiteral(e *expr.Literal) (string, error)
		dateLiteral(e *expr.Literal) (string, error)
	}

	// expressionFormatter is the shared traversal engine. It owns alias
	// bookkeeping and every structural rendering rule; only literal values
	// are delegated to the strategy.
	expressionFormatter struct {
		parsing  *expr.Context
		literals literalStrategy
		depth    int
	}
)

// NewExpressionFormatter returns a visitor producing canonical, escaped SQL.
// The Context carries alias state across every expression of one query and
// must not be reused for another query.
func NewExpressionFormatter(ctx *expr.Context) expr.Visitor {
	f := &expressionFormatter{parsing: ctx}
	f.literals = &canonicalLiterals{f: f}
	return f
}

// NewAnonymizedFormatter returns a visitor producing the value-independent
// structural fingerprint rendering.
func NewAnonymizedFormatter(ctx *expr.Context) expr.Visitor {
	f := &expressionFormatter{parsing: ctx}
	f.literals = anonymizedLiterals{}
	return f
}

// Expression renders e canonically using ctx for alias deduplication.
func Expression(ctx *expr.Context, e expr.Expression) (string, error) {
	return e.Accept(NewExpressionFormatter(ctx))
}

// AnonymizedExpression renders e anonymized using ctx for alias deduplication.
func AnonymizedExpression(ctx *expr.Context, e expr.Expression) (string, error) {
	return e.Accept(NewAnonymizedFormatter(ctx))
}

// Fingerprint renders expressions anonymized with a single fresh Context and
// joins them, producing one shape fingerprint for the whole set.
func Fingerprint(expressions ...expr.Expression) (string, error) {
	v := NewAnonymizedFormatter(expr.NewContext())

	parts := make([]string, 0, len(expressions))
	for _, e := range expressions {
		s, err := e.Accept(v)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

func (f *expressionFormatter) push() error {
	f.depth++
	if f.depth > maxDepth {
		return errors.Errorf("expression exceeds maximum depth of %d", maxDepth)
	}
	return nil
}

func (f *expressionFormatter) pop() {
	f.depth--
}

// bindAlias applies the alias policy to an already-rendered expression. The
// first binding of an alias in a pass emits the full (expr AS alias) form and
// registers the alias; later occurrences emit only the escaped alias as a
// back-reference. The producer guarantees that repeated aliases refer to
// expressions it intends to be identical.
func (f *expressionFormatter) bindAlias(formatted, alias string) string {
	if alias == "" {
		return formatted
	}
	if f.parsing.AliasPresent(alias) {
		return escape.Alias(alias)
	}
	f.parsing.AddAlias(alias)
	return "(" + formatted + " AS " + escape.Alias(alias) + ")"
}

// identifier escapes a name that must be present; an empty name here is a
// defect in the producer, never silently coerced.
func (f *expressionFormatter) identifier(name string) (string, error) {
	if name == "" {
		return "", errors.New("empty identifier in expression")
	}
	return escape.Identifier(name), nil
}

func (f *expressionFormatter) visitParams(parameters []expr.Expression) (string, error) {
	rendered := make([]string, 0, len(parameters))
	for _, p := range parameters {
		s, err := p.Accept(f)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, s)
	}
	return strings.Join(rendered, ", "), nil
}

// VisitLiteral implements expr.Visitor. Null renders as NULL under every
// strategy with its alias ignored; any value outside the recognized kinds is
// a defect in the producer and aborts formatting.
func (f *expressionFormatter) VisitLiteral(e *expr.Literal) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	switch e.Value.(type) {
	case nil:
		return "NULL", nil
	case bool:
		return f.literals.booleanLiteral(e)
	case string:
		return f.literals.stringLiteral(e)
	case int, int64, float64:
		return f.literals.numberLiteral(e)
	case time.Time:
		return f.literals.datetimeLiteral(e)
	case expr.Date:
		return f.literals.dateLiteral(e)
	default:
		return "", errors.Errorf("unexpected literal value of type %T", e.Value)
	}
}

// VisitColumn implements expr.Visitor. A qualified column escapes its column
// part with alias quoting so a dotted column name cannot be mistaken for a
// deeper qualifier. The alias is suppressed entirely when it equals the
// unescaped qualified reference; aliases are assigned during parsing, so
// without this every projected column would render as a self-alias.
func (f *expressionFormatter) VisitColumn(e *expr.Column) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	var escaped, unescaped string
	if e.TableName != "" {
		table, err := f.identifier(e.TableName)
		if err != nil {
			return "", err
		}
		escaped = table + "." + escape.Alias(e.ColumnName)
		unescaped = e.TableName + "." + e.ColumnName
	} else {
		column, err := f.identifier(e.ColumnName)
		if err != nil {
			return "", err
		}
		escaped = column
		unescaped = e.ColumnName
	}

	if e.Alias == unescaped {
		return escaped, nil
	}
	return f.bindAlias(escaped, e.Alias), nil
}

// VisitSubscriptableReference implements expr.Visitor. ClickHouse has no
// native subscript node; these are rewritten away upstream in the common
// case, but the formatter renders the bracket form rather than fail when one
// slips through.
func (f *expressionFormatter) VisitSubscriptableReference(e *expr.SubscriptableReference) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	column, err := f.VisitColumn(e.Column)
	if err != nil {
		return "", err
	}
	key, err := f.VisitLiteral(e.Key)
	if err != nil {
		return "", err
	}
	return column + "[" + key + "]", nil
}

// VisitFunctionCall implements expr.Visitor.
func (f *expressionFormatter) VisitFunctionCall(e *expr.FunctionCall) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	switch e.Function {
	case arrayFunction:
		// array(1, 2, 3) breaks some distributed query paths; the bracket
		// form is accepted everywhere.
		params, err := f.visitParams(e.Parameters)
		if err != nil {
			return "", err
		}
		return f.bindAlias("["+params+"]", e.Alias), nil

	case expr.BooleanAnd:
		// AND chains are joined flat without parentheses and without alias
		// binding; an alias on an AND node is dropped. Parenthesization for
		// precedence is the caller's concern.
		return f.joinConditions(expr.FirstLevelAndConditions(e), " AND ")

	case expr.BooleanOr:
		joined, err := f.joinConditions(expr.FirstLevelOrConditions(e), " OR ")
		if err != nil {
			return "", err
		}
		return f.bindAlias("("+joined+")", e.Alias), nil
	}

	name, err := f.identifier(e.Function)
	if err != nil {
		return "", err
	}
	params, err := f.visitParams(e.Parameters)
	if err != nil {
		return "", err
	}
	return f.bindAlias(name+"("+params+")", e.Alias), nil
}

func (f *expressionFormatter) joinConditions(conditions []expr.Expression, sep string) (string, error) {
	rendered := make([]string, 0, len(conditions))
	for _, c := range conditions {
		s, err := c.Accept(f)
		if err != nil {
			return "", err
		}
		rendered = append(rendered, s)
	}
	return strings.Join(rendered, sep), nil
}

// VisitCurriedFunctionCall implements expr.Visitor.
func (f *expressionFormatter) VisitCurriedFunctionCall(e *expr.CurriedFunctionCall) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	inner, err := f.VisitFunctionCall(e.InternalFunction)
	if err != nil {
		return "", err
	}
	params, err := f.visitParams(e.Parameters)
	if err != nil {
		return "", err
	}
	return f.bindAlias(inner+"("+params+")", e.Alias), nil
}

// VisitLambda implements expr.Visitor.
func (f *expressionFormatter) VisitLambda(e *expr.Lambda) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	params := make([]string, 0, len(e.Parameters))
	for _, p := range e.Parameters {
		escaped, err := f.identifier(p)
		if err != nil {
			return "", err
		}
		params = append(params, escaped)
	}
	body, err := e.Transformation.Accept(f)
	if err != nil {
		return "", err
	}
	return f.bindAlias("("+strings.Join(params, ", ")+" -> "+body+")", e.Alias), nil
}

// VisitArgument implements expr.Visitor.
func (f *expressionFormatter) VisitArgument(e *expr.Argument) (string, error) {
	if err := f.push(); err != nil {
		return "", err
	}
	defer f.pop()

	return f.identifier(e.Name)
}

// canonicalLiterals renders literal values as real, escaped SQL. Literal
// aliases are bound here so the anonymized strategy can skip binding.
type canonicalLiterals struct {
	f *expressionFormatter
}

func (c *canonicalLiterals) stringLiteral(e *expr.Literal) (string, error) {
	return c.f.bindAlias(escape.String(e.Value.(string)), e.Alias), nil
}

func (c *canonicalLiterals) numberLiteral(e *expr.Literal) (string, error) {
	var s string
	switch v := e.Value.(type) {
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	case float64:
		s = formatFloat(v)
	}
	return c.f.bindAlias(s, e.Alias), nil
}

// formatFloat renders a float in plain decimal form, switching to exponent
// notation only for very large or very small magnitudes. Whole floats keep a
// ".0" suffix so the int-vs-float distinction of the source value survives
// rendering.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	format := byte('f')
	if v != 0 && (abs < 1e-4 || abs >= 1e16) {
		format = 'g'
	}

	s := strconv.FormatFloat(v, format, -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

func (c *canonicalLiterals) booleanLiteral(e *expr.Literal) (string, error) {
	if e.Value.(bool) {
		return c.f.bindAlias("true", e.Alias), nil
	}
	return c.f.bindAlias("false", e.Alias), nil
}

func (c *canonicalLiterals) datetimeLiteral(e *expr.Literal) (string, error) {
	// Truncate to whole seconds and strip the zone without converting: the
	// wall-clock reading is kept and declared Universal.
	value := e.Value.(time.Time)
	rendered := "toDateTime('" + value.Format("2006-01-02T15:04:05") + "', 'Universal')"
	return c.f.bindAlias(rendered, e.Alias), nil
}

func (c *canonicalLiterals) dateLiteral(e *expr.Literal) (string, error) {
	rendered := "toDate('" + e.Value.(expr.Date).String() + "', 'Universal')"
	return c.f.bindAlias(rendered, e.Alias), nil
}

// anonymizedLiterals replaces every literal value with a fixed category token
// and never binds literal aliases, so two queries differing only in literal
// values fingerprint identically.
type anonymizedLiterals struct{}

func (anonymizedLiterals) stringLiteral(*expr.Literal) (string, error)   { return "$S", nil }
func (anonymizedLiterals) numberLiteral(*expr.Literal) (string, error)   { return "$N", nil }
func (anonymizedLiterals) booleanLiteral(*expr.Literal) (string, error)  { return "$B", nil }
func (anonymizedLiterals) datetimeLiteral(*expr.Literal) (string, error) { return "$DT", nil }
func (anonymizedLiterals) dateLiteral(*expr.Literal) (string, error)     { return "$D", nil }
