// Package expr defines the intermediate representation for query expressions.
//
// An expression tree is produced by the query-construction layer (see
// pkg/query and pkg/parser) and consumed by the SQL formatter (pkg/format).
// Trees are immutable after construction: nodes are plain value structs and
// nothing in this package or its consumers mutates them.
//
// The set of node variants is closed. Every variant has a corresponding method
// on the Visitor interface, so adding a variant without teaching every
// formatter how to render it is a compile error.
package expr

import "time"

type (
	// Expression is a node in the query expression tree. Rendering is
	// performed through double dispatch: the node calls the Visitor method
	// for its own variant.
	Expression interface {
		Accept(v Visitor) (string, error)
	}

	// Visitor renders expressions, one method per node variant.
	Visitor interface {
		VisitLiteral(e *Literal) (string, error)
		VisitColumn(e *Column) (string, error)
		VisitSubscriptableReference(e *SubscriptableReference) (string, error)
		VisitFunctionCall(e *FunctionCall) (string, error)
		VisitCurriedFunctionCall(e *CurriedFunctionCall) (string, error)
		VisitLambda(e *Lambda) (string, error)
		VisitArgument(e *Argument) (string, error)
	}

	// Literal is a constant value. Value must be one of: nil, bool, int,
	// int64, float64, string, time.Time (a datetime) or Date. Any other type
	// is a defect in the producer and causes formatting to fail.
	Literal struct {
		Alias string
		Value any
	}

	// Column is a reference to a stored field, optionally qualified by a
	// table name.
	Column struct {
		Alias      string
		TableName  string
		ColumnName string
	}

	// SubscriptableReference is a map/array element access such as a tag
	// lookup: column[key]. ClickHouse has no native equivalent; these nodes
	// only survive until the query-construction layer rewrites them away,
	// but the formatter must render them rather than fail.
	SubscriptableReference struct {
		Alias  string
		Column *Column
		Key    *Literal
	}

	// FunctionCall applies a named function to an ordered parameter list.
	// Boolean conjunction and disjunction are represented as binary calls
	// named BooleanAnd and BooleanOr.
	FunctionCall struct {
		Alias      string
		Function   string
		Parameters []Expression
	}

	// CurriedFunctionCall applies the function returned by an inner call to
	// a second parameter list, e.g. quantile(0.9)(duration).
	CurriedFunctionCall struct {
		Alias            string
		InternalFunction *FunctionCall
		Parameters       []Expression
	}

	// Lambda is an inline anonymous function passed to a higher-order
	// function, e.g. arrayMap((x -> x * 2), arr).
	Lambda struct {
		Alias          string
		Parameters     []string
		Transformation Expression
	}

	// Argument is a bare reference to a name bound by an enclosing Lambda.
	// Arguments never carry an alias.
	Argument struct {
		Name string
	}

	// Date is a calendar date without a time of day, kept distinct from
	// time.Time so date and datetime literals render differently.
	Date struct {
		Year  int
		Month time.Month
		Day   int
	}
)

// Accept implements Expression.
func (e *Literal) Accept(v Visitor) (string, error) { return v.VisitLiteral(e) }

// Accept implements Expression.
func (e *Column) Accept(v Visitor) (string, error) { return v.VisitColumn(e) }

// Accept implements Expression.
func (e *SubscriptableReference) Accept(v Visitor) (string, error) {
	return v.VisitSubscriptableReference(e)
}

// Accept implements Expression.
func (e *FunctionCall) Accept(v Visitor) (string, error) { return v.VisitFunctionCall(e) }

// Accept implements Expression.
func (e *CurriedFunctionCall) Accept(v Visitor) (string, error) {
	return v.VisitCurriedFunctionCall(e)
}

// Accept implements Expression.
func (e *Lambda) Accept(v Visitor) (string, error) { return v.VisitLambda(e) }

// Accept implements Expression.
func (e *Argument) Accept(v Visitor) (string, error) { return v.VisitArgument(e) }

// DateOf returns the Date on which t falls, in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// String renders the date in ISO-8601 form (YYYY-MM-DD).
func (d Date) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
