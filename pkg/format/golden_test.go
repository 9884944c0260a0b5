package format_test

import (
	"strings"
	"testing"
	"time"

	"github.com/eventsift/eventsift/pkg/expr"
	. "github.com/eventsift/eventsift/pkg/format"
	"github.com/stretchr/testify/require"
	"gotest.tools/v3/golden"
)

// queryExpressions builds the top-level expressions of a representative
// analytics query: projected columns, aggregates, a tag lookup and the
// combined WHERE condition.
func queryExpressions() []expr.Expression {
	from := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)

	return []expr.Expression{
		&expr.Column{ColumnName: "environment", Alias: "environment"},
		&expr.FunctionCall{Function: "count", Alias: "event_count"},
		&expr.FunctionCall{
			Function:   "uniq",
			Alias:      "unique_users",
			Parameters: []expr.Expression{&expr.Column{ColumnName: "user_id"}},
		},
		&expr.SubscriptableReference{
			Column: &expr.Column{ColumnName: "tags"},
			Key:    &expr.Literal{Value: "release", Alias: "tags.release"},
		},
		expr.And(
			&expr.FunctionCall{Function: "equals", Parameters: []expr.Expression{
				&expr.Column{ColumnName: "project_id"},
				&expr.Literal{Value: int64(12)},
			}},
			&expr.FunctionCall{Function: "greaterOrEquals", Parameters: []expr.Expression{
				&expr.Column{ColumnName: "timestamp"},
				&expr.Literal{Value: from},
			}},
			expr.Or(
				&expr.FunctionCall{Function: "equals", Parameters: []expr.Expression{
					&expr.Column{ColumnName: "environment"},
					&expr.Literal{Value: "production"},
				}},
				&expr.FunctionCall{Function: "equals", Parameters: []expr.Expression{
					&expr.Column{ColumnName: "environment"},
					&expr.Literal{Value: "staging"},
				}},
			),
		),
	}
}

func renderAll(t *testing.T, v expr.Visitor) string {
	t.Helper()

	var b strings.Builder
	for _, e := range queryExpressions() {
		s, err := e.Accept(v)
		require.NoError(t, err)
		b.WriteString(s)
		b.WriteString("\n")
	}
	return b.String()
}

func TestGoldenQuery(t *testing.T) {
	result := renderAll(t, NewExpressionFormatter(expr.NewContext()))
	golden.Assert(t, result, "query.golden")
}

func TestGoldenQueryAnonymized(t *testing.T) {
	result := renderAll(t, NewAnonymizedFormatter(expr.NewContext()))
	golden.Assert(t, result, "query_anonymized.golden")
}
