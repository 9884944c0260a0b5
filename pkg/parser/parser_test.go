package parser_test

import (
	"testing"

	"github.com/eventsift/eventsift/pkg/expr"
	"github.com/eventsift/eventsift/pkg/format"
	"github.com/eventsift/eventsift/pkg/parser"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		alias    string
		expected expr.Expression
	}{
		{
			name:  "bare column defaults to a self alias",
			input: "duration",
			expected: &expr.Column{
				Alias:      "duration",
				ColumnName: "duration",
			},
		},
		{
			name:  "qualified column",
			input: "events.duration",
			expected: &expr.Column{
				Alias:      "events.duration",
				TableName:  "events",
				ColumnName: "duration",
			},
		},
		{
			name:  "explicit alias overrides the default",
			input: "duration",
			alias: "elapsed",
			expected: &expr.Column{
				Alias:      "elapsed",
				ColumnName: "duration",
			},
		},
		{
			name:  "tag lookup gets a dotted alias on its key",
			input: "tags[environment]",
			expected: &expr.SubscriptableReference{
				Alias:  "tags.environment",
				Column: &expr.Column{ColumnName: "tags"},
				Key:    &expr.Literal{Value: "environment", Alias: "tags.environment"},
			},
		},
		{
			name:  "tag lookup with a quoted key",
			input: "tags['release version']",
			expected: &expr.SubscriptableReference{
				Alias:  "tags.release version",
				Column: &expr.Column{ColumnName: "tags"},
				Key:    &expr.Literal{Value: "release version", Alias: "tags.release version"},
			},
		},
		{
			name:  "tag lookup with a namespaced key",
			input: "tags[sentry:release]",
			expected: &expr.SubscriptableReference{
				Alias:  "tags.sentry:release",
				Column: &expr.Column{ColumnName: "tags"},
				Key:    &expr.Literal{Value: "sentry:release", Alias: "tags.sentry:release"},
			},
		},
		{
			name:     "function call with no parameters",
			input:    "count()",
			alias:    "event_count",
			expected: &expr.FunctionCall{Alias: "event_count", Function: "count", Parameters: []expr.Expression{}},
		},
		{
			name:  "function call over a column",
			input: "uniq(user_id)",
			expected: &expr.FunctionCall{
				Function: "uniq",
				Parameters: []expr.Expression{
					&expr.Column{Alias: "user_id", ColumnName: "user_id"},
				},
			},
		},
		{
			name:  "nested function call",
			input: "uniq(toString(user_id))",
			expected: &expr.FunctionCall{
				Function: "uniq",
				Parameters: []expr.Expression{
					&expr.FunctionCall{
						Function: "toString",
						Parameters: []expr.Expression{
							&expr.Column{Alias: "user_id", ColumnName: "user_id"},
						},
					},
				},
			},
		},
		{
			name:  "curried aggregate",
			input: "quantile(0.9)(duration)",
			alias: "p90",
			expected: &expr.CurriedFunctionCall{
				Alias: "p90",
				InternalFunction: &expr.FunctionCall{
					Function:   "quantile",
					Parameters: []expr.Expression{&expr.Literal{Value: 0.9}},
				},
				Parameters: []expr.Expression{
					&expr.Column{Alias: "duration", ColumnName: "duration"},
				},
			},
		},
		{
			name:     "integer literal",
			input:    "42",
			expected: &expr.Literal{Value: int64(42)},
		},
		{
			name:     "negative integer literal",
			input:    "-7",
			expected: &expr.Literal{Value: int64(-7)},
		},
		{
			name:     "float literal",
			input:    "0.25",
			expected: &expr.Literal{Value: 0.25},
		},
		{
			name:     "string literal",
			input:    `'production'`,
			expected: &expr.Literal{Value: "production"},
		},
		{
			name:     "string literal with escapes",
			input:    `'O\'Reilly'`,
			expected: &expr.Literal{Value: "O'Reilly"},
		},
		{
			name:  "function over a tag lookup",
			input: "uniq(tags[environment])",
			expected: &expr.FunctionCall{
				Function: "uniq",
				Parameters: []expr.Expression{
					&expr.SubscriptableReference{
						Alias:  "tags.environment",
						Column: &expr.Column{ColumnName: "tags"},
						Key:    &expr.Literal{Value: "environment", Alias: "tags.environment"},
					},
				},
			},
		},
		{
			name:  "whitespace is tolerated",
			input: "  uniq( user_id )  ",
			expected: &expr.FunctionCall{
				Function: "uniq",
				Parameters: []expr.Expression{
					&expr.Column{Alias: "user_id", ColumnName: "user_id"},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parser.Parse(tt.input, tt.alias)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestParse_errors(t *testing.T) {
	inputs := []string{
		"",
		"func(",
		"tags[]",
		"a..b",
		"1abc",
		"'unterminated",
	}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			_, err := parser.Parse(input, "")
			require.Error(t, err)
		})
	}
}

func TestParse_rendersThroughFormatter(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		alias    string
		expected string
	}{
		{
			name:     "self aliased column renders bare",
			input:    "duration",
			expected: "duration",
		},
		{
			name:     "aliased aggregate",
			input:    "uniq(user_id)",
			alias:    "unique_users",
			expected: "(uniq(user_id) AS unique_users)",
		},
		{
			name:     "tag lookup binds its dotted alias",
			input:    "tags[environment]",
			expected: "tags[('environment' AS `tags.environment`)]",
		},
		{
			name:     "curried aggregate",
			input:    "quantile(0.9)(duration)",
			alias:    "p90",
			expected: "(quantile(0.9)(duration) AS p90)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed, err := parser.Parse(tt.input, tt.alias)
			require.NoError(t, err)

			rendered, err := format.Expression(expr.NewContext(), parsed)
			require.NoError(t, err)
			require.Equal(t, tt.expected, rendered)
		})
	}
}
