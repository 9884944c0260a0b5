// Package parser expands user-facing query shorthand into expression trees.
//
// Queries reference columns and aggregates using a compact textual form:
//
//	duration                  a bare column
//	events.duration           a table-qualified column
//	tags[environment]         a tag lookup
//	count()                   an aggregate
//	uniq(user_id)             an aggregate over a column
//	quantile(0.9)(duration)   a parametrized (curried) aggregate
//
// Parsing produces pkg/expr nodes ready for formatting. Aliases are assigned
// here, during parsing: columns default to their own qualified name (the
// formatter suppresses the resulting self-alias) and tag lookups default to
// the dotted tag-derived form ("tags.environment").
package parser

import (
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"github.com/eventsift/eventsift/pkg/escape"
	"github.com/eventsift/eventsift/pkg/expr"
	"github.com/pkg/errors"
)

type (
	// shorthand is the grammar root: exactly one expression.
	shorthand struct {
		Expr *shorthandExpr `parser:"@@"`
	}

	shorthandExpr struct {
		Function  *functionExpr  `parser:"@@"`
		Subscript *subscriptExpr `parser:"| @@"`
		Column    *columnExpr    `parser:"| @@"`
		Number    *string        `parser:"| @Number"`
		String    *string        `parser:"| @String"`
	}

	functionExpr struct {
		Name    string     `parser:"@Ident"`
		Params  paramList  `parser:"@@"`
		Curried *paramList `parser:"@@?"`
	}

	paramList struct {
		Params []*shorthandExpr `parser:"'(' ( @@ ( ',' @@ )* )? ')'"`
	}

	subscriptExpr struct {
		Column string       `parser:"@Ident"`
		Key    subscriptKey `parser:"'[' @@ ']'"`
	}

	subscriptKey struct {
		Ident  *string `parser:"@Ident"`
		String *string `parser:"| @String"`
	}

	columnExpr struct {
		Name      string  `parser:"@Ident"`
		Qualified *string `parser:"( '.' @Ident )?"`
	}
)

var (
	shorthandLexer = lexer.MustSimple([]lexer.SimpleRule{
		{Name: "String", Pattern: `'([^'\\]|\\.)*'`},
		{Name: "Number", Pattern: `-?\d+(\.\d+)?`},
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_:-]*`},
		{Name: "Punct", Pattern: `[(),.\[\]]`},
		{Name: "Whitespace", Pattern: `\s+`},
	})

	shorthandParser = participle.MustBuild[shorthand](
		participle.Lexer(shorthandLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(4),
	)
)

// Parse converts one shorthand expression into an expression tree. A
// non-empty alias overrides the default alias assignment for the top-level
// node; literals and bare function calls have no default alias.
func Parse(input, alias string) (expr.Expression, error) {
	parsed, err := shorthandParser.ParseString("", strings.TrimSpace(input))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse expression %q", input)
	}
	return convert(parsed.Expr, alias)
}

func convert(s *shorthandExpr, alias string) (expr.Expression, error) {
	switch {
	case s.Function != nil:
		return convertFunction(s.Function, alias)
	case s.Subscript != nil:
		return convertSubscript(s.Subscript, alias)
	case s.Column != nil:
		return convertColumn(s.Column, alias), nil
	case s.Number != nil:
		value, err := parseNumber(*s.Number)
		if err != nil {
			return nil, err
		}
		return &expr.Literal{Value: value, Alias: alias}, nil
	case s.String != nil:
		value, err := escape.UnescapeString(*s.String)
		if err != nil {
			return nil, errors.Wrap(err, "invalid string literal")
		}
		return &expr.Literal{Value: value, Alias: alias}, nil
	}
	return nil, errors.New("empty expression")
}

func convertFunction(fn *functionExpr, alias string) (expr.Expression, error) {
	params, err := convertParams(fn.Params.Params)
	if err != nil {
		return nil, err
	}

	if fn.Curried == nil {
		return &expr.FunctionCall{
			Alias:      alias,
			Function:   fn.Name,
			Parameters: params,
		}, nil
	}

	outer, err := convertParams(fn.Curried.Params)
	if err != nil {
		return nil, err
	}
	return &expr.CurriedFunctionCall{
		Alias:            alias,
		InternalFunction: &expr.FunctionCall{Function: fn.Name, Parameters: params},
		Parameters:       outer,
	}, nil
}

func convertParams(params []*shorthandExpr) ([]expr.Expression, error) {
	converted := make([]expr.Expression, 0, len(params))
	for _, p := range params {
		e, err := convert(p, "")
		if err != nil {
			return nil, err
		}
		converted = append(converted, e)
	}
	return converted, nil
}

// convertSubscript builds a tag lookup. The synthetic alias is dotted
// ("tags.environment") and lives on the key literal: subscript nodes never
// bind their own alias during rendering, so a binding placed anywhere else
// would be dropped.
func convertSubscript(sub *subscriptExpr, alias string) (expr.Expression, error) {
	var key string
	switch {
	case sub.Key.Ident != nil:
		key = *sub.Key.Ident
	case sub.Key.String != nil:
		unescaped, err := escape.UnescapeString(*sub.Key.String)
		if err != nil {
			return nil, errors.Wrap(err, "invalid subscript key")
		}
		key = unescaped
	default:
		return nil, errors.New("empty subscript key")
	}

	if alias == "" {
		alias = sub.Column + "." + key
	}
	return &expr.SubscriptableReference{
		Alias:  alias,
		Column: &expr.Column{ColumnName: sub.Column},
		Key:    &expr.Literal{Value: key, Alias: alias},
	}, nil
}

func convertColumn(col *columnExpr, alias string) expr.Expression {
	table, name := "", col.Name
	if col.Qualified != nil {
		table, name = col.Name, *col.Qualified
	}

	if alias == "" {
		alias = name
		if table != "" {
			alias = table + "." + name
		}
	}
	return &expr.Column{Alias: alias, TableName: table, ColumnName: name}
}

func parseNumber(raw string) (any, error) {
	if strings.Contains(raw, ".") {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", raw)
		}
		return value, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid number %q", raw)
	}
	return value, nil
}
