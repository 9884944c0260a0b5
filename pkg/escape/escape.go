// Package escape provides the quoting and escaping primitives used when
// rendering expressions into ClickHouse SQL.
//
// Escaping happens in exactly one place: the expression formatter applies these
// functions as it renders each node, and the resulting SQL must never be escaped
// again. String escaping is the only defense against SQL injection for literal
// values, so it is applied to every string literal with no exceptions.
package escape

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// errMalformedStringLiteral is returned by UnescapeString for input that was
// not produced by String.
var errMalformedStringLiteral = errors.New("malformed escaped string literal")

// safeIdentRe matches identifiers that can be emitted without quoting: they
// start with a letter or underscore and contain only word characters.
var safeIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// reservedWords is the set of ClickHouse keywords that must be quoted even when
// they would otherwise be safe bare identifiers.
var reservedWords = map[string]struct{}{}

func init() {
	for _, kw := range []string{
		"ALL", "AND", "ANTI", "ANY", "ARRAY", "AS", "ASC", "ASOF", "BETWEEN",
		"BY", "CASE", "CROSS", "DESC", "DISTINCT", "ELSE", "END", "FINAL",
		"FROM", "FULL", "GLOBAL", "GROUP", "HAVING", "IN", "INNER", "INTERVAL",
		"IS", "JOIN", "LEFT", "LIKE", "LIMIT", "NOT", "NULL", "OFFSET", "ON",
		"OR", "ORDER", "OUTER", "PREWHERE", "RIGHT", "SAMPLE", "SELECT",
		"SETTINGS", "THEN", "UNION", "USING", "WHEN", "WHERE", "WITH",
	} {
		reservedWords[kw] = struct{}{}
	}
}

// quote wraps name in backticks, doubling any embedded backtick so the quoted
// form cannot terminate early.
func quote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func isReserved(name string) bool {
	_, ok := reservedWords[strings.ToUpper(name)]
	return ok
}

// Identifier escapes a bare identifier (column, table or function name).
// Identifiers made of word characters that do not start with a digit and do
// not collide with a reserved word pass through unchanged; everything else is
// backtick quoted. An empty input yields an empty output; callers that cannot
// structurally tolerate absence must enforce that before calling.
//
// Examples:
//   - "events" -> "events"
//   - "group" -> "`group`"
//   - "2fa_enabled" -> "`2fa_enabled`"
//   - "weird name" -> "`weird name`"
func Identifier(name string) string {
	if name == "" {
		return ""
	}
	if safeIdentRe.MatchString(name) && !isReserved(name) {
		return name
	}
	return quote(name)
}

// Alias escapes an alias using the same quoting mechanism as Identifier.
// Aliases legitimately contain dots (synthetic tag-derived aliases like
// "tags.environment"), and a dotted alias must always be quoted so the dot is
// not mistaken for a table qualifier separator.
//
// Examples:
//   - "duration" -> "duration"
//   - "tags.environment" -> "`tags.environment`"
func Alias(name string) string {
	if name == "" {
		return ""
	}
	if safeIdentRe.MatchString(name) && !isReserved(name) {
		return name
	}
	return quote(name)
}

// String escapes a string literal for inclusion in SQL. The value is wrapped
// in single quotes with embedded backslashes and single quotes prefixed by a
// backslash.
//
// Example:
//
//	escape.String(`O'Reilly`) // `'O\'Reilly'`
func String(value string) string {
	var b strings.Builder
	b.Grow(len(value) + 2)
	b.WriteByte('\'')
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == '\'' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('\'')
	return b.String()
}

// UnescapeString is the exact inverse of String. It strips the surrounding
// quotes and removes one level of backslash escaping. The input must be a
// value produced by String; anything else is rejected.
func UnescapeString(value string) (string, error) {
	if len(value) < 2 || value[0] != '\'' || value[len(value)-1] != '\'' {
		return "", errMalformedStringLiteral
	}
	inner := value[1 : len(value)-1]

	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c == '\'' {
			return "", errMalformedStringLiteral
		}
		if c == '\\' {
			i++
			if i >= len(inner) || (inner[i] != '\'' && inner[i] != '\\') {
				return "", errMalformedStringLiteral
			}
			c = inner[i]
		}
		b.WriteByte(c)
	}
	return b.String(), nil
}
