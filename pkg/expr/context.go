package expr

// Context tracks which aliases have already been bound during one formatting
// pass. A pass covers every expression rendered for a single query, so the
// same Context must be shared across all of them; that is what lets the second
// and later occurrences of an alias render as a bare back-reference instead of
// repeating the full binding.
//
// A Context is valid for exactly one pass. It is not safe for concurrent use
// and must never be shared across passes: reuse would make one query's alias
// look already-bound in another, silently corrupting output.
type Context struct {
	aliases map[string]struct{}
}

// NewContext returns an empty Context for a new formatting pass.
func NewContext() *Context {
	return &Context{aliases: make(map[string]struct{})}
}

// AliasPresent reports whether alias has already been bound in this pass.
func (c *Context) AliasPresent(alias string) bool {
	_, ok := c.aliases[alias]
	return ok
}

// AddAlias records alias as bound for the remainder of this pass.
func (c *Context) AddAlias(alias string) {
	c.aliases[alias] = struct{}{}
}
