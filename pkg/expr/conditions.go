package expr

// Reserved function names marking boolean combinators. Conjunction and
// disjunction are represented in the tree as binary FunctionCall nodes with
// exactly these lowercase names.
const (
	BooleanAnd = "and"
	BooleanOr  = "or"
)

// FirstLevelAndConditions flattens a nested binary AND tree into its operands
// in left-to-right source order. Descent stops at any child that is not itself
// an AND call; such children are kept as single opaque operands. If condition
// is not an AND call at all, it is returned as the only operand.
func FirstLevelAndConditions(condition Expression) []Expression {
	return firstLevelConditions(condition, BooleanAnd)
}

// FirstLevelOrConditions is FirstLevelAndConditions for OR trees.
func FirstLevelOrConditions(condition Expression) []Expression {
	return firstLevelConditions(condition, BooleanOr)
}

func firstLevelConditions(condition Expression, function string) []Expression {
	if fn, ok := condition.(*FunctionCall); ok && fn.Function == function && len(fn.Parameters) == 2 {
		return append(
			firstLevelConditions(fn.Parameters[0], function),
			firstLevelConditions(fn.Parameters[1], function)...,
		)
	}
	return []Expression{condition}
}

// And combines conditions into a left-nested binary AND tree. It is the
// inverse shape of what FirstLevelAndConditions flattens. Passing a single
// condition returns it unchanged; passing none returns nil.
func And(conditions ...Expression) Expression {
	return combine(BooleanAnd, conditions)
}

// Or combines conditions into a left-nested binary OR tree.
func Or(conditions ...Expression) Expression {
	return combine(BooleanOr, conditions)
}

func combine(function string, conditions []Expression) Expression {
	if len(conditions) == 0 {
		return nil
	}
	combined := conditions[0]
	for _, c := range conditions[1:] {
		combined = &FunctionCall{Function: function, Parameters: []Expression{combined, c}}
	}
	return combined
}
