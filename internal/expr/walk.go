package expr

// Children returns the direct operands of e in evaluation order.
func Children(e Expression) []Expression {
	switch n := e.(type) {
	case FunctionCall:
		return n.Args
	case Arithmetic:
		return []Expression{n.Left, n.Right}
	case Negate:
		return []Expression{n.Value}
	case Comparison:
		return []Expression{n.Left, n.Right}
	case Logical:
		return []Expression{n.Left, n.Right}
	case Not:
		return []Expression{n.Value}
	case IsNull:
		return []Expression{n.Value}
	case Like:
		return []Expression{n.Value, n.Pattern}
	case Cast:
		return []Expression{n.Value}
	default:
		return nil
	}
}

// Walk visits e and its descendants depth-first, parents before children.
// Returning false from fn skips the node's children.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// Columns returns every column reference in e, in first-occurrence order,
// without duplicates.
func Columns(e Expression) []ColumnRef {
	var refs []ColumnRef
	seen := make(map[ColumnRef]bool)
	Walk(e, func(n Expression) bool {
		if c, ok := n.(ColumnRef); ok && !seen[c] {
			seen[c] = true
			refs = append(refs, c)
		}
		return true
	})
	return refs
}

// IsColumnRef reports whether e is a bare column reference.
func IsColumnRef(e Expression) (ColumnRef, bool) {
	c, ok := e.(ColumnRef)
	return c, ok
}
