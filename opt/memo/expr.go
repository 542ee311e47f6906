// Package memo implements the Cascades-style memoization structure:
// groups of logically equivalent group-expressions, a canonical
// deduplication index over (operator, child groups), and the
// per-required-property best-expression bindings produced by
// optimization. Everything is expressed against the single closed
// opt.Operator contract rather than a generated expression hierarchy.
package memo

import (
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// Expr is one group-expression: an operator node whose children are
// group references, not other expressions. It is the unit of
// memoization.
type Expr struct {
	Operator opt.Operator
	Children []opt.GroupID
	group    opt.GroupID
}

// Group returns the id of the group this expression belongs to. It is
// UndefinedGroup until the expression has actually been inserted into a
// memo.
func (e *Expr) Group() opt.GroupID {
	return e.group
}

// ChildCount returns the expression's arity (equal to its operator's).
func (e *Expr) ChildCount() int {
	return len(e.Children)
}

// equalTo reports whether e and other would canonicalize to the same
// memo slot: same operator (by StructuralEq) and same child group ids,
// in order.
func (e *Expr) equalTo(other *Expr) bool {
	if len(e.Children) != len(other.Children) {
		return false
	}
	if !e.Operator.StructuralEq(other.Operator) {
		return false
	}
	for i, c := range e.Children {
		if c != other.Children[i] {
			return false
		}
	}
	return true
}

// fingerprint returns the hash used to bucket e in the memo's canonical
// index: operator hash combined with each child group id.
func (e *Expr) fingerprint() uint64 {
	h := e.Operator.StructuralHash()
	for _, c := range e.Children {
		h = h*1099511628211 ^ uint64(c)
	}
	return h
}

// RequiredBinding records the optimization metadata for one expression
// costed under one required property set: the derived output property
// set, the input property sets demanded from each child, the estimated
// cost, and an opaque statistics summary.
type RequiredBinding struct {
	Required    props.Set
	Output      props.Set
	ChildInputs []props.Set
	Cost        opt.Cost
	Stats       opt.Stats
}
