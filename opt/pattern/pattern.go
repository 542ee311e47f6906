// Package pattern implements the structural matcher rules use to find
// sub-plans in the memo: a pattern tree of operator-kind-plus-wildcard
// nodes, and a lazy binding iterator that enumerates every embedding of
// a pattern into a group-expression, following group references into
// the memo. Enumeration is driven by explicit iterator state (a stack
// of per-level cursors into child expression lists) rather than
// recursion with callbacks, so a rule's guard can short-circuit without
// allocating the full Cartesian product.
package pattern

import "github.com/kamkernel/cascadeopt/opt"

// Kind distinguishes the three node shapes a Pattern can take.
type Kind int

const (
	// KindLeaf matches any group without constraining its contents.
	KindLeaf Kind = iota
	// KindMatch constrains the bound group-expression to a specific
	// operator kind and recursively matches each child.
	KindMatch
	// KindAny binds to the group-expression passed to Bind regardless of
	// its operator kind, keeping the real Expr in the resulting Binding.
	// Unlike KindLeaf (a wildcard used for *child* positions, which never
	// carries an Expr), KindAny is for a rule that applies at the root
	// position to every kind of expression, e.g. an enforcer rule.
	KindAny
)

// Pattern is one node of a pattern tree.
type Pattern struct {
	kind     Kind
	opKind   opt.OperatorKind
	children []*Pattern
}

// Leaf returns a wildcard pattern node that matches any group.
func Leaf() *Pattern {
	return &Pattern{kind: KindLeaf}
}

// Match returns a pattern node that matches a group-expression whose
// operator kind is k and whose children match the given subpatterns in
// order. len(children) must equal the arity the rule expects for k.
func Match(k opt.OperatorKind, children ...*Pattern) *Pattern {
	return &Pattern{kind: KindMatch, opKind: k, children: children}
}

// Any returns a pattern node matching any operator kind at the root
// position, binding directly to that group-expression.
func Any() *Pattern {
	return &Pattern{kind: KindAny}
}

// Kind returns this node's shape.
func (p *Pattern) Kind() Kind { return p.kind }

// OpKind returns the operator kind a KindMatch node requires. It is
// meaningless on a KindLeaf node.
func (p *Pattern) OpKind() opt.OperatorKind { return p.opKind }

// Children returns the subpatterns of a KindMatch node (empty for a
// leaf operator and for KindLeaf nodes).
func (p *Pattern) Children() []*Pattern { return p.children }
