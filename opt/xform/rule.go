// Package xform is the top-down search driver: the rule engine, the
// exploration/implementation passes, and the property-directed
// cost-based optimization loop and extraction procedure, in the
// Cascades/Volcano style. All of it is expressed against the closed
// opt.Operator contract; operator catalogs and rules plug in from
// outside.
package xform

import (
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/pattern"
)

// Category is the closed enumeration used for phase gating: logical
// rules only ever run during exploration, physical rules only ever run
// during implementation.
type Category int

const (
	// LogicalTransformation rules rewrite a logical expression into
	// another logically equivalent logical expression, added to the same
	// group.
	LogicalTransformation Category = iota
	// PhysicalImplementation rules turn a logical expression into one or
	// more physical expressions, added to the same group.
	PhysicalImplementation
)

func (c Category) String() string {
	switch c {
	case LogicalTransformation:
		return "logical-transformation"
	case PhysicalImplementation:
		return "physical-implementation"
	default:
		return "unknown-category"
	}
}

// ProducedExpr is one operator-tree alternative a rule's Transform
// produces: a new root operator whose children are group references
// already present in the memo. Every rule in this
// repository only ever needs to name existing groups as children
// (reordering a join's operands, wrapping a group in a new physical
// enforcer, or swapping in a different physical implementation), so
// ProducedExpr does not need to represent arbitrarily deep new subtrees.
type ProducedExpr struct {
	Op       opt.Operator
	Children []opt.GroupID
}

// Rule is the transformation plug-in surface: a pattern to match, an
// optional guard, and a transform that proposes zero or more
// equivalent expressions.
type Rule interface {
	// ID is a short, stable, human-readable name used in trace output and
	// test fixtures.
	ID() string

	// Category determines which phase (explore or implement) applies this
	// rule.
	Category() Category

	// Pattern is the structural template this rule matches against a
	// bound expression.
	Pattern() *pattern.Pattern

	// Check is an optional guard; a binding that fails Check is skipped
	// without calling Transform. A rule with no real guard returns true
	// unconditionally.
	Check(b *pattern.Binding) bool

	// Transform proposes zero or more replacement expressions for a
	// binding that passed Check. Rule.Transform failures (returning nil)
	// are non-fatal; they simply mean "no new expressions".
	Transform(b *pattern.Binding) []ProducedExpr
}

// RuleSet is an ordered, immutable collection of rules. Rule order is
// part of the optimizer's determinism guarantee: rule application
// follows declared rule order.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet returns a RuleSet applying rules in the given order.
func NewRuleSet(rules ...Rule) *RuleSet {
	return &RuleSet{rules: rules}
}

// ForCategory returns the subset of rules in declared order matching
// category.
func (rs *RuleSet) ForCategory(category Category) []Rule {
	var out []Rule
	for _, r := range rs.rules {
		if r.Category() == category {
			out = append(out, r)
		}
	}
	return out
}
