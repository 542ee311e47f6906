// Package opt defines the closed operator model shared by the memo, the
// pattern matcher, and the rule engine: operator kinds, the Operator
// contract that every logical and physical node must satisfy, and the
// handful of identifiers (GroupID, OperatorKind) that flow through the
// rest of the search framework.
package opt

import (
	"math"

	"github.com/kamkernel/cascadeopt/opt/props"
)

// GroupID is an opaque, stable identifier for a group within one memo.
// It is never reused or reinterpreted across memos.
type GroupID uint32

// UndefinedGroup is the sentinel value meaning "not yet assigned".
const UndefinedGroup GroupID = 0

// Valid reports whether id refers to a real group rather than the
// UndefinedGroup sentinel.
func (id GroupID) Valid() bool {
	return id != UndefinedGroup
}

// OperatorKind identifies one member of the closed operator enumeration.
// Kinds are partitioned into a logical subset and a physical subset;
// IsLogical/IsPhysical below define the partition.
type OperatorKind uint16

// String returns the registered name for k, or "unknown-op" if k was
// never registered via RegisterKind.
func (k OperatorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown-op"
}

var kindNames = map[OperatorKind]string{}
var kindLogical = map[OperatorKind]bool{}

// RegisterKind associates a human-readable name with an operator kind and
// records whether it belongs to the logical or physical subset. Operator
// catalogs (see opt/demoops) call this from an init function; the core
// framework never constructs new kinds itself. Extension happens through
// rule plug-ins over a closed kind set, not through new operator classes.
func RegisterKind(k OperatorKind, name string, logical bool) {
	kindNames[k] = name
	kindLogical[k] = logical
}

// IsLogical reports whether k was registered as a logical operator kind.
func (k OperatorKind) IsLogical() bool { return kindLogical[k] }

// IsPhysical reports whether k was not registered as a logical operator
// kind; a kind that was never registered counts as physical.
func (k OperatorKind) IsPhysical() bool { return !kindLogical[k] }

// Operator is the plug-in surface every logical and physical node in the
// closed operator set must implement. Catalogs
// outside the core framework (opt/demoops, or a real SQL operator catalog)
// provide concrete kinds; the search framework only ever depends on this
// interface.
type Operator interface {
	// Kind returns this operator's member of the closed enumeration.
	Kind() OperatorKind

	// ChildCount returns the operator's arity.
	ChildCount() int

	// IsLogical and IsPhysical mirror Kind().IsLogical()/IsPhysical() for
	// convenience at call sites that only have an Operator in hand.
	IsLogical() bool
	IsPhysical() bool

	// StructuralEq reports whether this operator is parameter-for-parameter
	// identical to other: same kind, same kind-specific parameters. It does
	// not compare children; the memo combines this with child GroupID
	// equality to canonicalize expressions.
	StructuralEq(other Operator) bool

	// StructuralHash returns a hash over kind and kind-specific parameters
	// only (not children), used to bucket candidates before the more
	// expensive StructuralEq check during canonicalization.
	StructuralHash() uint64
}

// LogicalOperator is the subset of the Operator contract that only
// logical operators need. It exists as a distinct name from Operator so
// call sites that only accept logical nodes document that intent, even
// though the method set is currently identical.
type LogicalOperator interface {
	Operator
}

// PhysicalOperator is the subset of the Operator contract physical
// operators implement in addition to Operator: deriving cost and
// statistics from child costs/statistics, and enumerating the
// (output, input[]) property alternatives they can offer for a given
// required property set.
type PhysicalOperator interface {
	Operator

	// PropertyAlternatives enumerates every feasible
	// (output properties, per-child input properties) pairing this
	// operator can offer in order to satisfy required. An operator with
	// only one execution mode returns a single-element slice; an operator
	// like a merge join that can produce more than one output ordering
	// depending on which input ordering it demands returns one entry per
	// mode. Returning a nil/empty slice means this operator can never
	// satisfy required at all.
	PropertyAlternatives(required props.Set) []PropertyAlternative

	// DeriveStatsAndCost computes this operator's own Stats and Cost given
	// the output/input property choice (one of PropertyAlternatives'
	// results) and each child's already-computed Stats and Cost.
	DeriveStatsAndCost(alt PropertyAlternative, childStats []Stats, childCosts []Cost) (Stats, Cost)
}

// PropertyAlternative is one feasible way for a physical operator to
// satisfy a required property set: the properties it will then derive
// for its own output, paired with the properties it demands of each
// child. len(Input) always equals the operator's arity.
type PropertyAlternative struct {
	Output props.Set
	Input  []props.Set
}

// Stats is an opaque-to-the-framework statistics payload attached to
// each costed expression. The search framework never inspects its
// fields beyond RowCount; it only threads the value from children to
// parents so operator-specific cost formulas can use it.
type Stats interface {
	// RowCount is the one numeric field the framework itself may read,
	// purely for tie-breaking diagnostics; cost formulas live entirely in
	// operator implementations.
	RowCount() float64
}

// Cost is a non-negative real-valued cost estimate. Lower is better.
type Cost float64

// Less reports whether c is strictly cheaper than other, guarding against
// NaN costs (which a buggy cost formula could otherwise propagate
// silently to "always wins" or "always loses").
func (c Cost) Less(other Cost) bool {
	if math.IsNaN(float64(c)) || math.IsNaN(float64(other)) {
		return false
	}
	return c < other
}

// Add returns the monotone combination of this cost with a child cost.
// It is plain addition, with no overflow or NaN handling; keeping the
// combination monotone in child costs is what lets a locally optimal
// child choice stay globally optimal.
func (c Cost) Add(other Cost) Cost {
	return c + other
}
