package demoops

import (
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/pattern"
	"github.com/kamkernel/cascadeopt/opt/props"
	"github.com/kamkernel/cascadeopt/opt/xform"
)

// Catalog describes the tables available to the demo rules: row counts
// and, for tables with a known index, the ordering that index provides.
// A real catalog would come from a schema/statistics component; here it
// is supplied directly by the demo CLI and the tests.
type Catalog struct {
	RowCounts   map[string]float64
	IndexOrders map[string]props.Ordering
}

func (c *Catalog) rowCount(table string) float64 {
	if n, ok := c.RowCounts[table]; ok {
		return n
	}
	return 1000
}

// InnerJoinCommutativity rewrites a JOIN(a, b) into JOIN(b, a). It
// fires on every binding (no guard), relying on the memo's
// canonicalization to dedupe the reverse-of-the-reverse case rather
// than tracking "already swapped" state itself.
type InnerJoinCommutativity struct{}

func (InnerJoinCommutativity) ID() string             { return "InnerJoinCommutativity" }
func (InnerJoinCommutativity) Category() xform.Category { return xform.LogicalTransformation }
func (InnerJoinCommutativity) Pattern() *pattern.Pattern {
	return pattern.Match(KindInnerJoin, pattern.Leaf(), pattern.Leaf())
}
func (InnerJoinCommutativity) Check(b *pattern.Binding) bool { return true }
func (InnerJoinCommutativity) Transform(b *pattern.Binding) []xform.ProducedExpr {
	j := b.Expr.Operator.(*InnerJoin)
	left, right := b.Kids[0].Group, b.Kids[1].Group
	return []xform.ProducedExpr{{
		Op:       &InnerJoin{Condition: j.Condition, Selectivity: j.Selectivity},
		Children: []opt.GroupID{right, left},
	}}
}

// EliminateSort merges a logical Sort's group into its child's group:
// Sort only imposes a required output property, it does not change the
// multiset of rows produced, and group membership is defined up to row
// order. Folding Sort's group into its child's via the ordinary
// memo-merge path (rather than a special-cased "is this sort
// redundant" check) is what lets cost-based selection later choose, in
// the merged group, between a PhysicalSort enforcer and any child
// physical alternative that already provides the required ordering for
// free; an indexed scan elides the sort outright.
//
// The child subpattern is pattern.Any() rather than pattern.Leaf() so
// Transform receives the actual bound Expr (operator + children) to
// re-insert verbatim into the Sort's own group; inserting an expression
// that already exists in the child's group, targeted at a different
// group, is precisely what Memo.Insert's merge path is for.
type EliminateSort struct{}

func (EliminateSort) ID() string               { return "EliminateSort" }
func (EliminateSort) Category() xform.Category { return xform.LogicalTransformation }
func (EliminateSort) Pattern() *pattern.Pattern {
	return pattern.Match(KindSort, pattern.Any())
}
func (EliminateSort) Check(b *pattern.Binding) bool { return true }
func (EliminateSort) Transform(b *pattern.Binding) []xform.ProducedExpr {
	child := b.Kids[0].Expr
	return []xform.ProducedExpr{{
		Op:       child.Operator,
		Children: append([]opt.GroupID(nil), child.Children...),
	}}
}

// ScanToPhysicalScan implements every logical Scan as a sequential
// PhysicalScan.
type ScanToPhysicalScan struct{ Catalog *Catalog }

func (r ScanToPhysicalScan) ID() string               { return "ScanToPhysicalScan" }
func (r ScanToPhysicalScan) Category() xform.Category { return xform.PhysicalImplementation }
func (r ScanToPhysicalScan) Pattern() *pattern.Pattern { return pattern.Match(KindScan) }
func (r ScanToPhysicalScan) Check(b *pattern.Binding) bool { return true }
func (r ScanToPhysicalScan) Transform(b *pattern.Binding) []xform.ProducedExpr {
	s := b.Expr.Operator.(*Scan)
	return []xform.ProducedExpr{{Op: &PhysicalScan{Table: s.Table, RowCount: r.Catalog.rowCount(s.Table)}}}
}

// ScanToIndexScan implements a logical Scan as an IndexScan whenever the
// catalog records an index ordering for that table.
type ScanToIndexScan struct{ Catalog *Catalog }

func (r ScanToIndexScan) ID() string               { return "ScanToIndexScan" }
func (r ScanToIndexScan) Category() xform.Category { return xform.PhysicalImplementation }
func (r ScanToIndexScan) Pattern() *pattern.Pattern { return pattern.Match(KindScan) }
func (r ScanToIndexScan) Check(b *pattern.Binding) bool {
	s := b.Expr.Operator.(*Scan)
	_, ok := r.Catalog.IndexOrders[s.Table]
	return ok
}
func (r ScanToIndexScan) Transform(b *pattern.Binding) []xform.ProducedExpr {
	s := b.Expr.Operator.(*Scan)
	return []xform.ProducedExpr{{Op: &IndexScan{
		Table:    s.Table,
		RowCount: r.Catalog.rowCount(s.Table),
		Provides: r.Catalog.IndexOrders[s.Table],
	}}}
}

// SelectToPhysicalFilter implements every logical Select as a
// PhysicalFilter.
type SelectToPhysicalFilter struct{}

func (SelectToPhysicalFilter) ID() string               { return "SelectToPhysicalFilter" }
func (SelectToPhysicalFilter) Category() xform.Category { return xform.PhysicalImplementation }
func (SelectToPhysicalFilter) Pattern() *pattern.Pattern {
	return pattern.Match(KindSelect, pattern.Leaf())
}
func (SelectToPhysicalFilter) Check(b *pattern.Binding) bool { return true }
func (SelectToPhysicalFilter) Transform(b *pattern.Binding) []xform.ProducedExpr {
	s := b.Expr.Operator.(*Select)
	return []xform.ProducedExpr{{
		Op:       &PhysicalFilter{Predicate: s.Predicate, Selectivity: s.Selectivity},
		Children: []opt.GroupID{b.Kids[0].Group},
	}}
}

// JoinToNestedLoopJoin implements every logical InnerJoin as a
// NestedLoopJoin. It is always applicable, used as the fallback physical
// implementation when no join column ordering is available.
type JoinToNestedLoopJoin struct{}

func (JoinToNestedLoopJoin) ID() string               { return "JoinToNestedLoopJoin" }
func (JoinToNestedLoopJoin) Category() xform.Category { return xform.PhysicalImplementation }
func (JoinToNestedLoopJoin) Pattern() *pattern.Pattern {
	return pattern.Match(KindInnerJoin, pattern.Leaf(), pattern.Leaf())
}
func (JoinToNestedLoopJoin) Check(b *pattern.Binding) bool { return true }
func (JoinToNestedLoopJoin) Transform(b *pattern.Binding) []xform.ProducedExpr {
	j := b.Expr.Operator.(*InnerJoin)
	return []xform.ProducedExpr{{
		Op:       &NestedLoopJoin{Condition: j.Condition, Selectivity: j.Selectivity},
		Children: []opt.GroupID{b.Kids[0].Group, b.Kids[1].Group},
	}}
}

// JoinToHashJoin implements every logical InnerJoin as a HashJoin.
type JoinToHashJoin struct{}

func (JoinToHashJoin) ID() string               { return "JoinToHashJoin" }
func (JoinToHashJoin) Category() xform.Category { return xform.PhysicalImplementation }
func (JoinToHashJoin) Pattern() *pattern.Pattern {
	return pattern.Match(KindInnerJoin, pattern.Leaf(), pattern.Leaf())
}
func (JoinToHashJoin) Check(b *pattern.Binding) bool { return true }
func (JoinToHashJoin) Transform(b *pattern.Binding) []xform.ProducedExpr {
	j := b.Expr.Operator.(*InnerJoin)
	return []xform.ProducedExpr{{
		Op:       &HashJoin{Condition: j.Condition, Selectivity: j.Selectivity},
		Children: []opt.GroupID{b.Kids[0].Group, b.Kids[1].Group},
	}}
}

// JoinToMergeJoin implements a logical InnerJoin as a MergeJoin when
// JoinColumnsByCondition has an entry for this condition.
type JoinToMergeJoin struct {
	// JoinColumnsByCondition maps a join condition string to the ordering
	// a merge join on it would require/provide, e.g. "a.id=b.id" -> [+id].
	JoinColumnsByCondition map[string]props.Ordering
}

func (JoinToMergeJoin) ID() string               { return "JoinToMergeJoin" }
func (JoinToMergeJoin) Category() xform.Category { return xform.PhysicalImplementation }
func (JoinToMergeJoin) Pattern() *pattern.Pattern {
	return pattern.Match(KindInnerJoin, pattern.Leaf(), pattern.Leaf())
}
func (r JoinToMergeJoin) Check(b *pattern.Binding) bool {
	j := b.Expr.Operator.(*InnerJoin)
	_, ok := r.JoinColumnsByCondition[j.Condition]
	return ok
}
func (r JoinToMergeJoin) Transform(b *pattern.Binding) []xform.ProducedExpr {
	j := b.Expr.Operator.(*InnerJoin)
	return []xform.ProducedExpr{{
		Op: &MergeJoin{
			Condition:   j.Condition,
			Selectivity: j.Selectivity,
			JoinColumns: r.JoinColumnsByCondition[j.Condition],
		},
		Children: []opt.GroupID{b.Kids[0].Group, b.Kids[1].Group},
	}}
}

// ProjectToPhysicalProject implements every logical Project as a
// PhysicalProject.
type ProjectToPhysicalProject struct{}

func (ProjectToPhysicalProject) ID() string               { return "ProjectToPhysicalProject" }
func (ProjectToPhysicalProject) Category() xform.Category { return xform.PhysicalImplementation }
func (ProjectToPhysicalProject) Pattern() *pattern.Pattern {
	return pattern.Match(KindProject, pattern.Leaf())
}
func (ProjectToPhysicalProject) Check(b *pattern.Binding) bool { return true }
func (ProjectToPhysicalProject) Transform(b *pattern.Binding) []xform.ProducedExpr {
	p := b.Expr.Operator.(*Project)
	return []xform.ProducedExpr{{
		Op:       &PhysicalProject{Columns: p.Columns},
		Children: []opt.GroupID{b.Kids[0].Group},
	}}
}

// SortToPhysicalSort implements every logical Sort as a PhysicalSort
// enforcer wrapping its child.
type SortToPhysicalSort struct{}

func (SortToPhysicalSort) ID() string               { return "SortToPhysicalSort" }
func (SortToPhysicalSort) Category() xform.Category { return xform.PhysicalImplementation }
func (SortToPhysicalSort) Pattern() *pattern.Pattern {
	return pattern.Match(KindSort, pattern.Leaf())
}
func (SortToPhysicalSort) Check(b *pattern.Binding) bool { return true }
func (SortToPhysicalSort) Transform(b *pattern.Binding) []xform.ProducedExpr {
	s := b.Expr.Operator.(*Sort)
	return []xform.ProducedExpr{{
		Op:       &PhysicalSort{Ordering: s.Ordering},
		Children: []opt.GroupID{b.Kids[0].Group},
	}}
}

// EnforceSort wraps any logical group's eventual physical plan in a
// PhysicalSort providing Ordering, registered as an ordinary
// PhysicalImplementation rule rather than a special-cased pass in the
// search driver. Its child reference is the same group it was inserted
// into; optimization later resolves that self-reference under the
// child's own (unsorted) required property set, a different entry in
// that group's best-index than the one the enforcer itself is being
// costed under, so no infinite recursion results.
//
// It is gated only against wrapping an explicit logical Sort (which
// SortToPhysicalSort already implements using the query's own declared
// ordering). Every other case is left to cost-based selection: an
// IndexScan that already provides Ordering for free will always
// out-cost a PhysicalSort wrapping a PhysicalScan, so the enforcer is
// naturally elided from the winning plan without the rule itself
// needing to know what "already provided" means.
type EnforceSort struct {
	Ordering props.Ordering
}

func (EnforceSort) ID() string               { return "EnforceSort" }
func (EnforceSort) Category() xform.Category { return xform.PhysicalImplementation }
func (EnforceSort) Pattern() *pattern.Pattern { return pattern.Any() }
func (EnforceSort) Check(b *pattern.Binding) bool {
	return b.Expr.Operator.Kind() != KindSort
}
func (r EnforceSort) Transform(b *pattern.Binding) []xform.ProducedExpr {
	return []xform.ProducedExpr{{
		Op:       &PhysicalSort{Ordering: r.Ordering},
		Children: []opt.GroupID{b.Group},
	}}
}

// DefaultRules returns the rule set applied by the demo CLI, in
// deterministic declared order: logical transformations first, then
// every physical implementation.
func DefaultRules(catalog *Catalog, mergeJoinColumns map[string]props.Ordering, enforceOrdering props.Ordering) *xform.RuleSet {
	return xform.NewRuleSet(
		InnerJoinCommutativity{},
		EliminateSort{},
		ScanToPhysicalScan{Catalog: catalog},
		ScanToIndexScan{Catalog: catalog},
		SelectToPhysicalFilter{},
		JoinToNestedLoopJoin{},
		JoinToHashJoin{},
		JoinToMergeJoin{JoinColumnsByCondition: mergeJoinColumns},
		ProjectToPhysicalProject{},
		SortToPhysicalSort{},
		EnforceSort{Ordering: enforceOrdering},
	)
}
