package xform_test

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/demoops"
	"github.com/kamkernel/cascadeopt/opt/memo"
	"github.com/kamkernel/cascadeopt/opt/pattern"
	"github.com/kamkernel/cascadeopt/opt/props"
	"github.com/kamkernel/cascadeopt/opt/xform"
)

type node struct {
	op       opt.Operator
	children []memo.InputNode
}

func (n *node) Op() opt.Operator           { return n.op }
func (n *node) Children() []memo.InputNode { return n.children }

func scan(table string) memo.InputNode {
	return &node{op: &demoops.Scan{Table: table}}
}

func join(cond string, left, right memo.InputNode) memo.InputNode {
	return &node{op: &demoops.InnerJoin{Condition: cond, Selectivity: 0.1}, children: []memo.InputNode{left, right}}
}

// Inner-join commutativity with only a nested-loop implementation in
// play, so the only choice left to cost is which operand drives the
// nested loop.
func TestInnerJoinCommutativityExploresBothOrientations(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"big": 1_000_000, "small": 10}}
	rules := xform.NewRuleSet(
		demoops.InnerJoinCommutativity{},
		demoops.ScanToPhysicalScan{Catalog: catalog},
		demoops.JoinToNestedLoopJoin{},
	)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	query := join("big.x=small.y", scan("big"), scan("small"))
	tree, err := optimizer.Optimize(context.Background(), query, props.MinRequired)
	require.NoError(t, err)
	require.Equal(t, demoops.KindNestedLoopJoin, tree.Op.Kind())

	rootGroup, _, err := mem.Record(query)
	require.NoError(t, err)
	grp, err := mem.Group(rootGroup)
	require.NoError(t, err)

	logicalCount, physicalCount := 0, 0
	for _, e := range grp.Exprs() {
		if e.Operator.IsLogical() {
			logicalCount++
		} else {
			physicalCount++
		}
	}
	require.Equal(t, 2, logicalCount, "Join(A,B) and Join(B,A) are both retained logical expressions")
	require.Equal(t, 2, physicalCount, "NLJoin(A,B) and NLJoin(B,A) are both costed candidates")
}

// Memo dedup: Join(A, Join(A,B)) and Join(Join(A,B), A) both ingested
// into the same memo must converge to one GroupID once commutativity
// exploration runs (this also exercises the group-merge fixpoint in
// opt/memo).
func TestMemoDedupMergesConvergentRoots(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"a": 100, "b": 100}}
	rules := demoops.DefaultRules(catalog, nil, nil)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	ab := join("a=b", scan("a"), scan("b"))
	root1 := join("x=a", scan("a"), ab)
	root2 := join("x=a", ab, scan("a"))

	id1, _, err := mem.Record(root1)
	require.NoError(t, err)
	_, err = optimizer.Optimize(context.Background(), root1, props.MinRequired)
	require.NoError(t, err)

	id2, _, err := mem.Record(root2)
	require.NoError(t, err)
	_, err = optimizer.Optimize(context.Background(), root2, props.MinRequired)
	require.NoError(t, err)

	require.Equal(t, id1, id2, "Join(a, Join(a,b)) and Join(Join(a,b), a) must converge to the same group")
}

// Property propagation / enforcer elision: a Sort over an indexed
// table should let the IndexScan satisfy the
// required ordering directly, at strictly lower cost than inserting a
// PhysicalSort enforcer over a sequential scan.
func TestPropertyPropagationElidesEnforcerWhenIndexProvidesOrder(t *testing.T) {
	catalog := &demoops.Catalog{
		RowCounts:   map[string]float64{"t": 100000},
		IndexOrders: map[string]props.Ordering{"t": {{Col: "x"}}},
	}
	required := props.Set{Ordering: props.OrderingChoice{Columns: props.Ordering{{Col: "x"}}}}
	rules := demoops.DefaultRules(catalog, nil, required.Ordering.Columns)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	query := &node{op: &demoops.Sort{Ordering: props.Ordering{{Col: "x"}}}, children: []memo.InputNode{scan("t")}}
	tree, err := optimizer.Optimize(context.Background(), query, required)
	require.NoError(t, err)
	require.Equal(t, demoops.KindIndexScan, tree.Op.Kind(), "the indexed scan should win outright, eliding the PhysicalSort enforcer")
}

// Without a usable index, the enforcer must be chosen instead so the
// required ordering is still satisfied.
func TestPropertyPropagationInsertsEnforcerWithoutIndex(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"t": 1000}}
	required := props.Set{Ordering: props.OrderingChoice{Columns: props.Ordering{{Col: "x"}}}}
	rules := demoops.DefaultRules(catalog, nil, required.Ordering.Columns)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	query := &node{op: &demoops.Sort{Ordering: props.Ordering{{Col: "x"}}}, children: []memo.InputNode{scan("t")}}
	tree, err := optimizer.Optimize(context.Background(), query, required)
	require.NoError(t, err)
	require.Equal(t, demoops.KindPhysicalSort, tree.Op.Kind())
	require.Equal(t, demoops.KindPhysicalScan, tree.Children[0].Op.Kind())
}

// Requiring an ordering no physical operator in this catalog can ever
// provide must surface ErrNoPlan, not a panic or an empty tree.
func TestNoPlanWhenRequiredPropertiesAreUnsatisfiable(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"t": 10}}
	rules := demoops.DefaultRules(catalog, nil, nil)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	required := props.Set{Ordering: props.OrderingChoice{Columns: props.Ordering{{Col: "never_implemented_column"}}}}
	_, err := optimizer.Optimize(context.Background(), scan("t"), required)
	require.Error(t, err)
	require.True(t, errors.Is(err, opt.ErrNoPlan), "Optimize must surface ErrNoPlan, not a generic error")
}

// Two independent optimizer runs over identical input and identical
// rule order must produce structurally equal extracted trees with
// equal cost.
func TestDeterminism(t *testing.T) {
	build := func() (*xform.OperatorTree, error) {
		catalog := &demoops.Catalog{RowCounts: map[string]float64{"big": 5000, "small": 50}}
		rules := demoops.DefaultRules(catalog, nil, nil)
		mem := memo.New()
		optimizer := xform.NewOptimizer(mem, rules, xform.Config{})
		return optimizer.Optimize(context.Background(), join("big.x=small.y", scan("big"), scan("small")), props.MinRequired)
	}

	t1, err1 := build()
	require.NoError(t, err1)
	t2, err2 := build()
	require.NoError(t, err2)

	require.Equal(t, describe(t1), describe(t2))
}

func describe(t *xform.OperatorTree) string {
	s := t.Op.Kind().String()
	for _, c := range t.Children {
		s += "(" + describe(c) + ")"
	}
	return s
}

func TestOptimizeNilInputReturnsEmptyInput(t *testing.T) {
	catalog := &demoops.Catalog{}
	optimizer := xform.NewOptimizer(memo.New(), demoops.DefaultRules(catalog, nil, nil), xform.Config{})
	_, err := optimizer.Optimize(context.Background(), nil, props.MinRequired)
	require.True(t, errors.Is(err, opt.ErrEmptyInput))
}

func TestOptimizeHonorsCancellation(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"a": 10, "b": 10}}
	optimizer := xform.NewOptimizer(memo.New(), demoops.DefaultRules(catalog, nil, nil), xform.Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := optimizer.Optimize(ctx, join("a=b", scan("a"), scan("b")), props.MinRequired)
	require.True(t, errors.Is(err, opt.ErrCancelled))
}

// renameScan is a deliberately non-confluent logical rule: every firing
// produces a structurally new Scan, so memo dedup never reaches
// fixpoint and only the per-group application budget can stop it.
type renameScan struct{}

func (renameScan) ID() string               { return "RenameScan" }
func (renameScan) Category() xform.Category { return xform.LogicalTransformation }
func (renameScan) Pattern() *pattern.Pattern {
	return pattern.Match(demoops.KindScan)
}
func (renameScan) Check(b *pattern.Binding) bool { return true }
func (renameScan) Transform(b *pattern.Binding) []xform.ProducedExpr {
	s := b.Expr.Operator.(*demoops.Scan)
	return []xform.ProducedExpr{{Op: &demoops.Scan{Table: s.Table + "'"}}}
}

func TestIterationBudgetStopsNonConfluentRuleSet(t *testing.T) {
	rules := xform.NewRuleSet(renameScan{})
	optimizer := xform.NewOptimizer(memo.New(), rules, xform.Config{MaxRuleApplicationsPerGroup: 25})

	_, err := optimizer.Optimize(context.Background(), scan("t"), props.MinRequired)
	require.True(t, errors.Is(err, opt.ErrIterationBudgetExceeded))
}

// Alternate-plan enumeration: with both hash and nested-loop
// implementations available, the 0th plan is the cheap hash join, a
// later rank surfaces the nested loop, and asking past the candidate
// list is a NoPlan, not a panic.
func TestOptimizeNthRanksCostedAlternates(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"big": 1000, "small": 10}}
	rules := xform.NewRuleSet(
		demoops.InnerJoinCommutativity{},
		demoops.ScanToPhysicalScan{Catalog: catalog},
		demoops.JoinToNestedLoopJoin{},
		demoops.JoinToHashJoin{},
	)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{})

	query := join("big.x=small.y", scan("big"), scan("small"))
	rootGroup, _, err := mem.Record(query)
	require.NoError(t, err)

	best, err := optimizer.Optimize(context.Background(), query, props.MinRequired)
	require.NoError(t, err)
	require.Equal(t, demoops.KindHashJoin, best.Op.Kind())

	ctx := context.Background()
	nth0, err := optimizer.OptimizeNth(ctx, rootGroup, props.MinRequired, 0)
	require.NoError(t, err)
	require.Equal(t, demoops.KindHashJoin, nth0.Op.Kind())

	nth2, err := optimizer.OptimizeNth(ctx, rootGroup, props.MinRequired, 2)
	require.NoError(t, err)
	require.Equal(t, demoops.KindNestedLoopJoin, nth2.Op.Kind())

	_, err = optimizer.OptimizeNth(ctx, rootGroup, props.MinRequired, 100)
	require.True(t, errors.Is(err, opt.ErrNoPlan))
}

// treeNode adapts an already-extracted physical OperatorTree back into
// memo.InputNode form for the idempotence round trip below.
type treeNode struct {
	tree *xform.OperatorTree
}

func (n *treeNode) Op() opt.Operator { return n.tree.Op }
func (n *treeNode) Children() []memo.InputNode {
	out := make([]memo.InputNode, len(n.tree.Children))
	for i, c := range n.tree.Children {
		out[i] = &treeNode{tree: c}
	}
	return out
}

// Idempotence round trip: re-optimizing the extracted physical plan
// under the same required properties yields a plan of equal cost (the
// plan is already optimal; exploration and implementation find nothing
// to add to a purely physical tree).
func TestReoptimizingExtractedPlanKeepsCost(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"t": 1000}}
	required := props.Set{Ordering: props.OrderingChoice{Columns: props.Ordering{{Col: "x"}}}}
	query := &node{op: &demoops.Sort{Ordering: props.Ordering{{Col: "x"}}}, children: []memo.InputNode{scan("t")}}

	runOnce := func(input memo.InputNode) (*xform.OperatorTree, opt.Cost) {
		mem := memo.New()
		optimizer := xform.NewOptimizer(mem, demoops.DefaultRules(catalog, nil, required.Ordering.Columns), xform.Config{})
		tree, err := optimizer.Optimize(context.Background(), input, required)
		require.NoError(t, err)
		rootGroup, _, err := mem.Record(input)
		require.NoError(t, err)
		grp, err := mem.Group(rootGroup)
		require.NoError(t, err)
		binding, _, ok := grp.Best(required)
		require.True(t, ok)
		return tree, binding.Cost
	}

	tree1, cost1 := runOnce(query)
	tree2, cost2 := runOnce(&treeNode{tree: tree1})
	require.Equal(t, cost1, cost2)
	require.Equal(t, describe(tree1), describe(tree2))
}

// Termination under confluence:
// InnerJoinCommutativity is its own inverse (A<->B), so exploration must
// terminate via memo dedup rather than looping forever; the group's
// logical expression count is bounded by the closure size (two
// orientations), not by how many times the rule happens to fire.
func TestTerminationUnderConfluence(t *testing.T) {
	catalog := &demoops.Catalog{RowCounts: map[string]float64{"a": 10, "b": 10}}
	rules := demoops.DefaultRules(catalog, nil, nil)
	mem := memo.New()
	optimizer := xform.NewOptimizer(mem, rules, xform.Config{MaxRuleApplicationsPerGroup: 50})

	query := join("a=b", scan("a"), scan("b"))
	_, err := optimizer.Optimize(context.Background(), query, props.MinRequired)
	require.NoError(t, err, "a confluent rule set must not exhaust the iteration budget")

	rootGroup, _, err := mem.Record(query)
	require.NoError(t, err)
	grp, err := mem.Group(rootGroup)
	require.NoError(t, err)

	logicalCount := 0
	for _, e := range grp.Exprs() {
		if e.Operator.IsLogical() {
			logicalCount++
		}
	}
	require.Equal(t, 2, logicalCount, "A<->B commutativity closes over exactly two logical orientations")
}
