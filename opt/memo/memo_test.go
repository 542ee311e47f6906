package memo_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/memo"
)

const (
	kindLeaf opt.OperatorKind = iota + 1
	kindPair
)

func init() {
	opt.RegisterKind(kindLeaf, "test-leaf", true)
	opt.RegisterKind(kindPair, "test-pair", true)
}

// leafOp is a zero-arity operator parameterized only by a label, used to
// exercise canonicalization without pulling in opt/demoops.
type leafOp struct{ label string }

func (l *leafOp) Kind() opt.OperatorKind { return kindLeaf }
func (l *leafOp) ChildCount() int        { return 0 }
func (l *leafOp) IsLogical() bool        { return true }
func (l *leafOp) IsPhysical() bool       { return false }
func (l *leafOp) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*leafOp)
	return ok && o.label == l.label
}
func (l *leafOp) StructuralHash() uint64 {
	var h uint64 = 1469598103
	for i := 0; i < len(l.label); i++ {
		h = h*31 + uint64(l.label[i])
	}
	return h
}

// pairOp is a binary operator with no parameters of its own, so two
// pairOp expressions are equal exactly when their children are equal.
type pairOp struct{}

func (p *pairOp) Kind() opt.OperatorKind                    { return kindPair }
func (p *pairOp) ChildCount() int                            { return 2 }
func (p *pairOp) IsLogical() bool                            { return true }
func (p *pairOp) IsPhysical() bool                           { return false }
func (p *pairOp) StructuralEq(other opt.Operator) bool       { _, ok := other.(*pairOp); return ok }
func (p *pairOp) StructuralHash() uint64                     { return 7 }

func TestInsertDedupesEqualExpressions(t *testing.T) {
	m := memo.New()
	a, _, isNewA, err := m.Insert(&leafOp{label: "a"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	require.True(t, isNewA)

	aAgain, _, isNewAAgain, err := m.Insert(&leafOp{label: "a"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	require.False(t, isNewAAgain)
	require.Equal(t, a, aAgain)

	b, _, isNewB, err := m.Insert(&leafOp{label: "b"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	require.True(t, isNewB)
	require.NotEqual(t, a, b)
}

func TestInsertWithTargetMergesGroupsOnCollision(t *testing.T) {
	m := memo.New()
	a, _, _, err := m.Insert(&leafOp{label: "a"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	b, _, _, err := m.Insert(&leafOp{label: "b"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)

	pairAB, _, _, err := m.Insert(&pairOp{}, []opt.GroupID{a, b}, opt.UndefinedGroup)
	require.NoError(t, err)

	// A second, logically distinct group happens to converge (as a
	// commutativity rule cascading through the memo would): inserting the
	// same (pairOp, [a,b]) expression again but targeting a fresh group
	// forces a merge, and both group ids must resolve to one survivor.
	fresh, _, _, err := m.Insert(&leafOp{label: "unrelated"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	survivor, _, isNew, err := m.Insert(&pairOp{}, []opt.GroupID{a, b}, fresh)
	require.NoError(t, err)
	require.False(t, isNew)
	require.NotEqual(t, opt.UndefinedGroup, survivor)

	grp, err := m.Group(survivor)
	require.NoError(t, err)
	require.Contains(t, []opt.GroupID{pairAB, fresh}, grp.ID())
}

func TestMergedGroupIDKeepsResolving(t *testing.T) {
	m := memo.New()
	a, _, _, err := m.Insert(&leafOp{label: "a"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	b, _, _, err := m.Insert(&leafOp{label: "b"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	pairAB, _, _, err := m.Insert(&pairOp{}, []opt.GroupID{a, b}, opt.UndefinedGroup)
	require.NoError(t, err)

	fresh, _, _, err := m.Insert(&leafOp{label: "held by the caller"}, nil, opt.UndefinedGroup)
	require.NoError(t, err)
	survivor, _, _, err := m.Insert(&pairOp{}, []opt.GroupID{a, b}, fresh)
	require.NoError(t, err)

	// The caller still holds the pre-merge ids; both must forward to the
	// survivor so a driver that recorded its root before exploration keeps
	// a working handle afterward.
	require.Equal(t, survivor, m.Resolve(fresh))
	require.Equal(t, survivor, m.Resolve(pairAB))
	for _, id := range []opt.GroupID{fresh, pairAB, survivor} {
		grp, err := m.Group(id)
		require.NoError(t, err)
		require.Equal(t, survivor, grp.ID())
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	m := memo.New()
	leaf := &testNode{op: &leafOp{label: "x"}}
	root1, _, err := m.Record(leaf)
	require.NoError(t, err)
	root2, _, err := m.Record(leaf)
	require.NoError(t, err)
	require.Equal(t, root1, root2)
}

func TestGroupLookupFailsForUnknownID(t *testing.T) {
	m := memo.New()
	_, err := m.Group(opt.GroupID(9999))
	require.Error(t, err)
}

// testNode is a minimal memo.InputNode for Record tests.
type testNode struct {
	op       opt.Operator
	children []memo.InputNode
}

func (n *testNode) Op() opt.Operator           { return n.op }
func (n *testNode) Children() []memo.InputNode { return n.children }
