package pattern

import (
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/memo"
)

// Binding is one materialized embedding of a pattern into the memo: for
// a KindMatch pattern node, the specific Expr it bound to plus one
// Binding per child; for a KindLeaf node, just the GroupID placeholder.
type Binding struct {
	IsLeaf bool
	Group  opt.GroupID
	Expr   *memo.Expr
	Kids   []*Binding
}

// Iterator enumerates every Binding of a pattern against a starting
// expression, lazily: each call to Next() advances to the next
// combination without materializing the full Cartesian product up
// front, so a rule's check() can reject a binding and move on without
// paying for combinations it never inspects.
//
// Enumeration order is deterministic: insertion order of expressions
// within each group.
type Iterator interface {
	// Valid reports whether the iterator currently sits on a binding
	// (false once enumeration is exhausted, or immediately if the pattern
	// could never match the starting expression).
	Valid() bool
	// Value returns the current binding. Only meaningful while Valid.
	Value() *Binding
	// Next advances to the next combination. It returns the new Valid().
	Next() bool
}

// Bind returns an Iterator over every embedding of pattern rooted at
// expr. mem is used to look up each child group's expression list
// on demand as deeper pattern nodes are matched.
func Bind(pat *Pattern, expr *memo.Expr, mem *memo.Memo) Iterator {
	return matchFactory(pat, expr, mem)()
}

// --- single-shot iterator: exactly one binding, no further state ---

type singleIter struct {
	value *Binding
	done  bool
}

func (it *singleIter) Valid() bool   { return !it.done }
func (it *singleIter) Value() *Binding { return it.value }
func (it *singleIter) Next() bool {
	it.done = true
	return false
}

// --- empty iterator: pattern could never match ---

type emptyIter struct{}

func (emptyIter) Valid() bool     { return false }
func (emptyIter) Value() *Binding { return nil }
func (emptyIter) Next() bool      { return false }

// --- matchFactory: builds a fresh Iterator for one (pattern, expr) pair ---

// factory is a thunk that produces a brand-new Iterator starting at the
// first combination. Child iterators are rebuilt from their factory
// (rather than "reset") each time the Cartesian combinator needs to
// restart them.
type factory func() Iterator

func matchFactory(pat *Pattern, expr *memo.Expr, mem *memo.Memo) factory {
	if pat.Kind() == KindLeaf {
		// A leaf bound directly to an expression (rather than one of its
		// children) still only yields the owning group as a placeholder.
		return func() Iterator {
			return &singleIter{value: &Binding{IsLeaf: true, Group: expr.Group()}}
		}
	}
	if pat.Kind() == KindAny {
		return func() Iterator {
			return &singleIter{value: &Binding{Expr: expr, Group: expr.Group()}}
		}
	}
	if pat.OpKind() != expr.Operator.Kind() || len(pat.Children()) != len(expr.Children) {
		return func() Iterator { return emptyIter{} }
	}

	subpatterns := pat.Children()
	if len(subpatterns) == 0 {
		return func() Iterator {
			return &singleIter{value: &Binding{Expr: expr, Group: expr.Group()}}
		}
	}

	childFactories := make([]factory, len(subpatterns))
	for i, sub := range subpatterns {
		childFactories[i] = groupFactory(sub, expr.Children[i], mem)
	}
	return func() Iterator {
		return newCartesian(childFactories, expr)
	}
}

// groupFactory builds a factory that enumerates bindings of pattern
// against group groupID: a single placeholder for a leaf subpattern, or
// one binding per matching expression currently in the group for a
// KindMatch subpattern.
func groupFactory(pat *Pattern, groupID opt.GroupID, mem *memo.Memo) factory {
	if pat.Kind() == KindLeaf {
		return func() Iterator {
			return &singleIter{value: &Binding{IsLeaf: true, Group: groupID}}
		}
	}
	return func() Iterator {
		grp, err := mem.Group(groupID)
		if err != nil {
			return emptyIter{}
		}
		// Snapshot the expression list at iterator-construction time: new
		// expressions a rule adds mid-pass are explored by the recursive
		// call already issued on them, not retroactively folded into this
		// enumeration.
		exprs := grp.Exprs()
		return newUnion(pat, exprs, mem)
	}
}

// --- union iterator: concatenates one sub-iterator per candidate expr ---

type unionIter struct {
	pat   *Pattern
	exprs []*memo.Expr
	mem   *memo.Memo
	idx   int
	cur   Iterator
}

func newUnion(pat *Pattern, exprs []*memo.Expr, mem *memo.Memo) Iterator {
	u := &unionIter{pat: pat, exprs: exprs, mem: mem, idx: -1}
	u.advance()
	if u.cur == nil {
		return emptyIter{}
	}
	return u
}

// advance moves idx/cur forward until it finds a candidate expression
// whose sub-iterator is valid, or runs out of candidates.
func (u *unionIter) advance() {
	for {
		u.idx++
		if u.idx >= len(u.exprs) {
			u.cur = nil
			return
		}
		it := matchFactory(u.pat, u.exprs[u.idx], u.mem)()
		if it.Valid() {
			u.cur = it
			return
		}
	}
}

func (u *unionIter) Valid() bool     { return u.cur != nil }
func (u *unionIter) Value() *Binding { return u.cur.Value() }
func (u *unionIter) Next() bool {
	if u.cur == nil {
		return false
	}
	if u.cur.Next() {
		return true
	}
	u.advance()
	return u.cur != nil
}

// --- cartesian combinator: product across per-child iterators ---

type cartesianIter struct {
	factories []factory
	iters     []Iterator
	expr      *memo.Expr
	done      bool
}

func newCartesian(factories []factory, expr *memo.Expr) Iterator {
	c := &cartesianIter{factories: factories, iters: make([]Iterator, len(factories)), expr: expr}
	for i, f := range factories {
		c.iters[i] = f()
		if !c.iters[i].Valid() {
			c.done = true
		}
	}
	return c
}

func (c *cartesianIter) Valid() bool { return !c.done }

func (c *cartesianIter) Value() *Binding {
	kids := make([]*Binding, len(c.iters))
	for i, it := range c.iters {
		kids[i] = it.Value()
	}
	return &Binding{Expr: c.expr, Group: c.expr.Group(), Kids: kids}
}

// Next implements the standard mixed-radix odometer: try to advance the
// rightmost position; if it is exhausted, rebuild it from its factory
// (a fresh pass from the beginning) and carry the increment leftward.
func (c *cartesianIter) Next() bool {
	if c.done {
		return false
	}
	for i := len(c.iters) - 1; i >= 0; i-- {
		if c.iters[i].Next() {
			return true
		}
		c.iters[i] = c.factories[i]()
		if !c.iters[i].Valid() {
			c.done = true
			return false
		}
		// Position i was reset to its first combination; continue the loop
		// to carry the increment into position i-1 (or, if i was already
		// 0, fall out of the loop below: the whole product is exhausted).
	}
	c.done = true
	return false
}
