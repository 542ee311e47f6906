package memo

import (
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// Group is an equivalence class of group-expressions provably equivalent
// under relational algebra. It tracks the exploration/implementation
// state machine and, per required property set, the cheapest physical
// expression found so far.
type Group struct {
	id opt.GroupID

	// exprs holds every logically equivalent group-expression discovered
	// for this group so far, in insertion order. Iteration order here is
	// what makes pattern-binding enumeration deterministic.
	exprs []*Expr

	// explored is set once every logical-transformation rule has been
	// applied to every expression present at the time exploration
	// completed.
	explored bool

	// implemented is set once every physical-implementation rule has been
	// applied to every logical expression of the group.
	implemented bool

	// bestIndex holds, per required-property-set hash bucket, the set of
	// distinct required property sets seen so far and their winning
	// expression/cost/binding. A slice-per-bucket (rather than a single
	// entry) tolerates hash collisions between distinct Sets.
	bestIndex map[uint64][]bestEntry

	// candidateIndex retains every costed (expr, binding) pair seen for a
	// given required property set, not just the winner, so that alternate
	// (Nth-cheapest) plan enumeration can be served without re-running
	// search.
	candidateIndex map[uint64][]bestEntry

	// fullyOptimized marks, per required-property hash bucket, which
	// member expressions have already been optimized to completion for
	// that exact required set and will never be recosted: every
	// PropertyAlternative they offer has already been tried and folded
	// into bestIndex/candidateIndex.
	fullyOptimized map[uint64]map[*Expr]bool
}

type bestEntry struct {
	required props.Set
	expr     *Expr
	binding  RequiredBinding
}

// ID returns this group's identifier.
func (g *Group) ID() opt.GroupID { return g.id }

// Exprs returns every expression in the group, in insertion order. The
// returned slice must not be mutated by callers; the pattern/binding
// iterator and rule engine snapshot it before iterating, since rule
// application grows the group mid-pass.
func (g *Group) Exprs() []*Expr { return g.exprs }

// Explored reports whether logical exploration has reached fixpoint for
// this group.
func (g *Group) Explored() bool { return g.explored }

// MarkExplored sets the explored flag. Once set it is never cleared
// during one optimization.
func (g *Group) MarkExplored() { g.explored = true }

// MarkImplemented sets the implemented flag. Once set it is never
// cleared during one optimization.
func (g *Group) MarkImplemented() { g.implemented = true }

// Implemented reports whether physical implementation has run for this
// group.
func (g *Group) Implemented() bool { return g.implemented }

// Best looks up the cheapest known expression satisfying required. It
// returns (nil entry, false) if optimize_group has not yet produced a
// binding for this exact required property set.
func (g *Group) Best(required props.Set) (RequiredBinding, *Expr, bool) {
	for _, be := range g.bestIndex[required.Hash()] {
		if be.required.Equals(required) {
			return be.binding, be.expr, true
		}
	}
	return RequiredBinding{}, nil, false
}

// ratchet updates best[required] to (expr, binding) if no entry exists
// yet, or if binding.Cost is strictly lower than the incumbent's cost.
// It returns true if the entry changed. Strict comparison keeps ties
// resolved by insertion order, which keeps extraction deterministic.
func (g *Group) ratchet(required props.Set, expr *Expr, binding RequiredBinding) bool {
	if g.bestIndex == nil {
		g.bestIndex = make(map[uint64][]bestEntry)
	}
	h := required.Hash()
	bucket := g.bestIndex[h]
	for i, be := range bucket {
		if be.required.Equals(required) {
			if binding.Cost.Less(be.binding.Cost) {
				bucket[i] = bestEntry{required: required, expr: expr, binding: binding}
				return true
			}
			return false
		}
	}
	g.bestIndex[h] = append(bucket, bestEntry{required: required, expr: expr, binding: binding})
	return true
}

// UpdateBest is the exported form of ratchet, called by the optimizer.
func (g *Group) UpdateBest(required props.Set, expr *Expr, binding RequiredBinding) bool {
	return g.ratchet(required, expr, binding)
}

// AddCandidate records one costed (expr, binding) pair for required,
// independent of whether it becomes the new best. Duplicate (expr,
// binding.Output) pairs for the same required set are not re-added.
func (g *Group) AddCandidate(required props.Set, expr *Expr, binding RequiredBinding) {
	if g.candidateIndex == nil {
		g.candidateIndex = make(map[uint64][]bestEntry)
	}
	h := required.Hash()
	for _, be := range g.candidateIndex[h] {
		if be.required.Equals(required) && be.expr == expr && be.binding.Output.Equals(binding.Output) {
			return
		}
	}
	g.candidateIndex[h] = append(g.candidateIndex[h], bestEntry{required: required, expr: expr, binding: binding})
}

// Candidates returns every candidate recorded for required, in
// insertion order (callers sort by cost themselves as needed).
func (g *Group) Candidates(required props.Set) []struct {
	Expr    *Expr
	Binding RequiredBinding
} {
	h := required.Hash()
	var out []struct {
		Expr    *Expr
		Binding RequiredBinding
	}
	for _, be := range g.candidateIndex[h] {
		if be.required.Equals(required) {
			out = append(out, struct {
				Expr    *Expr
				Binding RequiredBinding
			}{be.expr, be.binding})
		}
	}
	return out
}

// FullyOptimized reports whether optimize_expression has already run to
// completion for (expr, required), so the optimizer can skip recosting
// an expression whose children cannot possibly improve further within
// this optimization call.
func (g *Group) FullyOptimized(required props.Set, expr *Expr) bool {
	bucket := g.fullyOptimized[required.Hash()]
	if bucket == nil {
		return false
	}
	return bucket[expr]
}

// MarkFullyOptimized records that (expr, required) will never be
// recosted again during this optimization call.
func (g *Group) MarkFullyOptimized(required props.Set, expr *Expr) {
	if g.fullyOptimized == nil {
		g.fullyOptimized = make(map[uint64]map[*Expr]bool)
	}
	h := required.Hash()
	bucket := g.fullyOptimized[h]
	if bucket == nil {
		bucket = make(map[*Expr]bool)
		g.fullyOptimized[h] = bucket
	}
	bucket[expr] = true
}

// forEachBest iterates over every (required, entry) pair recorded for
// this group. Used by group-merge to union two groups' best bindings.
func (g *Group) forEachBest(fn func(required props.Set, expr *Expr, binding RequiredBinding)) {
	for _, bucket := range g.bestIndex {
		for _, be := range bucket {
			fn(be.required, be.expr, be.binding)
		}
	}
}

// forEachCandidate iterates over every recorded alternate-plan candidate
// in this group. Used by group-merge to union two groups' candidate
// lists.
func (g *Group) forEachCandidate(fn func(required props.Set, expr *Expr, binding RequiredBinding)) {
	for _, bucket := range g.candidateIndex {
		for _, be := range bucket {
			fn(be.required, be.expr, be.binding)
		}
	}
}

// addExprIfNew appends e to the group unless an equal expression (by
// Expr.equalTo) is already present, and returns whether it was added.
func (g *Group) addExprIfNew(e *Expr) bool {
	for _, existing := range g.exprs {
		if existing.equalTo(e) {
			return false
		}
	}
	e.group = g.id
	g.exprs = append(g.exprs, e)
	return true
}
