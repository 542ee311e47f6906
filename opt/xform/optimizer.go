package xform

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/memo"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// OperatorTree is the materialized physical plan handed to the
// executor: a physical operator with concrete child operator trees. The
// optimizer retains nothing once this is returned.
type OperatorTree struct {
	Op       opt.Operator
	Children []*OperatorTree
}

// Optimizer is the search driver: it owns one Memo exclusively for the
// duration of one optimization call and runs explore, implement,
// optimize, and extract over it.
type Optimizer struct {
	mem      *memo.Memo
	explorer *Explorer
	rules    *RuleSet
	config   Config
}

// NewOptimizer returns an Optimizer that will search mem using rules,
// configured by config. The memo is an explicit value with the lifetime
// of one query; nothing is held in thread-local or global state.
func NewOptimizer(mem *memo.Memo, rules *RuleSet, config Config) *Optimizer {
	return &Optimizer{mem: mem, explorer: NewExplorer(mem, rules, config), rules: rules, config: config}
}

// Memo exposes the underlying memo, mostly for tests and debug dumps.
func (o *Optimizer) Memo() *memo.Memo { return o.mem }

// Optimize is the top-level driver: ingest, explore the root group to
// logical fixpoint, implement it into physical alternatives, cost those
// alternatives under required, and extract the winning tree.
func (o *Optimizer) Optimize(ctx context.Context, root memo.InputNode, required props.Set) (*OperatorTree, error) {
	if root == nil {
		return nil, opt.ErrEmptyInput
	}
	rootGroup, _, err := o.mem.Record(root)
	if err != nil {
		return nil, err
	}
	if err := o.explorer.ExploreGroup(ctx, rootGroup); err != nil {
		return nil, err
	}
	if err := o.explorer.ImplementGroup(ctx, rootGroup); err != nil {
		return nil, err
	}
	if err := o.OptimizeGroup(ctx, rootGroup, required); err != nil {
		return nil, err
	}
	return o.ChooseBest(ctx, rootGroup, required)
}

// visitKey identifies one (group, required) pair along the current
// optimization recursion path, so a self-referencing enforcer (a sort
// whose child is its own group) can be detected and treated as
// infeasible instead of recursing forever: an expression whose input
// demand collapses back to the same (group, required) it is itself
// being costed under can never be resolved by descending into itself.
type visitKey struct {
	group opt.GroupID
	hash  uint64
}

// OptimizeGroup costs a group under required: if best[required] is
// already known, it's a no-op; otherwise every physical expression in
// the group is costed under required.
func (o *Optimizer) OptimizeGroup(ctx context.Context, groupID opt.GroupID, required props.Set) error {
	return o.optimizeGroup(ctx, groupID, required, make(map[visitKey]bool))
}

func (o *Optimizer) optimizeGroup(ctx context.Context, groupID opt.GroupID, required props.Set, visiting map[visitKey]bool) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	// Normalize through merge forwarding so a pre-merge id and its
	// survivor share one visitKey.
	groupID = o.mem.Resolve(groupID)
	grp, err := o.mem.Group(groupID)
	if err != nil {
		return err
	}
	if _, _, ok := grp.Best(required); ok {
		return nil
	}
	key := visitKey{group: groupID, hash: required.Hash()}
	if visiting[key] {
		return nil
	}
	visiting[key] = true
	defer delete(visiting, key)

	for _, e := range grp.Exprs() {
		if e.Operator.IsPhysical() {
			if err := o.optimizeExpression(ctx, e, required, visiting); err != nil {
				return err
			}
		}
	}
	return nil
}

// OptimizeExpression costs one physical expression under required.
// Every (output, input[]) alternative it offers for
// required is tried; each child is recursively optimized under the
// alternative's required input properties, and the alternative becomes
// the new group best if it subsumes required and is strictly cheaper
// than the incumbent.
func (o *Optimizer) OptimizeExpression(ctx context.Context, e *memo.Expr, required props.Set) error {
	return o.optimizeExpression(ctx, e, required, make(map[visitKey]bool))
}

func (o *Optimizer) optimizeExpression(ctx context.Context, e *memo.Expr, required props.Set, visiting map[visitKey]bool) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	physOp, ok := e.Operator.(opt.PhysicalOperator)
	if !ok {
		return errors.Mark(errors.AssertionFailedf("xform: optimize_expression called on non-physical operator %s", e.Operator.Kind()), opt.ErrInvariantViolated)
	}

	grp, err := o.mem.Group(e.Group())
	if err != nil {
		return err
	}

	// Once every PropertyAlternative e offers for this exact required set
	// has been tried and folded into bestIndex/candidateIndex, e can never
	// improve further for required: its children are already each at their
	// own group-wide optimum, so recosting would recompute the same
	// numbers.
	if grp.FullyOptimized(required, e) {
		return nil
	}
	defer grp.MarkFullyOptimized(required, e)

	for _, alt := range physOp.PropertyAlternatives(required) {
		if len(alt.Input) != len(e.Children) {
			return errors.Mark(errors.AssertionFailedf(
				"xform: operator %s offered %d input property sets for %d children",
				e.Operator.Kind(), len(alt.Input), len(e.Children)), opt.ErrInvariantViolated)
		}

		childStats := make([]opt.Stats, len(e.Children))
		childCosts := make([]opt.Cost, len(e.Children))
		feasible := true
		for i, childID := range e.Children {
			if err := o.optimizeGroup(ctx, childID, alt.Input[i], visiting); err != nil {
				return err
			}
			childGrp, err := o.mem.Group(childID)
			if err != nil {
				return err
			}
			binding, _, ok := childGrp.Best(alt.Input[i])
			if !ok {
				// Missing statistics or cost from a child is fatal to this
				// pair but not to optimization as a whole; skip it. An
				// enforcer rule registered during implementation is how a
				// gap like this normally gets closed before we ever reach
				// optimize.
				feasible = false
				break
			}
			childStats[i] = binding.Stats
			childCosts[i] = binding.Cost
		}
		if !feasible {
			continue
		}

		// DeriveStatsAndCost returns this operator's own incremental
		// cost; the expression's total cost adds every child's
		// already-optimal cost on top, which is what keeps the cost
		// function monotone in child costs.
		stats, ownCost := physOp.DeriveStatsAndCost(alt, childStats, childCosts)
		cost := ownCost
		for _, cc := range childCosts {
			cost = cost.Add(cc)
		}

		childInputs := append([]props.Set(nil), alt.Input...)
		binding := memo.RequiredBinding{
			Required:    required,
			Output:      alt.Output,
			ChildInputs: childInputs,
			Cost:        cost,
			Stats:       stats,
		}
		grp.AddCandidate(required, e, binding)

		if alt.Output.Subsumes(required) {
			if grp.UpdateBest(required, e, binding) {
				o.config.log().Debug("new best",
					zap.Uint32("group", uint32(e.Group())), zap.String("required", required.String()),
					zap.Float64("cost", float64(cost)))
			}
		}
	}
	return nil
}

// ChooseBest extracts the winning plan: walk best[required] bindings
// top-down, recursively extracting each child under the input
// properties recorded on the winning expression.
func (o *Optimizer) ChooseBest(ctx context.Context, groupID opt.GroupID, required props.Set) (*OperatorTree, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	grp, err := o.mem.Group(groupID)
	if err != nil {
		return nil, err
	}
	binding, expr, ok := grp.Best(required)
	if !ok {
		return nil, errors.Mark(errors.Newf("xform: no physical plan for group %d satisfying %s", groupID, required), opt.ErrNoPlan)
	}
	children := make([]*OperatorTree, len(expr.Children))
	for i, childID := range expr.Children {
		child, err := o.ChooseBest(ctx, childID, binding.ChildInputs[i])
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &OperatorTree{Op: expr.Operator, Children: children}, nil
}

// candidatePlan pairs an extracted alternate-plan candidate with its
// cost, for OptimizeNth's sort.
type candidatePlan struct {
	expr    *memo.Expr
	binding memo.RequiredBinding
}

// OptimizeNth returns the (0-indexed) nth-cheapest physical plan for
// groupID under required, drawn from every candidate
// OptimizeExpression costed along the way; no new search is run. Only
// the requested group's own alternates are re-ranked; every child
// subtree still uses its own group-wide best plan. OptimizeGroup must
// already have been run for (groupID, required), typically via a prior
// call to Optimize.
func (o *Optimizer) OptimizeNth(ctx context.Context, groupID opt.GroupID, required props.Set, n int) (*OperatorTree, error) {
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}
	grp, err := o.mem.Group(groupID)
	if err != nil {
		return nil, err
	}
	raw := grp.Candidates(required)
	cands := make([]candidatePlan, 0, len(raw))
	for _, c := range raw {
		if c.Binding.Output.Subsumes(required) {
			cands = append(cands, candidatePlan{expr: c.Expr, binding: c.Binding})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].binding.Cost.Less(cands[j].binding.Cost)
	})
	if n < 0 || n >= len(cands) {
		return nil, errors.Mark(errors.Newf("xform: no %d-th cheapest plan for group %d satisfying %s", n, groupID, required), opt.ErrNoPlan)
	}
	chosen := cands[n]
	children := make([]*OperatorTree, len(chosen.expr.Children))
	for i, childID := range chosen.expr.Children {
		child, err := o.ChooseBest(ctx, childID, chosen.binding.ChildInputs[i])
		if err != nil {
			return nil, err
		}
		children[i] = child
	}
	return &OperatorTree{Op: chosen.expr.Operator, Children: children}, nil
}
