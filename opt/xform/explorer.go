package xform

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/memo"
	"github.com/kamkernel/cascadeopt/opt/pattern"
)

// budget tracks rule-application counts per group during one
// exploration or implementation pass, guarding against a pathological
// or non-confluent rule set that would otherwise grow a group forever.
type budget struct {
	limit int
	used  map[opt.GroupID]int
}

func newBudget(limit int) *budget {
	return &budget{limit: limit, used: make(map[opt.GroupID]int)}
}

func (b *budget) charge(g opt.GroupID) error {
	b.used[g]++
	if b.used[g] > b.limit {
		return errors.Mark(errors.Newf("xform: rule application budget exceeded for group %d", g), opt.ErrIterationBudgetExceeded)
	}
	return nil
}

func checkCancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.Mark(errors.Wrap(err, "xform: optimization cancelled"), opt.ErrCancelled)
	}
	return nil
}

// Explorer drives the explore and implement phases over a memo. It
// holds no state of its own beyond configuration; all mutable search
// state lives in the memo (groups/expressions) or in the per-pass
// passState below.
type Explorer struct {
	mem    *memo.Memo
	rules  *RuleSet
	config Config
}

// NewExplorer returns an Explorer operating over mem with the given rule
// set and configuration.
func NewExplorer(mem *memo.Memo, rules *RuleSet, config Config) *Explorer {
	return &Explorer{mem: mem, rules: rules, config: config}
}

// passState guards one exploration or implementation pass against
// re-entering a group whose own pass is still on the call stack. A
// group can legitimately become its own child mid-pass (a sort folded
// into its input's group leaves a self-referential expression behind),
// and the explored/implemented flags are only set at the *end* of a
// pass, so they cannot serve as the recursion guard themselves. Keyed
// by the Group object rather than its id: ids get forwarded by merges,
// the object survives them.
type passState struct {
	inProgress map[*memo.Group]bool
	budget     *budget
}

func newPassState(limit int) *passState {
	return &passState{inProgress: make(map[*memo.Group]bool), budget: newBudget(limit)}
}

// ExploreGroup applies every logical-transformation rule to every
// expression in g, recursively, to fixpoint, then recurses into child
// groups not yet explored.
func (ex *Explorer) ExploreGroup(ctx context.Context, groupID opt.GroupID) error {
	return ex.exploreGroup(ctx, groupID, newPassState(ex.config.maxRuleApplications()))
}

func (ex *Explorer) exploreGroup(ctx context.Context, groupID opt.GroupID, ps *passState) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	grp, err := ex.mem.Group(groupID)
	if err != nil {
		return err
	}
	if grp.Explored() || ps.inProgress[grp] {
		return nil
	}
	ps.inProgress[grp] = true
	defer delete(ps.inProgress, grp)
	// Snapshot before iterating: rules grow the group while it's being
	// walked, and the recursive call already issued on each new
	// expression explores it; the current pass must not double-visit it.
	for _, e := range grp.Exprs() {
		if e.Operator.IsLogical() {
			if err := ex.exploreExpression(ctx, e, ps); err != nil {
				return err
			}
		}
	}
	grp.MarkExplored()
	return nil
}

func (ex *Explorer) exploreExpression(ctx context.Context, e *memo.Expr, ps *passState) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	for _, rule := range ex.rules.ForCategory(LogicalTransformation) {
		if err := ex.applyAndExplore(ctx, rule, e, ps); err != nil {
			return err
		}
	}
	for _, child := range e.Children {
		childGrp, err := ex.mem.Group(child)
		if err != nil {
			return err
		}
		if !childGrp.Explored() {
			if err := ex.exploreGroup(ctx, child, ps); err != nil {
				return err
			}
		}
	}
	return nil
}

// applyAndExplore applies one logical rule to one expression,
// immediately and recursively exploring every newly produced expression
// before this rule's loop moves on, required so an interleaved match
// (one rule enabling another) is not missed.
func (ex *Explorer) applyAndExplore(ctx context.Context, rule Rule, e *memo.Expr, ps *passState) error {
	it := pattern.Bind(rule.Pattern(), e, ex.mem)
	for it.Valid() {
		binding := it.Value()
		if rule.Check(binding) {
			for _, produced := range rule.Transform(binding) {
				newGroupID, newExpr, isNew, err := ex.mem.Insert(produced.Op, produced.Children, e.Group())
				if err != nil {
					return err
				}
				ex.config.log().Debug("rule fired",
					zap.String("rule", rule.ID()), zap.Uint32("group", uint32(e.Group())), zap.Bool("new", isNew))
				if isNew {
					if err := ps.budget.charge(newGroupID); err != nil {
						return err
					}
					if err := ex.exploreExpression(ctx, newExpr, ps); err != nil {
						return err
					}
				}
			}
		}
		if !it.Next() {
			break
		}
	}
	return nil
}

// ImplementGroup applies every physical-implementation rule to every
// logical expression of g, recursing into child groups not yet
// implemented.
func (ex *Explorer) ImplementGroup(ctx context.Context, groupID opt.GroupID) error {
	return ex.implementGroup(ctx, groupID, newPassState(ex.config.maxRuleApplications()))
}

func (ex *Explorer) implementGroup(ctx context.Context, groupID opt.GroupID, ps *passState) error {
	if err := checkCancelled(ctx); err != nil {
		return err
	}
	grp, err := ex.mem.Group(groupID)
	if err != nil {
		return err
	}
	if grp.Implemented() || ps.inProgress[grp] {
		return nil
	}
	ps.inProgress[grp] = true
	defer delete(ps.inProgress, grp)
	for _, e := range grp.Exprs() {
		if !e.Operator.IsLogical() {
			continue
		}
		for _, rule := range ex.rules.ForCategory(PhysicalImplementation) {
			if err := ex.applyImplementation(rule, e, ps.budget); err != nil {
				return err
			}
		}
	}
	for _, e := range grp.Exprs() {
		for _, child := range e.Children {
			childGrp, err := ex.mem.Group(child)
			if err != nil {
				return err
			}
			if !childGrp.Implemented() {
				if err := ex.implementGroup(ctx, child, ps); err != nil {
					return err
				}
			}
		}
	}
	grp.MarkImplemented()
	return nil
}

func (ex *Explorer) applyImplementation(rule Rule, e *memo.Expr, b *budget) error {
	it := pattern.Bind(rule.Pattern(), e, ex.mem)
	for it.Valid() {
		binding := it.Value()
		if rule.Check(binding) {
			for _, produced := range rule.Transform(binding) {
				newGroupID, _, isNew, err := ex.mem.Insert(produced.Op, produced.Children, e.Group())
				if err != nil {
					return err
				}
				ex.config.log().Debug("implementation rule fired",
					zap.String("rule", rule.ID()), zap.Uint32("group", uint32(e.Group())), zap.Bool("new", isNew))
				if isNew {
					if err := b.charge(newGroupID); err != nil {
						return err
					}
				}
				// Physical expressions are leaves of the implement pass:
				// unlike logical transforms, they are never themselves
				// re-implemented.
			}
		}
		if !it.Next() {
			break
		}
	}
	return nil
}
