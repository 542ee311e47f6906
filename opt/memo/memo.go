package memo

import (
	"github.com/cockroachdb/errors"
	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// canonEntry is one bucket slot in the memo's canonical deduplication
// index: the fingerprinted expression together with the group it
// belongs to.
type canonEntry struct {
	expr  *Expr
	group opt.GroupID
}

// Memo is the collection of groups plus the canonical index mapping a
// group-expression's canonical form to its owning group. A Memo is
// owned exclusively by one optimization call; it is never shared
// across threads.
type Memo struct {
	groups    map[opt.GroupID]*Group
	canonical map[uint64][]canonEntry

	// forwards maps a group id absorbed by a merge to the id that
	// survived it. A caller holding an id from before the merge (the
	// driver's root group, a rule binding's child placeholder) resolves
	// through this table; ids are never reused, so a chain of merges is a
	// chain of forwards.
	forwards map[opt.GroupID]opt.GroupID

	nextID opt.GroupID
}

// New returns an empty Memo ready for ingestion.
func New() *Memo {
	return &Memo{
		groups:    make(map[opt.GroupID]*Group),
		canonical: make(map[uint64][]canonEntry),
		forwards:  make(map[opt.GroupID]opt.GroupID),
		nextID:    opt.UndefinedGroup + 1,
	}
}

// Resolve follows merge forwarding from id to the group id that
// currently owns its expressions. An id that was never merged away (or
// UndefinedGroup) resolves to itself.
func (m *Memo) Resolve(id opt.GroupID) opt.GroupID {
	for {
		next, ok := m.forwards[id]
		if !ok {
			return id
		}
		id = next
	}
}

// Group looks up a group by id, following merge forwarding. It returns
// InvariantViolated if the id does not refer to an existing group;
// every child GroupID in every expression must refer to an existing
// group.
func (m *Memo) Group(id opt.GroupID) (*Group, error) {
	g, ok := m.groups[m.Resolve(id)]
	if !ok {
		return nil, errors.Mark(errors.AssertionFailedf("memo: group %d does not exist", id), opt.ErrInvariantViolated)
	}
	return g, nil
}

// GroupCount returns the number of live groups, mostly for tests and
// diagnostics.
func (m *Memo) GroupCount() int {
	return len(m.groups)
}

// Insert canonicalizes (operator, children) and either returns the
// group that already holds an equal expression, or creates/extends a
// group for it.
//
// If target is opt.UndefinedGroup, a brand-new group is created when no
// equal expression is found. If target is a valid group id, the new
// expression is attached to that group; if an equal expression is found
// living in a *different* group, the two groups are merged and the
// merge's surviving group id is returned.
func (m *Memo) Insert(op opt.Operator, children []opt.GroupID, target opt.GroupID) (opt.GroupID, *Expr, bool, error) {
	// Normalize every incoming id through merge forwarding first: a rule
	// may hand back ids captured in a binding before an earlier transform
	// of the same pass merged those groups away.
	normalized := make([]opt.GroupID, len(children))
	for i, c := range children {
		normalized[i] = m.Resolve(c)
		if _, err := m.Group(normalized[i]); err != nil {
			return opt.UndefinedGroup, nil, false, err
		}
	}
	if target.Valid() {
		target = m.Resolve(target)
		if _, err := m.Group(target); err != nil {
			return opt.UndefinedGroup, nil, false, err
		}
	}

	candidate := &Expr{Operator: op, Children: normalized}
	fp := candidate.fingerprint()

	if entry, ok := m.lookupCanonical(fp, candidate); ok {
		if target.Valid() && target != entry.group {
			survivor := m.mergeGroups(target, entry.group)
			return survivor, entry.expr, false, nil
		}
		return entry.group, entry.expr, false, nil
	}

	var grp *Group
	if target.Valid() {
		grp, _ = m.Group(target)
	} else {
		grp = &Group{id: m.nextID}
		m.groups[grp.id] = grp
		m.nextID++
	}
	candidate.group = grp.id
	grp.exprs = append(grp.exprs, candidate)
	m.canonical[fp] = append(m.canonical[fp], canonEntry{expr: candidate, group: grp.id})
	return grp.id, candidate, true, nil
}

// lookupCanonical returns the canonical entry for an expression already
// present in the memo that is equal to candidate, if any.
func (m *Memo) lookupCanonical(fp uint64, candidate *Expr) (canonEntry, bool) {
	for _, entry := range m.canonical[fp] {
		if entry.expr.equalTo(candidate) {
			return entry, true
		}
	}
	return canonEntry{}, false
}

// mergeGroups merges the groups identified by a and b, which may have
// converged via two independently-derived rule applications. It
// redirects every other group's child
// references, unions expression lists and best bindings, and then
// repeatedly re-canonicalizes until no two distinct groups hold an equal
// expression. A rewritten child pointer can make two previously
// distinct expressions collide, which in turn can cascade into further
// merges.
func (m *Memo) mergeGroups(a, b opt.GroupID) opt.GroupID {
	survivor := m.mergeOnce(a, b)
	for {
		x, y, found := m.findCrossGroupDuplicate()
		if !found {
			m.dedupeWithinGroups()
			// survivor itself may have been absorbed by a cascaded merge;
			// forwarding names whichever group finally holds everything.
			return m.Resolve(survivor)
		}
		m.mergeOnce(x, y)
	}
}

// dedupeWithinGroups drops expressions made structurally equal to an
// earlier sibling by child-pointer rewriting (join(G1,x) and join(G2,x)
// collapse to one expression once G1 and G2 merge). Each group's
// expression slice is rebuilt rather than compacted in place, so an
// in-flight exploration pass iterating a pre-merge snapshot is not
// disturbed; best/candidate bindings that point at a dropped Expr stay
// extractable, since extraction reads the Expr directly and its
// rewritten children remain valid.
func (m *Memo) dedupeWithinGroups() {
	for _, g := range m.groups {
		var kept []*Expr
		for _, e := range g.exprs {
			dup := false
			for _, k := range kept {
				if k.equalTo(e) {
					dup = true
					break
				}
			}
			if !dup {
				kept = append(kept, e)
			}
		}
		g.exprs = kept
	}
}

// mergeOnce merges exactly the two named groups (assumed distinct) and
// rewrites every child pointer from the absorbed group to the survivor.
// It does not look for further cascading collisions; mergeGroups is
// responsible for that fixpoint loop.
func (m *Memo) mergeOnce(a, b opt.GroupID) opt.GroupID {
	a, b = m.Resolve(a), m.Resolve(b)
	if a == b {
		return a
	}
	// The lower id survives so merge direction is deterministic.
	survivor, victim := a, b
	if survivor > victim {
		survivor, victim = victim, survivor
	}
	survivorGrp := m.groups[survivor]
	victimGrp := m.groups[victim]

	for _, e := range victimGrp.exprs {
		if !survivorGrp.addExprIfNew(e) {
			// A duplicate stays out of the survivor's list, but anything
			// still holding the Expr (an in-flight exploration snapshot)
			// must see the surviving group when it asks e.Group().
			e.group = survivor
		}
	}
	victimGrp.forEachBest(func(required props.Set, expr *Expr, binding RequiredBinding) {
		survivorGrp.ratchet(required, expr, binding)
	})
	victimGrp.forEachCandidate(func(required props.Set, expr *Expr, binding RequiredBinding) {
		survivorGrp.AddCandidate(required, expr, binding)
	})
	for h, bucket := range victimGrp.fullyOptimized {
		for expr := range bucket {
			if survivorGrp.fullyOptimized == nil {
				survivorGrp.fullyOptimized = make(map[uint64]map[*Expr]bool)
			}
			if survivorGrp.fullyOptimized[h] == nil {
				survivorGrp.fullyOptimized[h] = make(map[*Expr]bool)
			}
			survivorGrp.fullyOptimized[h][expr] = true
		}
	}
	survivorGrp.explored = survivorGrp.explored && victimGrp.explored
	survivorGrp.implemented = survivorGrp.implemented && victimGrp.implemented

	delete(m.groups, victim)
	m.forwards[victim] = survivor
	m.rewriteChildPointers(victim, survivor)
	m.rewriteCanonicalGroup(victim, survivor)
	return survivor
}

// rewriteChildPointers replaces every reference to oldID among every
// expression's children, across every group, with newID.
func (m *Memo) rewriteChildPointers(oldID, newID opt.GroupID) {
	for _, g := range m.groups {
		for _, e := range g.exprs {
			for i, c := range e.Children {
				if c == oldID {
					e.Children[i] = newID
				}
			}
		}
	}
}

// rewriteCanonicalGroup re-points canonical index entries that referred
// to the absorbed group, and recomputes their fingerprint (a rewritten
// child pointer changes an expression's fingerprint).
func (m *Memo) rewriteCanonicalGroup(oldID, newID opt.GroupID) {
	rebuilt := make(map[uint64][]canonEntry, len(m.canonical))
	for _, bucket := range m.canonical {
		for _, entry := range bucket {
			if entry.group == oldID {
				entry.group = newID
			}
			fp := entry.expr.fingerprint()
			rebuilt[fp] = append(rebuilt[fp], entry)
		}
	}
	m.canonical = rebuilt
}

// findCrossGroupDuplicate scans the canonical index for two entries that
// share a fingerprint, are structurally equal, and belong to different
// groups: the signature of a merge-induced collision that itself needs
// merging.
func (m *Memo) findCrossGroupDuplicate() (opt.GroupID, opt.GroupID, bool) {
	for _, bucket := range m.canonical {
		for i := 0; i < len(bucket); i++ {
			for j := i + 1; j < len(bucket); j++ {
				if bucket[i].group == bucket[j].group {
					continue
				}
				if bucket[i].expr.equalTo(bucket[j].expr) {
					return bucket[i].group, bucket[j].group, true
				}
			}
		}
	}
	return opt.UndefinedGroup, opt.UndefinedGroup, false
}
