package demoops

import (
	"math"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// seqScanCostPerRow and the other per-row constants below are not
// calibrated against anything real; they only need to be stable and to
// express the right cost ordering between physical alternatives (seq
// scan costs more than index scan when a predicate is selective, a hash
// join costs less than a nested-loop join for big, non-indexed inputs).
const (
	seqScanCostPerRow   = 1.0
	indexScanCostPerRow = 0.2
	filterCostPerRow    = 0.1
	nlJoinCostPerPair   = 1.0
	hashJoinCostPerRow  = 2.0
	mergeJoinCostPerRow = 1.5
	projectCostPerRow   = 0.05
	sortCostPerRowLogN  = 1.2
)

// PhysicalScan is a full sequential scan: cheap to plan, expensive per
// row, no ordering guarantee.
type PhysicalScan struct {
	Table    string
	RowCount float64
}

func (s *PhysicalScan) Kind() opt.OperatorKind { return KindPhysicalScan }
func (s *PhysicalScan) ChildCount() int        { return 0 }
func (s *PhysicalScan) IsLogical() bool        { return false }
func (s *PhysicalScan) IsPhysical() bool       { return true }
func (s *PhysicalScan) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*PhysicalScan)
	return ok && o.Table == s.Table
}
func (s *PhysicalScan) StructuralHash() uint64 { return fnv("physical-scan:" + s.Table) }

func (s *PhysicalScan) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	return []opt.PropertyAlternative{{Output: props.Set{Distribution: required.Distribution}}}
}

func (s *PhysicalScan) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	return stats{rowCount: s.RowCount}, opt.Cost(s.RowCount * seqScanCostPerRow)
}

// IndexScan is a scan that additionally provides a known sort order
// (the index's own order) at a cheaper per-row cost, modeling a
// selective index lookup.
type IndexScan struct {
	Table    string
	RowCount float64
	Provides props.Ordering
}

func (s *IndexScan) Kind() opt.OperatorKind { return KindIndexScan }
func (s *IndexScan) ChildCount() int        { return 0 }
func (s *IndexScan) IsLogical() bool        { return false }
func (s *IndexScan) IsPhysical() bool       { return true }
func (s *IndexScan) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*IndexScan)
	return ok && o.Table == s.Table && o.Provides.String() == s.Provides.String()
}
func (s *IndexScan) StructuralHash() uint64 {
	return fnv("index-scan:" + s.Table + ":" + s.Provides.String())
}

func (s *IndexScan) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	if !s.Provides.Subsumes(required.Ordering.Columns) {
		return nil
	}
	return []opt.PropertyAlternative{{
		Output: props.Set{
			Ordering:     props.OrderingChoice{Columns: s.Provides},
			Distribution: required.Distribution,
		},
	}}
}

func (s *IndexScan) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	return stats{rowCount: s.RowCount}, opt.Cost(s.RowCount * indexScanCostPerRow)
}

// PhysicalFilter implements Select: it passes through whatever ordering
// and distribution its child provides untouched, since row-at-a-time
// filtering never reorders surviving rows.
type PhysicalFilter struct {
	Predicate   string
	Selectivity float64
}

func (f *PhysicalFilter) Kind() opt.OperatorKind { return KindPhysicalFilter }
func (f *PhysicalFilter) ChildCount() int        { return 1 }
func (f *PhysicalFilter) IsLogical() bool        { return false }
func (f *PhysicalFilter) IsPhysical() bool       { return true }
func (f *PhysicalFilter) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*PhysicalFilter)
	return ok && o.Predicate == f.Predicate
}
func (f *PhysicalFilter) StructuralHash() uint64 { return fnv("physical-filter:" + f.Predicate) }

func (f *PhysicalFilter) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	return []opt.PropertyAlternative{{Output: required, Input: []props.Set{required}}}
}

func (f *PhysicalFilter) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	in := childStats[0].RowCount()
	return stats{rowCount: in * f.Selectivity}, opt.Cost(in * filterCostPerRow)
}

// NestedLoopJoin demands nothing of either input and provides no
// particular ordering; it is feasible whenever no ordering is required
// (it offers no alternative otherwise) and scales with the product of
// its input sizes.
type NestedLoopJoin struct {
	Condition   string
	Selectivity float64
}

func (j *NestedLoopJoin) Kind() opt.OperatorKind { return KindNestedLoopJoin }
func (j *NestedLoopJoin) ChildCount() int        { return 2 }
func (j *NestedLoopJoin) IsLogical() bool        { return false }
func (j *NestedLoopJoin) IsPhysical() bool       { return true }
func (j *NestedLoopJoin) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*NestedLoopJoin)
	return ok && o.Condition == j.Condition
}
func (j *NestedLoopJoin) StructuralHash() uint64 { return fnv("nl-join:" + j.Condition) }

func (j *NestedLoopJoin) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	if !required.Ordering.Any() {
		return nil
	}
	return []opt.PropertyAlternative{{
		Output: props.Set{Distribution: required.Distribution},
		Input:  []props.Set{props.MinRequired, props.MinRequired},
	}}
}

func (j *NestedLoopJoin) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	left, right := childStats[0].RowCount(), childStats[1].RowCount()
	return stats{rowCount: left * right * j.Selectivity}, opt.Cost(left * right * nlJoinCostPerPair)
}

// HashJoin is cheaper than a nested-loop join for large unsorted inputs
// but, like NestedLoopJoin, provides no particular output ordering.
type HashJoin struct {
	Condition   string
	Selectivity float64
}

func (j *HashJoin) Kind() opt.OperatorKind { return KindHashJoin }
func (j *HashJoin) ChildCount() int        { return 2 }
func (j *HashJoin) IsLogical() bool        { return false }
func (j *HashJoin) IsPhysical() bool       { return true }
func (j *HashJoin) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*HashJoin)
	return ok && o.Condition == j.Condition
}
func (j *HashJoin) StructuralHash() uint64 { return fnv("hash-join:" + j.Condition) }

func (j *HashJoin) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	if !required.Ordering.Any() {
		return nil
	}
	return []opt.PropertyAlternative{{
		Output: props.Set{Distribution: required.Distribution},
		Input:  []props.Set{props.MinRequired, props.MinRequired},
	}}
}

func (j *HashJoin) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	left, right := childStats[0].RowCount(), childStats[1].RowCount()
	return stats{rowCount: left * right * j.Selectivity}, opt.Cost((left + right) * hashJoinCostPerRow)
}

// MergeJoin demands both children be sorted on the join columns and, in
// exchange, provides that same ordering on its output. It is the
// operator a PhysicalSort enforcer on a child exists to feed.
type MergeJoin struct {
	Condition   string
	Selectivity float64
	JoinColumns props.Ordering
}

func (j *MergeJoin) Kind() opt.OperatorKind { return KindMergeJoin }
func (j *MergeJoin) ChildCount() int        { return 2 }
func (j *MergeJoin) IsLogical() bool        { return false }
func (j *MergeJoin) IsPhysical() bool       { return true }
func (j *MergeJoin) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*MergeJoin)
	return ok && o.Condition == j.Condition
}
func (j *MergeJoin) StructuralHash() uint64 { return fnv("merge-join:" + j.Condition) }

func (j *MergeJoin) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	provided := props.OrderingChoice{Columns: j.JoinColumns}
	if !provided.Subsumes(required.Ordering) {
		return nil
	}
	sortedInput := props.Set{Ordering: provided}
	return []opt.PropertyAlternative{{
		Output: props.Set{Ordering: provided, Distribution: required.Distribution},
		Input:  []props.Set{sortedInput, sortedInput},
	}}
}

func (j *MergeJoin) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	left, right := childStats[0].RowCount(), childStats[1].RowCount()
	return stats{rowCount: left * right * j.Selectivity}, opt.Cost((left + right) * mergeJoinCostPerRow)
}

// PhysicalProject passes the required properties through to its child
// when every required ordering column survives the projection; otherwise
// it offers no alternative at all.
type PhysicalProject struct {
	Columns []string
}

func (p *PhysicalProject) Kind() opt.OperatorKind { return KindPhysicalProject }
func (p *PhysicalProject) ChildCount() int        { return 1 }
func (p *PhysicalProject) IsLogical() bool        { return false }
func (p *PhysicalProject) IsPhysical() bool       { return true }
func (p *PhysicalProject) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*PhysicalProject)
	if !ok || len(o.Columns) != len(p.Columns) {
		return false
	}
	for i := range p.Columns {
		if o.Columns[i] != p.Columns[i] {
			return false
		}
	}
	return true
}
func (p *PhysicalProject) StructuralHash() uint64 { return fnv("physical-project") }

func (p *PhysicalProject) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	if !p.projects(required.Ordering.ColSet()) {
		return nil
	}
	return []opt.PropertyAlternative{{Output: required, Input: []props.Set{required}}}
}

func (p *PhysicalProject) projects(cols []string) bool {
	have := make(map[string]bool, len(p.Columns))
	for _, c := range p.Columns {
		have[c] = true
	}
	for _, c := range cols {
		if !have[c] {
			return false
		}
	}
	return true
}

func (p *PhysicalProject) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	in := childStats[0].RowCount()
	return stats{rowCount: in}, opt.Cost(in * projectCostPerRow)
}

// PhysicalSort is the ordering enforcer: it demands nothing of its
// child's ordering and produces exactly the ordering it was built to
// provide, at an O(n log n) cost. It is wired into the memo by
// EnforceSort and SortToPhysicalSort.
type PhysicalSort struct {
	Ordering props.Ordering
}

func (s *PhysicalSort) Kind() opt.OperatorKind { return KindPhysicalSort }
func (s *PhysicalSort) ChildCount() int        { return 1 }
func (s *PhysicalSort) IsLogical() bool        { return false }
func (s *PhysicalSort) IsPhysical() bool       { return true }
func (s *PhysicalSort) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*PhysicalSort)
	return ok && o.Ordering.String() == s.Ordering.String()
}
func (s *PhysicalSort) StructuralHash() uint64 { return fnv("physical-sort:" + s.Ordering.String()) }

func (s *PhysicalSort) PropertyAlternatives(required props.Set) []opt.PropertyAlternative {
	provided := props.OrderingChoice{Columns: s.Ordering}
	if !provided.Subsumes(required.Ordering) {
		return nil
	}
	return []opt.PropertyAlternative{{
		Output: props.Set{Ordering: provided, Distribution: required.Distribution},
		Input:  []props.Set{{Distribution: required.Distribution}},
	}}
}

func (s *PhysicalSort) DeriveStatsAndCost(alt opt.PropertyAlternative, childStats []opt.Stats, childCosts []opt.Cost) (opt.Stats, opt.Cost) {
	in := childStats[0].RowCount()
	logN := 1.0
	if in > 1 {
		logN = math.Log2(in)
	}
	return stats{rowCount: in}, opt.Cost(in * logN * sortCostPerRowLogN)
}
