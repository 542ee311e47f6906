// Package demoops is a small, self-contained operator catalog exercising
// the search framework end to end: a handful of logical relational
// operators (scan, filter, inner join, project, sort) and the physical
// operators/rules that implement them. It exists only to give
// cmd/optdemo and the framework tests something concrete to optimize.
// It is not a general SQL front end.
package demoops

import (
	"strings"

	"github.com/kamkernel/cascadeopt/opt"
	"github.com/kamkernel/cascadeopt/opt/props"
)

// Logical operator kinds.
const (
	KindScan opt.OperatorKind = iota + 1
	KindSelect
	KindInnerJoin
	KindProject
	KindSort
)

// Physical operator kinds.
const (
	KindPhysicalScan opt.OperatorKind = iota + 100
	KindIndexScan
	KindPhysicalFilter
	KindNestedLoopJoin
	KindHashJoin
	KindMergeJoin
	KindPhysicalProject
	KindPhysicalSort
)

func init() {
	opt.RegisterKind(KindScan, "scan", true)
	opt.RegisterKind(KindSelect, "select", true)
	opt.RegisterKind(KindInnerJoin, "inner-join", true)
	opt.RegisterKind(KindProject, "project", true)
	opt.RegisterKind(KindSort, "sort", true)

	opt.RegisterKind(KindPhysicalScan, "physical-scan", false)
	opt.RegisterKind(KindIndexScan, "index-scan", false)
	opt.RegisterKind(KindPhysicalFilter, "physical-filter", false)
	opt.RegisterKind(KindNestedLoopJoin, "nested-loop-join", false)
	opt.RegisterKind(KindHashJoin, "hash-join", false)
	opt.RegisterKind(KindMergeJoin, "merge-join", false)
	opt.RegisterKind(KindPhysicalProject, "physical-project", false)
	opt.RegisterKind(KindPhysicalSort, "physical-sort", false)
}

// stats is the one Stats implementation every demoops operator produces
// and consumes.
type stats struct {
	rowCount float64
}

func (s stats) RowCount() float64 { return s.rowCount }

// --- Scan: logical table scan ---

type Scan struct {
	Table    string
	RowCount float64
}

func (s *Scan) Kind() opt.OperatorKind { return KindScan }
func (s *Scan) ChildCount() int        { return 0 }
func (s *Scan) IsLogical() bool        { return true }
func (s *Scan) IsPhysical() bool       { return false }
func (s *Scan) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*Scan)
	return ok && o.Table == s.Table
}
func (s *Scan) StructuralHash() uint64 { return fnv(s.Table) }

// --- Select: logical filter ---

type Select struct {
	Predicate string
	Selectivity float64 // fraction of input rows that survive, (0,1]
}

func (s *Select) Kind() opt.OperatorKind { return KindSelect }
func (s *Select) ChildCount() int        { return 1 }
func (s *Select) IsLogical() bool        { return true }
func (s *Select) IsPhysical() bool       { return false }
func (s *Select) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*Select)
	return ok && o.Predicate == s.Predicate
}
func (s *Select) StructuralHash() uint64 { return fnv(s.Predicate) }

// --- InnerJoin: logical join ---

type InnerJoin struct {
	Condition string
	// Selectivity estimates the fraction of the Cartesian product of
	// left x right rows that survive the join condition.
	Selectivity float64
}

func (j *InnerJoin) Kind() opt.OperatorKind { return KindInnerJoin }
func (j *InnerJoin) ChildCount() int        { return 2 }
func (j *InnerJoin) IsLogical() bool        { return true }
func (j *InnerJoin) IsPhysical() bool       { return false }
func (j *InnerJoin) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*InnerJoin)
	return ok && o.Condition == j.Condition
}
func (j *InnerJoin) StructuralHash() uint64 { return fnv("join:" + j.Condition) }

// --- Project: logical projection ---

type Project struct {
	Columns []string
}

func (p *Project) Kind() opt.OperatorKind { return KindProject }
func (p *Project) ChildCount() int        { return 1 }
func (p *Project) IsLogical() bool        { return true }
func (p *Project) IsPhysical() bool       { return false }
func (p *Project) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*Project)
	return ok && strings.Join(o.Columns, ",") == strings.Join(p.Columns, ",")
}
func (p *Project) StructuralHash() uint64 { return fnv("project:" + strings.Join(p.Columns, ",")) }

// --- Sort: logical order-by ---

type Sort struct {
	Ordering props.Ordering
}

func (s *Sort) Kind() opt.OperatorKind { return KindSort }
func (s *Sort) ChildCount() int        { return 1 }
func (s *Sort) IsLogical() bool        { return true }
func (s *Sort) IsPhysical() bool       { return false }
func (s *Sort) StructuralEq(other opt.Operator) bool {
	o, ok := other.(*Sort)
	return ok && o.Ordering.String() == s.Ordering.String()
}
func (s *Sort) StructuralHash() uint64 { return fnv("sort:" + s.Ordering.String()) }

// fnv is the same FNV-1a hash folded used by props.Set.Hash, applied
// here to a single string instead of a structured property set.
func fnv(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
