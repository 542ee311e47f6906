package props

import (
	"bytes"
	"fmt"
	"math"
)

// Set is a set of physical properties (an ordering requirement, a
// distribution requirement, and a row-limit hint) with a partial order
// defined by per-kind subsumption. It plays the role of both the
// "required" and "provided" property value; which one a given Set
// instance represents is determined by context (a provided set
// degenerates to the ordering plus distribution an expression actually
// produces once it has been chosen).
type Set struct {
	Ordering     OrderingChoice
	Distribution Distribution
	LimitHint    float64
}

// MinRequired are the default physical properties: they require nothing
// and are satisfied by anything.
var MinRequired = Set{}

// Any reports whether no property is defined, meaning this Set is equivalent
// to MinRequired.
func (s Set) Any() bool {
	return s.Ordering.Any() && s.Distribution.Any() && s.LimitHint == 0
}

// Subsumes reports whether s (typically a derived/provided property set)
// satisfies everything other (typically a required property set) asks
// for. Subsumption is defined per-kind and then conjoined.
func (s Set) Subsumes(other Set) bool {
	if !s.Ordering.Subsumes(other.Ordering) {
		return false
	}
	if !s.Distribution.Subsumes(other.Distribution) {
		return false
	}
	// A limit hint is advisory, not a hard requirement: it never blocks
	// subsumption, only influences cost.
	return true
}

// Union returns the least upper bound of s and other: the property set
// that subsumes both, to the extent the lattice can represent one. Used
// when a single child must simultaneously satisfy requirements flowing
// down from two distinct parents (e.g. a group referenced twice).
func (s Set) Union(other Set) Set {
	limit := s.LimitHint
	if other.LimitHint != 0 && (limit == 0 || other.LimitHint > limit) {
		limit = other.LimitHint
	}
	return Set{
		Ordering:     s.Ordering.Union(other.Ordering),
		Distribution: s.Distribution.Union(other.Distribution),
		LimitHint:    limit,
	}
}

// Equals reports structural equality of every property kind.
func (s Set) Equals(other Set) bool {
	return s.Ordering.Equals(other.Ordering) &&
		s.Distribution.Equals(other.Distribution) &&
		s.LimitHint == other.LimitHint
}

// LimitHintInt64 returns the limit hint converted to an integer row
// count, or 0 ("no limit") when the hint is negative.
func (s Set) LimitHintInt64() int64 {
	h := int64(math.Ceil(s.LimitHint))
	if h < 0 {
		return 0
	}
	return h
}

// String renders the property set for debug/trace output, e.g.
// "[ordering: +a,+b] [limit hint: 10.00]".
func (s Set) String() string {
	var buf bytes.Buffer
	emit := func(name, val string) {
		if buf.Len() != 0 {
			buf.WriteByte(' ')
		}
		fmt.Fprintf(&buf, "[%s: %s]", name, val)
	}
	if !s.Ordering.Any() {
		emit("ordering", s.Ordering.String())
	}
	if !s.Distribution.Any() {
		emit("distribution", s.Distribution.String())
	}
	if s.LimitHint != 0 {
		emit("limit hint", fmt.Sprintf("%.2f", s.LimitHint))
	}
	if buf.Len() == 0 {
		return "[]"
	}
	return buf.String()
}

// Hash returns a cheap, deterministic hash of the property set, used by
// the memo's per-group best-expression index (keyed by required
// property set) to avoid a linear scan when a group has many distinct
// required property sets in flight.
func (s Set) Hash() uint64 {
	var h uint64 = 14695981039346656037 // FNV offset basis
	mix := func(b byte) {
		h ^= uint64(b)
		h *= 1099511628211 // FNV prime
	}
	for _, c := range s.Ordering.Columns {
		for _, ch := range c.Col {
			mix(byte(ch))
		}
		if c.Desc {
			mix(1)
		} else {
			mix(0)
		}
	}
	for _, r := range s.Distribution.Regions {
		for _, ch := range r {
			mix(byte(ch))
		}
		mix('|')
	}
	bits := math.Float64bits(s.LimitHint)
	for i := 0; i < 8; i++ {
		mix(byte(bits >> (8 * i)))
	}
	return h
}
