package props_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kamkernel/cascadeopt/opt/props"
)

func ordering(cols ...string) props.Ordering {
	out := make(props.Ordering, len(cols))
	for i, c := range cols {
		out[i] = props.OrderingColumn{Col: c}
	}
	return out
}

func TestOrderingChoiceSubsumes(t *testing.T) {
	ab := props.OrderingChoice{Columns: ordering("a", "b")}
	a := props.OrderingChoice{Columns: ordering("a")}
	ac := props.OrderingChoice{Columns: ordering("a", "c")}

	require.True(t, ab.Subsumes(a), "(a,b) should subsume required (a)")
	require.True(t, ab.Subsumes(ab), "an ordering subsumes itself")
	require.False(t, a.Subsumes(ab), "(a) cannot subsume required (a,b)")
	require.False(t, ac.Subsumes(ab), "(a,c) does not satisfy required (a,b)")
	require.True(t, ab.Subsumes(props.OrderingChoice{}), "every ordering subsumes no requirement")
}

func TestOrderingChoiceUnion(t *testing.T) {
	ab := props.OrderingChoice{Columns: ordering("a", "b")}
	a := props.OrderingChoice{Columns: ordering("a")}
	require.True(t, ab.Union(a).Equals(ab))
	require.True(t, a.Union(ab).Equals(ab))

	xy := props.OrderingChoice{Columns: ordering("x", "y")}
	require.True(t, ab.Union(xy).Equals(props.OrderingChoice{}), "incompatible orderings union to no requirement")
}

func TestSetSubsumes(t *testing.T) {
	required := props.Set{Ordering: props.OrderingChoice{Columns: ordering("a")}}
	provided := props.Set{Ordering: props.OrderingChoice{Columns: ordering("a", "b")}}
	require.True(t, provided.Subsumes(required))
	require.False(t, required.Subsumes(provided))
}

func TestSetSubsumesIgnoresLimitHint(t *testing.T) {
	required := props.Set{LimitHint: 10}
	provided := props.Set{LimitHint: 0}
	require.True(t, provided.Subsumes(required), "limit hints are advisory, never block subsumption")
}

func TestSetHashStableAndDiscriminating(t *testing.T) {
	a := props.Set{Ordering: props.OrderingChoice{Columns: ordering("a")}}
	a2 := props.Set{Ordering: props.OrderingChoice{Columns: ordering("a")}}
	b := props.Set{Ordering: props.OrderingChoice{Columns: ordering("b")}}

	require.Equal(t, a.Hash(), a2.Hash(), "equal sets must hash equal")
	require.NotEqual(t, a.Hash(), b.Hash(), "distinct orderings should not collide for these small inputs")
}

func TestDistributionSubsumesAndUnion(t *testing.T) {
	east := props.Distribution{Regions: []string{"east"}}
	eastWest := props.Distribution{Regions: []string{"east", "west"}}

	require.True(t, eastWest.Subsumes(east))
	require.False(t, east.Subsumes(eastWest))
	require.True(t, east.Union(eastWest).Equals(eastWest))
}
