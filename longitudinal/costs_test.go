package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stageArrays(xObst, xEgo, vEgo, vLead, tFollow float64) (o, e, ve, vl, tf []float64) {
	n := HorizonN + 1
	o, e, ve, vl, tf = make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	for i := 0; i < n; i++ {
		o[i], e[i], ve[i], vl[i], tf[i] = xObst, xEgo, vEgo, vLead, tFollow
	}
	return
}

func TestSmoothJerkCostArray(t *testing.T) {
	t.Parallel()
	p := DefaultJerkCostParams(12.0)

	t.Run("bounded by taper and base", func(t *testing.T) {
		t.Parallel()
		o, e, ve, vl, tf := stageArrays(30, 0, 20, 15, 1.45)
		costs := SmoothJerkCostArray(o, e, ve, vl, tf, p)
		require.Len(t, costs, HorizonN+1)
		for i, c := range costs {
			assert.GreaterOrEqual(t, c, p.LowJerkCost, "stage %d", i)
			assert.LessOrEqual(t, c, p.BaseJerkCost*1.2+1e-9, "stage %d", i)
		}
	})

	t.Run("closing on a short gap raises cost", func(t *testing.T) {
		t.Parallel()
		o, e, ve, vl, tf := stageArrays(20, 0, 25, 15, 1.45)
		tight := SmoothJerkCostArray(o, e, ve, vl, tf, p)

		o, e, ve, vl, tf = stageArrays(300, 0, 20, 21, 1.45)
		loose := SmoothJerkCostArray(o, e, ve, vl, tf, p)

		for i := range tight {
			assert.Greater(t, tight[i], loose[i], "stage %d", i)
		}
		// An open gap with a pulling-away lead sits at the low-cost floor.
		assert.InDelta(t, p.LowJerkCost*taperFactor(TIdx[0]), loose[0], 0.01)
	})

	t.Run("taper decays to one by two seconds", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 1.2, taperFactor(0), 1e-9)
		assert.InDelta(t, 1.0, taperFactor(2.0), 1e-9)
		assert.InDelta(t, 1.0, taperFactor(8.0), 1e-9)
	})
}

func TestPullawayDistanceCost(t *testing.T) {
	t.Parallel()
	const base = 3.0

	t.Run("slower lead returns base", func(t *testing.T) {
		t.Parallel()
		got := PullawayDistanceCost(0, 20, 100, 15, 1.45, base, 5, 2, 2)
		assert.Equal(t, base, got)
	})

	t.Run("short gap returns base", func(t *testing.T) {
		t.Parallel()
		// Desired gap at 20 m/s behind a 21 m/s lead is ~26.8 m; 10 m is a
		// deficit, so the faster lead alone does not trigger the scaling.
		got := PullawayDistanceCost(0, 20, 10, 21, 1.45, base, 5, 2, 2)
		assert.Equal(t, base, got)
	})

	t.Run("fast lead with excess gap still scales", func(t *testing.T) {
		t.Parallel()
		// A lead 5 m/s faster and 40 m beyond the desired gap saturates the
		// cap even though the raw range reads short.
		got := PullawayDistanceCost(0, 20, 30, 25, 1.45, base, 5, 2, 2)
		assert.InDelta(t, base*1.3, got, 1e-9)
	})

	t.Run("pulling away scales up to the hard cap", func(t *testing.T) {
		t.Parallel()
		got := PullawayDistanceCost(0, 20, 500, 40, 1.45, base, 5, 2, 2)
		assert.InDelta(t, base*1.3, got, 1e-9)

		// A configured ceiling above the cap does not raise it further.
		capped := PullawayDistanceCost(0, 20, 500, 40, 1.45, base, 5, 2, 10)
		assert.Equal(t, got, capped)
	})

	t.Run("mild pullaway lands between base and cap", func(t *testing.T) {
		t.Parallel()
		desired := DesiredFollowDistance(20, 21, 1.45)
		got := PullawayDistanceCost(0, 20, desired+2, 21, 1.45, base, 5, 2, 2)
		assert.Greater(t, got, base)
		assert.Less(t, got, base*1.3)
	})
}

func TestApproachFactor(t *testing.T) {
	t.Parallel()

	t.Run("open gap is neutral", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, 1.0, ApproachFactor(500, 0, 20, 20, 1.45, 5, 1.5, 1.0))
	})

	t.Run("deficit scales within bounds", func(t *testing.T) {
		t.Parallel()
		got := ApproachFactor(40, 0, 25, 15, 1.45, 5, 1.5, 1.0)
		assert.Greater(t, got, 1.0)
		assert.LessOrEqual(t, got, 1.5)
	})
}

func TestLeadConstraintWeight(t *testing.T) {
	t.Parallel()
	const minPenalty = 5.0

	far := LeadConstraintWeight(500, 0, 20, 25, 1.45, minPenalty, 2, 2)
	near := LeadConstraintWeight(20, 0, 30, 5, 1.45, minPenalty, 2, 2)

	assert.InDelta(t, minPenalty, far, 1.0)
	assert.Greater(t, near, 9000.0)
	for _, w := range []float64{far, near} {
		assert.GreaterOrEqual(t, w, minPenalty)
		assert.LessOrEqual(t, w, 10000.0)
	}
}
