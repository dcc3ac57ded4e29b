package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSolver is a scriptable HorizonSolver for exercising the planner's
// bookkeeping without running an optimization.
type recordingSolver struct {
	states  [][]float64
	status  int
	resets  int
	guesses map[int][]float64
}

func newRecordingSolver() *recordingSolver {
	return &recordingSolver{
		states:  makeGrid(HorizonN+1, XDim),
		guesses: map[int][]float64{},
	}
}

func (s *recordingSolver) Reset() {
	s.resets++
	zeroGrid(s.states)
}
func (s *recordingSolver) SetStateGuess(stage int, x []float64) {
	g := make([]float64, len(x))
	copy(g, x)
	s.guesses[stage] = g
}
func (s *recordingSolver) SetParams(int, []float64)            {}
func (s *recordingSolver) SetRef(int, []float64)               {}
func (s *recordingSolver) SetWeights(int, []float64)           {}
func (s *recordingSolver) SetConstraintWeights(int, []float64) {}
func (s *recordingSolver) PinInitialState(x0 []float64)        { copy(s.states[0], x0) }
func (s *recordingSolver) Solve() int                          { return s.status }
func (s *recordingSolver) State(stage int) []float64           { return s.states[stage] }
func (s *recordingSolver) Control(int) []float64               { return []float64{0} }
func (s *recordingSolver) Stats() SolveStats                   { return SolveStats{} }

func newStubPlanner(t *testing.T, mode PlannerMode) (*LongitudinalMPC, *recordingSolver) {
	t.Helper()
	stub := newRecordingSolver()
	mpc, err := NewLongitudinalMPC(mode, stub, DefaultPersonalityTable(), nil)
	require.NoError(t, err)
	return mpc, stub
}

func TestNewLongitudinalMPCRejectsUnknownMode(t *testing.T) {
	t.Parallel()
	_, err := NewLongitudinalMPC(PlannerMode("cruise-control"), newRecordingSolver(), DefaultPersonalityTable(), nil)
	assert.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestSetCurStateReseedsOnSpeedJump(t *testing.T) {
	t.Parallel()
	mpc, stub := newStubPlanner(t, ModeACC)

	stub.guesses = map[int][]float64{}
	mpc.SetCurState(3.0, 0.1)
	require.Len(t, stub.guesses, HorizonN+1)
	for i := 0; i <= HorizonN; i++ {
		assert.Equal(t, 3.0, stub.guesses[i][1], "stage %d", i)
		assert.Equal(t, 0.1, stub.guesses[i][2], "stage %d", i)
	}

	// A small change keeps the warm start.
	stub.guesses = map[int][]float64{}
	mpc.SetCurState(3.5, 0.1)
	assert.Empty(t, stub.guesses)
}

func TestResetClearsState(t *testing.T) {
	t.Parallel()
	mpc, stub := newStubPlanner(t, ModeACC)

	mpc.VSolution[3] = 12
	mpc.ASolution[3] = 1
	mpc.CrashCount = 4
	mpc.SolutionStatus = 2

	before := stub.resets
	mpc.Reset()
	assert.Equal(t, before+1, stub.resets)
	assert.Equal(t, 0, mpc.SolutionStatus)
	assert.Equal(t, 0, mpc.CrashCount)
	assert.False(t, mpc.LeadTracked)
	for i := 0; i <= HorizonN; i++ {
		assert.Equal(t, 0.0, mpc.VSolution[i])
		assert.Equal(t, 0.0, mpc.ASolution[i])
	}
}

func TestResetKeepsConfiguredPersonality(t *testing.T) {
	t.Parallel()
	mpc, stub := newStubPlanner(t, ModeACC)
	require.NoError(t, mpc.SetWeights(PersonalityAggressive, true))
	require.Equal(t, 0.5, mpc.jerkFactors.Accel)

	t.Run("direct reset", func(t *testing.T) {
		mpc.Reset()
		assert.Equal(t, 0.5, mpc.jerkFactors.Accel)
		assert.Equal(t, JEgoCost*0.5, mpc.baseCostWeights[5])
	})

	t.Run("divergence recovery", func(t *testing.T) {
		stub.status = solveNonFinite
		mpc.Update(LeadState{}, LeadState{}, 30, Reference{}, 1.25)
		assert.Equal(t, solveNonFinite, mpc.SolutionStatus)
		assert.Equal(t, 0.5, mpc.jerkFactors.Accel)
		assert.Equal(t, JEgoCost*0.5, mpc.baseCostWeights[5])
	})
}

func TestFailedSolveResetsToNeutral(t *testing.T) {
	t.Parallel()
	mpc, stub := newStubPlanner(t, ModeACC)
	stub.status = solveNonFinite

	mpc.SetCurState(20, 0)
	before := stub.resets
	mpc.Update(LeadState{}, LeadState{}, 30, Reference{}, 1.45)

	// The failure is surfaced, but the planner state behind it is reset so
	// the next cycle starts clean.
	assert.Equal(t, solveNonFinite, mpc.SolutionStatus)
	assert.Equal(t, before+1, stub.resets)
	for i := 0; i <= HorizonN; i++ {
		assert.Equal(t, 0.0, mpc.VSolution[i])
		assert.Equal(t, 0.0, mpc.ASolution[i])
	}
}

func TestCrashCounter(t *testing.T) {
	t.Parallel()
	mpc, _ := newStubPlanner(t, ModeACC)

	// Stationary ego, lead prediction inside the crash distance on the
	// early stages.
	near := LeadState{Valid: true, DistRel: 0.1, VRel: 0, ALeadTau: LeadAccelTau, Prob: 0.95}
	mpc.Update(near, LeadState{}, 10, Reference{}, 1.45)
	assert.Equal(t, 1, mpc.CrashCount)
	mpc.Update(near, LeadState{}, 10, Reference{}, 1.45)
	assert.Equal(t, 2, mpc.CrashCount)

	// A low-probability track does not count.
	near.Prob = 0.5
	mpc.Update(near, LeadState{}, 10, Reference{}, 1.45)
	assert.Equal(t, 0, mpc.CrashCount)
}

func TestACCSourceAttribution(t *testing.T) {
	t.Parallel()

	t.Run("no leads binds to cruise", func(t *testing.T) {
		t.Parallel()
		mpc, _ := newStubPlanner(t, ModeACC)
		mpc.SetCurState(20, 0)
		mpc.Update(LeadState{}, LeadState{}, 30, Reference{}, 1.45)
		assert.Equal(t, SourceCruise, mpc.Source)
	})

	t.Run("near lead binds to lead0", func(t *testing.T) {
		t.Parallel()
		mpc, _ := newStubPlanner(t, ModeACC)
		mpc.SetCurState(20, 0)
		lead := LeadState{Valid: true, DistRel: 10, VRel: -5, ALeadTau: LeadAccelTau, Prob: 1}
		mpc.Update(lead, LeadState{}, 30, Reference{}, 1.45)
		assert.Equal(t, SourceLead0, mpc.Source)
	})
}

func TestBlendedSourceAttribution(t *testing.T) {
	t.Parallel()

	t.Run("short path binds to e2e", func(t *testing.T) {
		t.Parallel()
		mpc, _ := newStubPlanner(t, ModeBlended)
		mpc.Update(LeadState{}, LeadState{}, 5, Reference{}, 1.45)
		assert.Equal(t, SourceE2E, mpc.Source)
	})

	t.Run("gap violation re-attributes to the binding lead", func(t *testing.T) {
		t.Parallel()
		mpc, _ := newStubPlanner(t, ModeBlended)
		lead0 := LeadState{Valid: true, DistRel: 2, VRel: 0, ALeadTau: LeadAccelTau, Prob: 1}
		mpc.Update(lead0, LeadState{}, 5, Reference{}, 1.45)
		assert.Equal(t, SourceLead0, mpc.Source)
	})

	t.Run("farther second lead wins only when it also violates", func(t *testing.T) {
		t.Parallel()
		mpc, _ := newStubPlanner(t, ModeBlended)
		lead0 := LeadState{Valid: true, DistRel: 2, VRel: 0, ALeadTau: LeadAccelTau, Prob: 1}
		lead1 := LeadState{Valid: true, DistRel: 4, VRel: 0, ALeadTau: LeadAccelTau, Prob: 1}
		mpc.Update(lead0, lead1, 5, Reference{}, 1.45)
		assert.Equal(t, SourceLead1, mpc.Source)
	})
}
