package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQPSolverZeroWeights(t *testing.T) {
	t.Parallel()
	s := NewSQPSolver("test", HorizonN)
	s.PinInitialState([]float64{0, 5, 0})

	status := s.Solve()
	require.Equal(t, solveOK, status)

	// With no cost pulling anywhere, the solution is the zero-jerk rollout.
	for i := 0; i <= HorizonN; i++ {
		x := s.State(i)
		assert.InDelta(t, 5.0*TIdx[i], x[0], 1e-6, "stage %d position", i)
		assert.InDelta(t, 5.0, x[1], 1e-6, "stage %d speed", i)
		assert.InDelta(t, 0.0, x[2], 1e-6, "stage %d accel", i)
	}
	assert.Greater(t, s.Stats().Iterations, 0)
}

func TestSQPSolverWarmStartFromGuess(t *testing.T) {
	t.Parallel()
	s := NewSQPSolver("test", HorizonN)
	s.PinInitialState([]float64{0, 0, 0})

	// A guessed acceleration ramp of 1 m/s^2 per second encodes unit jerk.
	guess := make([]float64, XDim)
	for i := 0; i <= HorizonN; i++ {
		guess[2] = TIdx[i]
		s.SetStateGuess(i, guess)
	}

	status := s.Solve()
	require.Equal(t, solveOK, status)

	// With no cost pulling anywhere, the solution is the rollout of the
	// warm-started jerks.
	for i := 0; i <= HorizonN; i++ {
		assert.InDelta(t, TIdx[i], s.State(i)[2], 1e-6, "stage %d accel", i)
	}
}

func TestPlannerCruiseAcceleration(t *testing.T) {
	t.Parallel()
	mpc := newACCPlanner(t)
	mpc.SetAccelLimits(-1.2, 1.2)
	mpc.SetCurState(20, 0)
	mpc.Update(LeadState{}, LeadState{}, 30, Reference{}, 1.45)

	require.Equal(t, 0, mpc.SolutionStatus)
	assert.Equal(t, SourceCruise, mpc.Source)
	assert.False(t, mpc.LeadTracked)

	// The plan accelerates toward the 30 m/s cruise target without leaving
	// the commanded envelope on the path stages.
	assert.Greater(t, mpc.VSolution[HorizonN], 25.0)
	assert.Less(t, mpc.VSolution[HorizonN], 31.0)
	for i := 0; i < HorizonN; i++ {
		assert.LessOrEqual(t, mpc.ASolution[i], 1.3, "stage %d", i)
		assert.GreaterOrEqual(t, mpc.ASolution[i], -1.3, "stage %d", i)
	}
	assert.Greater(t, mpc.LastStats.SolveTime.Nanoseconds(), int64(0))
}

func TestPlannerCruiseDeceleration(t *testing.T) {
	t.Parallel()
	mpc := newACCPlanner(t)
	mpc.SetAccelLimits(-1.2, 1.2)
	mpc.SetCurState(20, 0)
	mpc.Update(LeadState{}, LeadState{}, 10, Reference{}, 1.45)

	require.Equal(t, 0, mpc.SolutionStatus)
	assert.Less(t, mpc.VSolution[HorizonN], 16.0)
	for i := 0; i < HorizonN; i++ {
		assert.GreaterOrEqual(t, mpc.ASolution[i], -1.3, "stage %d", i)
	}
}

func TestPlannerSlowLead(t *testing.T) {
	t.Parallel()
	mpc := newACCPlanner(t)
	mpc.SetAccelLimits(-1.2, 1.2)
	mpc.SetCurState(20, 0)

	lead := LeadState{Valid: true, DistRel: 30, VRel: -8, ALeadTau: LeadAccelTau, Prob: 1.0}
	mpc.Update(lead, LeadState{}, 30, Reference{}, 1.45)

	require.Equal(t, 0, mpc.SolutionStatus)
	assert.Equal(t, SourceLead0, mpc.Source)
	assert.True(t, mpc.LeadTracked)
	// Closing at 8 m/s from 30 m: the plan has to slow down.
	assert.Less(t, mpc.VSolution[HorizonN], 20.0)
}

func newACCPlanner(t *testing.T) *LongitudinalMPC {
	t.Helper()
	mpc, err := NewLongitudinalMPC(ModeACC, NewSQPSolver("test", HorizonN), DefaultPersonalityTable(), nil)
	require.NoError(t, err)
	return mpc
}
