package longitudinal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtrapolateLead(t *testing.T) {
	t.Parallel()

	t.Run("constant speed without acceleration", func(t *testing.T) {
		t.Parallel()
		traj := ExtrapolateLead(10, 5, 0, LeadAccelTau)
		for i := 0; i <= HorizonN; i++ {
			assert.InDelta(t, 5.0, traj.V[i], 1e-9, "stage %d", i)
			assert.InDelta(t, 10.0+5.0*TIdx[i], traj.X[i], 1e-9, "stage %d", i)
		}
	})

	t.Run("braking lead never reverses", func(t *testing.T) {
		t.Parallel()
		traj := ExtrapolateLead(30, 2, -3, LeadAccelTau)
		for i := 0; i <= HorizonN; i++ {
			assert.GreaterOrEqual(t, traj.V[i], 0.0, "stage %d", i)
		}
		for i := 1; i <= HorizonN; i++ {
			assert.GreaterOrEqual(t, traj.X[i], traj.X[i-1], "stage %d", i)
		}
	})

	t.Run("acceleration decays over the horizon", func(t *testing.T) {
		t.Parallel()
		traj := ExtrapolateLead(0, 10, 2, LeadAccelTau)
		// Early stages gain speed; by the end of the horizon the decayed
		// acceleration has stopped contributing.
		assert.Greater(t, traj.V[3], 10.0)
		assert.InDelta(t, traj.V[HorizonN], traj.V[HorizonN-1], 0.05)
	})
}

func TestProcessLead(t *testing.T) {
	t.Parallel()

	t.Run("invalid lead becomes distant placeholder", func(t *testing.T) {
		t.Parallel()
		traj := ProcessLead(LeadState{}, 20)
		assert.InDelta(t, 50.0, traj.X[0], 1e-9)
		assert.InDelta(t, 30.0, traj.V[0], 1e-9)
	})

	t.Run("valid lead uses relative report", func(t *testing.T) {
		t.Parallel()
		traj := ProcessLead(LeadState{Valid: true, DistRel: 40, VRel: -2, ALeadTau: LeadAccelTau}, 20)
		assert.InDelta(t, 40.0, traj.X[0], 1e-9)
		assert.InDelta(t, 18.0, traj.V[0], 1e-9)
	})

	t.Run("distance floored to braking feasibility", func(t *testing.T) {
		t.Parallel()
		// Closing at 10 m/s from 1 m away is not physically consistent with
		// the platform's braking limit; the report gets floored.
		traj := ProcessLead(LeadState{Valid: true, DistRel: 1, VRel: -10, ALeadTau: LeadAccelTau}, 20)
		wantMin := ((20.0 + 10.0) / 2) * (20.0 - 10.0) / (3.5 * 2)
		assert.InDelta(t, wantMin, traj.X[0], 1e-9)
	})

	t.Run("acceleration clamped", func(t *testing.T) {
		t.Parallel()
		hard := ProcessLead(LeadState{Valid: true, DistRel: 60, VRel: 0, ALead: -50, ALeadTau: LeadAccelTau}, 20)
		clamped := ProcessLead(LeadState{Valid: true, DistRel: 60, VRel: 0, ALead: -10, ALeadTau: LeadAccelTau}, 20)
		for i := 0; i <= HorizonN; i++ {
			assert.InDelta(t, clamped.V[i], hard.V[i], 1e-9, "stage %d", i)
		}
	})
}
