package longitudinal

import (
	"gonum.org/v1/gonum/floats"
)

// LeadAccelTau is the default acceleration decay time constant.
const LeadAccelTau = 1.5

// PlatformMinAccel is the strongest deceleration the platform can command.
// Used to floor reported lead distances so they stay physically consistent.
const PlatformMinAccel = -3.5 // m/s^2

// LeadState is a tracked lead as reported by perception.
type LeadState struct {
	Valid    bool    // detection status
	DistRel  float64 // range to lead, m
	VRel     float64 // lead speed relative to ego, m/s
	ALead    float64 // lead absolute acceleration estimate, m/s^2
	ALeadTau float64 // acceleration decay time constant
	Prob     float64 // existence probability
}

// LeadTrajectory is a lead's extrapolated position and speed per stage.
type LeadTrajectory struct {
	X [HorizonN + 1]float64
	V [HorizonN + 1]float64
}

// ExtrapolateLead propagates a lead across the horizon under a decaying
// acceleration model: a(t) = a0*exp(-tau*t^2/2). Speed is clamped to stay
// non-negative before integrating to position.
func ExtrapolateLead(xLead, vLead, aLead, aLeadTau float64) LeadTrajectory {
	var traj LeadTrajectory
	var accel, dv, dx [HorizonN + 1]float64

	for i, t := range TIdx {
		accel[i] = aLead * expNeg(aLeadTau*t*t/2)
	}
	for i := range dv {
		dv[i] = TDiff[i] * accel[i]
	}
	floats.CumSum(dv[:], dv[:])
	for i := range traj.V {
		traj.V[i] = clampFloat(vLead+dv[i], 0.0, 1e8)
	}

	for i := range dx {
		dx[i] = TDiff[i] * traj.V[i]
	}
	floats.CumSum(dx[:], dx[:])
	for i := range traj.X {
		traj.X[i] = xLead + dx[i]
	}
	return traj
}

// ProcessLead sanitizes a lead report and extrapolates it across the horizon.
// An invalid lead is replaced by a distant, faster placeholder so the
// resulting obstacle never binds. Reported positions are floored so the
// implied closing rate stays within the platform's braking ability.
func ProcessLead(lead LeadState, vEgo float64) LeadTrajectory {
	var xLead, vLead, aLead, aLeadTau float64
	if lead.Valid {
		xLead = lead.DistRel
		vLead = vEgo + lead.VRel
		aLead = lead.ALead
		aLeadTau = lead.ALeadTau
	} else {
		xLead = 50.0
		vLead = vEgo + 10.0
		aLead = 0.0
		aLeadTau = LeadAccelTau
	}

	minXLead := ((vEgo + vLead) / 2) * (vEgo - vLead) / (-PlatformMinAccel * 2)
	xLead = clampFloat(xLead, minXLead, 1e8)
	vLead = clampFloat(vLead, 0.0, 1e8)
	aLead = clampFloat(aLead, -10.0, 5.0)

	return ExtrapolateLead(xLead, vLead, aLead, aLeadTau)
}
