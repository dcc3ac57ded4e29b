package cruise

import "math"

const msToMPH = 2.23694

// curvatureEps floors curvature denominators; below it the road is treated
// as straight.
const curvatureEps = 1e-9

// Vision turn controller tuning.
const (
	vtscMaxDecel = 2.0 // m/s^2
	vtscMaxJerk  = 1.0 // m/s^3

	vtscLowLatAcc  = 0.20 // m/s^2, lightly begin slowing
	vtscHighLatAcc = 0.40 // m/s^2, definitely in turn

	vtscLookaheadDist   = 150.0 // m
	vtscMinUpcomingCurv = 0.0005

	vtscTurnSmoothingAlpha = 0.3
	vtscMildSmoothingAlpha = 0.1
	vtscReaccelAlpha       = 0.2
)

// NonlinearLatAccel returns the comfortable maximum lateral acceleration at
// vEgo, scaled by the user aggressiveness multiplier. The logistic is tuned
// in mph space: ~1.7 m/s^2 at 10 mph, ~3.0 at 40 mph, capped at 3.2.
func NonlinearLatAccel(vEgo, aggressiveness float64) float64 {
	vMPH := vEgo * msToMPH

	const (
		base   = 1.7
		span   = 1.9
		center = 45.0
		k      = 0.14
	)
	latAcc := base + span/(1.0+math.Exp(-k*(vMPH-center)))
	if latAcc > 3.2 {
		latAcc = 3.2
	}
	return latAcc * aggressiveness
}

// VisionTurnSpeedController limits cruise speed through curves using the
// vision model's curvature, with multi-stage smoothing, lookahead pre-slow
// and a jerk-limited deceleration tracker.
type VisionTurnSpeedController struct {
	floor float64
	dt    float64

	prevTarget   float64
	currentDecel float64
}

func NewVisionTurnSpeedController(floor, dt float64) *VisionTurnSpeedController {
	return &VisionTurnSpeedController{floor: floor, dt: dt}
}

// CurrentDecel reports the tracked deceleration, m/s^2.
func (c *VisionTurnSpeedController) CurrentDecel() float64 { return c.currentDecel }

// Update computes the turn speed target for this tick. When inactive, or on
// an effectively straight road, the cruise target passes through unmodified.
func (c *VisionTurnSpeedController) Update(active bool, vEgo, vCruise, curvature, upcomingDist, upcomingCurv, aggressiveness float64) float64 {
	if !active {
		c.prevTarget = vCruise
		c.currentDecel = 0
		return vCruise
	}

	cAbs := math.Abs(curvature)
	if cAbs < curvatureEps {
		c.prevTarget = vCruise
		c.currentDecel = 0
		return vCruise
	}

	latAcc := NonlinearLatAccel(vEgo, aggressiveness)
	vCurvature := clampFloat(math.Sqrt(latAcc/cAbs), c.floor, vCruise)

	currentLatAcc := cAbs * vEgo * vEgo

	var vTarget float64
	if currentLatAcc > vtscLowLatAcc {
		alpha := vtscMildSmoothingAlpha
		if currentLatAcc >= vtscHighLatAcc {
			alpha = vtscTurnSmoothingAlpha
		}
		vTarget = alpha*c.prevTarget + (1.0-alpha)*vCurvature
	} else {
		vTarget = vtscReaccelAlpha*c.prevTarget + (1.0-vtscReaccelAlpha)*vCruise
	}

	// Pre-slow for an upcoming curve, blended in by proximity. The blend
	// only ever lowers the target.
	if upcomingDist < vtscLookaheadDist && upcomingCurv > vtscMinUpcomingCurv {
		vAhead := math.Sqrt(latAcc / upcomingCurv)
		fraction := math.Max(0.0, 1.0-upcomingDist/vtscLookaheadDist)
		preSlow := vAhead + fraction*(vAhead-vTarget)
		if preSlow < vTarget {
			vTarget = preSlow
		}
	}

	// Jerk-limited deceleration tracker.
	desiredDecel := 0.0
	if vTarget < vEgo {
		desiredDecel = clampFloat(vEgo-vTarget, 0.0, vtscMaxDecel)
	}
	diff := desiredDecel - c.currentDecel
	maxDelta := vtscMaxJerk * c.dt
	switch {
	case diff > maxDelta:
		c.currentDecel += maxDelta
	case diff < -maxDelta:
		c.currentDecel -= maxDelta
	default:
		c.currentDecel = desiredDecel
	}

	target := vEgo - c.currentDecel*c.dt
	if vTarget < target {
		target = vTarget
	}
	c.prevTarget = target
	return target
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
