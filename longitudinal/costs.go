package longitudinal

import "math"

// Base cost weights shared by both planner modes.
const (
	XEgoObstacleCost = 3.0
	XEgoCost         = 0.0
	VEgoCost         = 0.0
	AEgoCost         = 0.0
	JEgoCost         = 12.0 // base jerk cost, raised to damp fast oscillations
	AChangeCost      = 300.0

	LimitCost = 1e6

	CrashDistance    = 0.25
	LeadDangerFactor = 0.75
)

// JerkCostParams shapes SmoothJerkCostArray.
type JerkCostParams struct {
	BaseJerkCost      float64
	LowJerkCost       float64
	LogisticKDist     float64
	LogisticKSpeed    float64
	MinClosingSpeed   float64
	DistanceSmoothing float64
	TimeTaper         bool
	SpeedFactor       float64
}

// DefaultJerkCostParams returns the tuning used by the planner each cycle.
func DefaultJerkCostParams(baseJerkCost float64) JerkCostParams {
	return JerkCostParams{
		BaseJerkCost:      baseJerkCost,
		LowJerkCost:       0.5,
		LogisticKDist:     5.0,
		LogisticKSpeed:    2.0,
		MinClosingSpeed:   0.3,
		DistanceSmoothing: 4.0,
		TimeTaper:         true,
		SpeedFactor:       1.0,
	}
}

// SmoothJerkCostArray returns per-stage jerk costs that rise when the gap is
// short of desired or the ego is closing on the lead. The time taper inflates
// the earliest stages up to 1.2x, decaying linearly to 1.0 by 2 s, so the
// solver cannot spend big jerk right at the start of the horizon.
func SmoothJerkCostArray(xObstacle, xEgo, vEgo, vLead, tFollow []float64, p JerkCostParams) []float64 {
	n := len(xObstacle)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		desired := DesiredFollowDistance(vEgo[i], vLead[i], tFollow[i])
		current := xObstacle[i] - xEgo[i]

		distRatio := (desired - current) / (desired + p.DistanceSmoothing)
		distLogistic := logistic(p.LogisticKDist * distRatio)

		closing := vEgo[i] - vLead[i] - p.MinClosingSpeed
		speedLogistic := logistic(p.LogisticKSpeed * closing)

		cost := p.LowJerkCost + distLogistic*speedLogistic*(p.BaseJerkCost-p.LowJerkCost)

		if p.TimeTaper {
			cost *= taperFactor(TIdx[i])
		}
		out[i] = cost * p.SpeedFactor
	}
	return out
}

func taperFactor(t float64) float64 {
	if t > 2.0 {
		return 1.0
	}
	alpha := t / 2.0
	return 1.2 + (1.0-1.2)*alpha
}

// ApproachFactor scales the distance cost up when the actual gap falls short
// of the desired gap, through a logistic ramp bounded by maxMult.
func ApproachFactor(xObstacle, xEgo, vEgo, vLead, tFollow, margin, maxMult, logisticK float64) float64 {
	desired := DesiredFollowDistance(vEgo, vLead, tFollow)
	deficit := desired - (xObstacle - xEgo)
	if deficit <= 0 {
		return 1.0
	}
	z := deficit / math.Max(1e-6, margin)
	return 1.0 + (maxMult-1.0)*logistic(logisticK*(z-0.5))
}

// pullawayHardCap bounds the pullaway multiplier regardless of the configured
// ceiling. Higher values force stronger acceleration after a pulling-away
// lead and cause bucking.
const pullawayHardCap = 1.3

// PullawayDistanceCost scales the distance cost when the lead is both ahead
// of the desired gap and faster than the ego, proportional to the smaller of
// the normalized distance excess and speed excess.
func PullawayDistanceCost(xEgo, vEgo, xLead, vLead, tFollow, baseCost, distMargin, speedMargin, maxFactor float64) float64 {
	maxFactor = math.Min(pullawayHardCap, maxFactor)

	desired := DesiredFollowDistance(vEgo, vLead, tFollow)
	gapExcess := (xLead - xEgo) - desired
	speedDiff := vLead - vEgo
	if gapExcess <= 0 || speedDiff <= 0 {
		return baseCost
	}

	z := math.Min(gapExcess/distMargin, speedDiff/speedMargin)
	factor := clampFloat(1.0+z*(maxFactor-1.0), 1.0, maxFactor)
	return baseCost * factor
}

// LeadConstraintWeight maps normalized gap and closing-speed errors into a
// soft-constraint penalty for the lead danger term. This is a Lagrangian
// weight, not a hard bound: extreme scenarios raise the penalty instead of
// making the problem infeasible.
func LeadConstraintWeight(xObstacle, xEgo, vEgo, vLead, tFollow, minPenalty, distMargin, speedMargin float64) float64 {
	const safeUpper = 10000.0
	const logisticK = 1.5

	desired := SafeObstacleDistance(vEgo, tFollow)
	gapError := desired - (xObstacle - xEgo)
	closing := vEgo - vLead

	z := gapError/distMargin + closing/speedMargin
	val := logistic(logisticK * (z - 0.5))
	return minPenalty + val*(safeUpper-minPenalty)
}

func logistic(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func expNeg(z float64) float64 {
	return math.Exp(-z)
}
