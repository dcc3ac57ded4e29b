package longitudinal

// The planner solves over a fixed horizon of HorizonN intervals spanning
// MaxHorizonT seconds. The grid is quadratic in the stage index, so early
// stages are densely spaced where resolution matters most.

const (
	// HorizonN is the number of control intervals; there are HorizonN+1 states.
	HorizonN = 12

	// MaxHorizonT is the horizon length in seconds.
	MaxHorizonT = 10.0

	// TickDT is the control tick duration in seconds.
	TickDT = 0.05
)

// Solver problem dimensions.
const (
	XDim      = 3 // position, speed, acceleration
	UDim      = 1 // jerk
	ParamDim  = 6 // aMin, aMax, xObstacle, prevA, tFollow, leadDangerFactor
	CostDim   = 6
	CostEDim  = 5 // terminal stage omits the jerk term
	ConstrDim = 4
)

// Parameter vector indices.
const (
	ParamAMin = iota
	ParamAMax
	ParamXObstacle
	ParamPrevA
	ParamTFollow
	ParamDangerFactor
)

var (
	// TIdx holds the horizon sample times.
	TIdx [HorizonN + 1]float64

	// TDiff holds per-step time deltas, with TDiff[0] == 0.
	TDiff [HorizonN + 1]float64

	// fcwStages is the number of leading stages inside the 5 s collision
	// warning window.
	fcwStages int
)

func init() {
	for i := range TIdx {
		frac := float64(i) / float64(HorizonN)
		TIdx[i] = MaxHorizonT * frac * frac
	}
	for i := 1; i < len(TIdx); i++ {
		TDiff[i] = TIdx[i] - TIdx[i-1]
	}
	for _, t := range TIdx {
		if t < 5.0 {
			fcwStages++
		}
	}
}

// HorizonTrajectory is a solved plan over the horizon grid.
type HorizonTrajectory struct {
	Position [HorizonN + 1]float64
	Speed    [HorizonN + 1]float64
	Accel    [HorizonN + 1]float64
	Jerk     [HorizonN]float64
}

// Reference carries the per-stage tracking targets handed to Update. In ACC
// mode the planner zeroes them; in blended mode they come from the upstream
// path model.
type Reference struct {
	X [HorizonN + 1]float64
	V [HorizonN + 1]float64
	A [HorizonN + 1]float64
	J [HorizonN + 1]float64
}

// interpOn evaluates the piecewise-linear function defined by (xs, ys) at x,
// clamping to the endpoint values outside the sampled range.
func interpOn(x float64, xs, ys []float64) float64 {
	if x <= xs[0] {
		return ys[0]
	}
	last := len(xs) - 1
	if x >= xs[last] {
		return ys[last]
	}
	for i := 1; i <= last; i++ {
		if x <= xs[i] {
			frac := (x - xs[i-1]) / (xs[i] - xs[i-1])
			return ys[i-1] + frac*(ys[i]-ys[i-1])
		}
	}
	return ys[last]
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
