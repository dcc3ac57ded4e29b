package longitudinal

import (
	"fmt"
	"time"

	"long-decision-core/utils"
)

// PlannerMode selects the planning regime.
type PlannerMode string

const (
	// ModeACC plans against obstacles only: leads plus a synthetic cruise
	// obstacle. Reference trajectories are ignored.
	ModeACC PlannerMode = "acc"
	// ModeBlended tracks the upstream path model, limited by the cruise
	// speed and the lead constraints.
	ModeBlended PlannerMode = "blended"
)

// ObstacleSource names the constraint currently binding the plan.
type ObstacleSource string

const (
	SourceLead0  ObstacleSource = "lead0"
	SourceLead1  ObstacleSource = "lead1"
	SourceCruise ObstacleSource = "cruise"
	SourceE2E    ObstacleSource = "e2e"
)

// mpcWarnInterval rate-limits solver divergence warnings.
const mpcWarnInterval = 5 * time.Second

// LongitudinalMPC owns the receding-horizon solve. It is not reentrant: the
// external driver must call SetCurState then Update exactly once per tick.
type LongitudinalMPC struct {
	mode          PlannerMode
	dt            float64
	solver        HorizonSolver
	log           *utils.Logger
	personalities PersonalityTable

	// Last successfully applied SetWeights arguments, restored on reset so a
	// divergence recovery keeps the configured personality.
	personality         Personality
	prevAccelConstraint bool

	x0     [XDim]float64
	xSol   [][]float64
	params [][]float64
	yref   [][]float64
	prevA  []float64

	baseCostWeights       [CostDim]float64
	baseConstraintWeights [ConstrDim]float64
	jerkFactors           JerkTriple

	cruiseMinA float64
	maxA       float64

	// Outputs of the last Update.
	VSolution      []float64
	ASolution      []float64
	JSolution      []float64
	Source         ObstacleSource
	LeadTracked    bool
	SolutionStatus int
	CrashCount     int
	LastStats      SolveStats
}

// NewLongitudinalMPC builds a planner in the given mode. An unrecognized mode
// is a configuration error, caught here rather than at runtime.
func NewLongitudinalMPC(mode PlannerMode, solver HorizonSolver, table PersonalityTable, log *utils.Logger) (*LongitudinalMPC, error) {
	if mode != ModeACC && mode != ModeBlended {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
	m := &LongitudinalMPC{
		mode:                mode,
		dt:                  TickDT,
		solver:              solver,
		log:                 log,
		personalities:       table,
		personality:         PersonalityStandard,
		prevAccelConstraint: true,
		xSol:                makeGrid(HorizonN+1, XDim),
		params:              makeGrid(HorizonN+1, ParamDim),
		yref:                makeGrid(HorizonN+1, CostDim),
		prevA:               make([]float64, HorizonN+1),
		VSolution:           make([]float64, HorizonN+1),
		ASolution:           make([]float64, HorizonN+1),
		JSolution:           make([]float64, HorizonN),
		cruiseMinA:          -1.2,
		maxA:                1.2,
	}
	m.Reset()
	m.Source = SourceCruise
	return m, nil
}

// Mode reports the configured planner mode.
func (m *LongitudinalMPC) Mode() PlannerMode { return m.mode }

// Reset clears all solver and planner state. The next tick's output is the
// neutral all-zero trajectory.
func (m *LongitudinalMPC) Reset() {
	m.solver.Reset()

	for i := range m.VSolution {
		m.VSolution[i] = 0
		m.ASolution[i] = 0
		m.prevA[i] = 0
	}
	for i := range m.JSolution {
		m.JSolution[i] = 0
	}
	zeroGrid(m.xSol)
	zeroGrid(m.params)
	zeroGrid(m.yref)

	for i := 0; i < HorizonN; i++ {
		m.solver.SetRef(i, m.yref[i])
	}
	m.solver.SetRef(HorizonN, m.yref[HorizonN][:CostEDim])

	zero := make([]float64, XDim)
	for i := 0; i <= HorizonN; i++ {
		m.solver.SetStateGuess(i, zero)
	}

	m.x0 = [XDim]float64{}
	m.SolutionStatus = 0
	m.CrashCount = 0
	m.LeadTracked = false
	m.LastStats = SolveStats{}
	// Mode and personality were both validated when they were last applied,
	// so re-applying them cannot fail.
	_ = m.SetWeights(m.personality, m.prevAccelConstraint)
}

// SetWeights rebuilds the base cost and constraint vectors for the configured
// mode and personality and pushes them to every stage.
func (m *LongitudinalMPC) SetWeights(p Personality, prevAccelConstraint bool) error {
	jt, err := m.personalities.JerkFactors(p)
	if err != nil {
		return err
	}
	m.jerkFactors = jt
	m.personality = p
	m.prevAccelConstraint = prevAccelConstraint

	switch m.mode {
	case ModeACC:
		aChange := 0.0
		if prevAccelConstraint {
			aChange = AChangeCost
		}
		m.baseCostWeights = [CostDim]float64{
			XEgoObstacleCost, XEgoCost, VEgoCost, AEgoCost, aChange, JEgoCost * jt.Accel,
		}
		m.baseConstraintWeights = [ConstrDim]float64{LimitCost, LimitCost, LimitCost, jt.Danger}
	case ModeBlended:
		aChange := 0.0
		if prevAccelConstraint {
			aChange = 40.0
		}
		m.baseCostWeights = [CostDim]float64{0, 0.1, 0.2, 5.0, aChange, 1.0 * jt.Accel}
		m.baseConstraintWeights = [ConstrDim]float64{LimitCost, LimitCost, LimitCost, 50.0}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedMode, m.mode)
	}

	m.pushCostWeights()
	return nil
}

var aChangeTaperT = []float64{0.0, 1.0, 2.0}
var aChangeTaperV = []float64{1.0, 1.0, 0.3}

func (m *LongitudinalMPC) pushCostWeights() {
	w := make([]float64, CostDim)
	for i := 0; i < HorizonN; i++ {
		copy(w, m.baseCostWeights[:])
		w[4] = m.baseCostWeights[4] * interpOn(TIdx[i], aChangeTaperT, aChangeTaperV)
		m.solver.SetWeights(i, w)
	}
	m.solver.SetWeights(HorizonN, w[:CostEDim])

	zl := make([]float64, ConstrDim)
	copy(zl, m.baseConstraintWeights[:])
	for i := 0; i < HorizonN; i++ {
		m.solver.SetConstraintWeights(i, zl)
	}
}

// SetAccelLimits sets the acceleration envelope passed to every stage.
func (m *LongitudinalMPC) SetAccelLimits(minA, maxA float64) {
	m.cruiseMinA = minA
	m.maxA = maxA
}

// SetCurState updates the initial condition. A speed jump above 2 m/s means
// the prior trajectory is stale (e.g. re-engagement), so every stage's state
// guess is forced to the new initial condition.
func (m *LongitudinalMPC) SetCurState(v, a float64) {
	vPrev := m.x0[1]
	m.x0[1] = v
	m.x0[2] = a
	if abs(vPrev-v) > 2.0 {
		for i := 0; i <= HorizonN; i++ {
			m.solver.SetStateGuess(i, m.x0[:])
		}
	}
}

// Update runs one planning cycle against the given leads, cruise target and
// reference, then solves. Outputs land in the exported solution fields.
func (m *LongitudinalMPC) Update(leadOne, leadTwo LeadState, vCruise float64, ref Reference, tFollow float64) {
	vEgo := m.x0[1]
	m.LeadTracked = leadOne.Valid || leadTwo.Valid

	lead0 := ProcessLead(leadOne, vEgo)
	lead1 := ProcessLead(leadTwo, vEgo)

	var lead0Obst, lead1Obst [HorizonN + 1]float64
	for i := 0; i <= HorizonN; i++ {
		lead0Obst[i] = lead0.X[i] + StoppedEquivalence(lead0.V[i])
		lead1Obst[i] = lead1.X[i] + StoppedEquivalence(lead1.V[i])
	}

	for i := 0; i <= HorizonN; i++ {
		m.params[i][ParamAMin] = m.cruiseMinA
		m.params[i][ParamAMax] = m.maxA
	}

	x, v, a, j := ref.X, ref.V, ref.A, ref.J
	var xObst [HorizonN + 1]float64

	switch m.mode {
	case ModeACC:
		for i := 0; i <= HorizonN; i++ {
			m.params[i][ParamDangerFactor] = LeadDangerFactor
		}

		// Treat the cruise speed as a third obstacle: integrate a cruise
		// profile clipped to the reachable acceleration envelope, then add
		// the safe-following buffer.
		var vClipped, cruiseObst [HorizonN + 1]float64
		for i := 0; i <= HorizonN; i++ {
			vLower := vEgo + TIdx[i]*m.cruiseMinA*1.05
			vUpper := vEgo + TIdx[i]*m.maxA*1.05
			vClipped[i] = clampFloat(vCruise, vLower, vUpper)
		}
		cum := 0.0
		for i := 0; i <= HorizonN; i++ {
			cum += TDiff[i] * vClipped[i]
			cruiseObst[i] = cum + SafeObstacleDistance(vClipped[i], tFollow)
		}

		m.Source = SourceCruise
		if lead0Obst[0] <= lead1Obst[0] && lead0Obst[0] <= cruiseObst[0] {
			m.Source = SourceLead0
		} else if lead1Obst[0] <= cruiseObst[0] {
			m.Source = SourceLead1
		}

		// Pure obstacle avoidance: the reference path is zeroed.
		x = [HorizonN + 1]float64{}
		v = [HorizonN + 1]float64{}
		a = [HorizonN + 1]float64{}
		j = [HorizonN + 1]float64{}

		for i := 0; i <= HorizonN; i++ {
			xObst[i] = min3(lead0Obst[i], lead1Obst[i], cruiseObst[i])
		}

	case ModeBlended:
		for i := 0; i <= HorizonN; i++ {
			m.params[i][ParamDangerFactor] = 1.0
		}

		var cruiseTarget, xPath [HorizonN + 1]float64
		vCruiseFloor := clampFloat(vCruise, vEgo-2.0, 1e3)
		for i := 0; i <= HorizonN; i++ {
			cruiseTarget[i] = TIdx[i]*vCruiseFloor + x[0]
		}
		xPath[0] = x[0]
		for i := 0; i < HorizonN; i++ {
			xPath[i+1] = xPath[i] + (v[i+1]+v[i])/2*TDiff[i+1]
		}

		// Tie-break at stage 1, not stage 0: both candidates share x[0].
		if xPath[1] < cruiseTarget[1] {
			m.Source = SourceE2E
		} else {
			m.Source = SourceCruise
		}

		for i := 0; i <= HorizonN; i++ {
			if xPath[i] < cruiseTarget[i] {
				x[i] = xPath[i]
			} else {
				x[i] = cruiseTarget[i]
			}
			xObst[i] = lead0Obst[i]
			if lead1Obst[i] < xObst[i] {
				xObst[i] = lead1Obst[i]
			}
		}
	}

	for i := 0; i <= HorizonN; i++ {
		m.yref[i][1] = x[i]
		m.yref[i][2] = v[i]
		m.yref[i][3] = a[i]
		m.yref[i][5] = j[i]
	}
	for i := 0; i < HorizonN; i++ {
		m.solver.SetRef(i, m.yref[i])
	}
	m.solver.SetRef(HorizonN, m.yref[HorizonN][:CostEDim])

	for i := 0; i <= HorizonN; i++ {
		m.params[i][ParamXObstacle] = xObst[i]
		m.params[i][ParamPrevA] = m.prevA[i]
		m.params[i][ParamTFollow] = tFollow
	}

	// Dynamic cost shaping always reads the previous cycle's solution, never
	// an in-progress solve.
	m.applyDynamicCosts(lead0)

	m.run()

	// Forward collision warning against the primary lead's prediction.
	crash := false
	for i := 0; i < fcwStages; i++ {
		if lead0.X[i]-m.xSol[i][0] < CrashDistance {
			crash = true
			break
		}
	}
	if crash && leadOne.Prob > 0.9 {
		m.CrashCount++
	} else {
		m.CrashCount = 0
	}

	if m.mode == ModeBlended {
		if m.violatesSafeGap(lead0Obst, tFollow) {
			m.Source = SourceLead0
		}
		// lead1 is only eligible when it sits farther than lead0 at the
		// first stage, so overlapping leads cannot flip the attribution.
		if m.violatesSafeGap(lead1Obst, tFollow) && lead1Obst[0] > lead0Obst[0] {
			m.Source = SourceLead1
		}
	}
}

func (m *LongitudinalMPC) violatesSafeGap(obstacle [HorizonN + 1]float64, tFollow float64) bool {
	for i := 0; i <= HorizonN; i++ {
		gap := obstacle[i] - SafeObstacleDistance(m.xSol[i][1], tFollow)
		if gap-m.xSol[i][0] < 0.0 {
			return true
		}
	}
	return false
}

func (m *LongitudinalMPC) applyDynamicCosts(lead LeadTrajectory) {
	baseJCost := JEgoCost * m.jerkFactors.Accel

	xObstArr := make([]float64, HorizonN+1)
	xEgoArr := make([]float64, HorizonN+1)
	vEgoArr := make([]float64, HorizonN+1)
	tFollowArr := make([]float64, HorizonN+1)
	for i := 0; i <= HorizonN; i++ {
		xObstArr[i] = m.params[i][ParamXObstacle]
		xEgoArr[i] = m.xSol[i][0]
		vEgoArr[i] = m.xSol[i][1]
		tFollowArr[i] = m.params[i][ParamTFollow]
	}
	dynJerk := SmoothJerkCostArray(xObstArr, xEgoArr, vEgoArr, lead.V[:], tFollowArr, DefaultJerkCostParams(baseJCost))

	distBase := m.baseCostWeights[0]
	aChange := m.baseCostWeights[4]

	w := make([]float64, CostDim)
	zl := make([]float64, ConstrDim)
	for i := 0; i < HorizonN; i++ {
		copy(w, m.baseCostWeights[:])
		w[4] = aChange * interpOn(TIdx[i], aChangeTaperT, aChangeTaperV)
		w[5] = dynJerk[i]

		xEgoI, vEgoI := m.xSol[i][0], m.xSol[i][1]
		xLeadI, vLeadI := lead.X[i], lead.V[i]
		tFollowI := m.params[i][ParamTFollow]

		pullaway := PullawayDistanceCost(xEgoI, vEgoI, xLeadI, vLeadI, tFollowI, distBase, 5.0, 2.0, 2.0)
		approach := ApproachFactor(xLeadI, xEgoI, vEgoI, vLeadI, tFollowI, 5.0, 1.5, 1.0)
		w[0] = distBase * clampFloat(pullaway*approach, 1.0, 1.3)

		penalty := LeadConstraintWeight(m.params[i][ParamXObstacle], xEgoI, vEgoI, vLeadI, tFollowI, 5.0, 2.0, 2.0)
		zl[0], zl[1], zl[2], zl[3] = LimitCost, LimitCost, LimitCost, penalty
		m.solver.SetConstraintWeights(i, zl)
		m.solver.SetWeights(i, w)
	}
	m.solver.SetWeights(HorizonN, m.baseCostWeights[:CostEDim])
}

func (m *LongitudinalMPC) run() {
	for i := 0; i <= HorizonN; i++ {
		m.solver.SetParams(i, m.params[i])
	}
	m.solver.PinInitialState(m.x0[:])

	m.SolutionStatus = m.solver.Solve()
	m.LastStats = m.solver.Stats()

	for i := 0; i <= HorizonN; i++ {
		copy(m.xSol[i], m.solver.State(i))
		m.VSolution[i] = m.xSol[i][1]
		m.ASolution[i] = m.xSol[i][2]
	}
	for i := 0; i < HorizonN; i++ {
		m.JSolution[i] = m.solver.Control(i)[0]
	}

	// Shift the solved acceleration curve by one tick for the next cycle's
	// prev-accel reference.
	for i := 0; i <= HorizonN; i++ {
		m.prevA[i] = interpOn(TIdx[i]+m.dt, TIdx[:], m.ASolution)
	}

	if m.SolutionStatus != 0 {
		status := m.SolutionStatus
		if m.log != nil {
			m.log.WarnEvery(mpcWarnInterval, "long mpc reset, solution status: %d", status)
		}
		m.Reset()
		m.SolutionStatus = status
	}
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
