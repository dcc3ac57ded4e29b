package longitudinal

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// SolveStats is the per-solve timing telemetry exposed by a solver.
type SolveStats struct {
	SolveTime     time.Duration
	LinearizeTime time.Duration
	FactorizeTime time.Duration
	Iterations    int
}

// HorizonSolver is the injected solver capability consumed by the planner.
// Implementations hold the full fixed-horizon problem: per-stage parameter
// vectors, cost references, diagonal weight matrices and soft-constraint
// weights, plus the pinned initial state. Solve returns 0 on success.
type HorizonSolver interface {
	Reset()
	SetStateGuess(stage int, x []float64)
	SetParams(stage int, p []float64)
	SetRef(stage int, yref []float64)
	SetWeights(stage int, w []float64)
	SetConstraintWeights(stage int, zl []float64)
	PinInitialState(x0 []float64)
	Solve() int
	State(stage int) []float64
	Control(stage int) []float64
	Stats() SolveStats
}

// Solve status codes reported by SQPSolver.
const (
	solveOK          = 0
	solveNonFinite   = 1
	solveFactorError = 2
)

// SQPSolver is a purpose-built fixed-horizon solver for the longitudinal
// problem. The triple-integrator dynamics are linear, so states are obtained
// by exact single-shooting rollout from the pinned initial state and the only
// decision variables are the per-interval jerks. Each iteration linearizes
// the weighted cost and hinge-squared soft-constraint residuals with numeric
// Jacobians and takes a damped Gauss-Newton step.
type SQPSolver struct {
	modelID string
	n       int

	x0     []float64
	u      []float64 // warm start and solution, one jerk per interval
	xGuess [][]float64
	params [][]float64
	yref   [][]float64
	wDiag  [][]float64
	zl     [][]float64

	xSol [][]float64
	uSol [][]float64

	stats SolveStats
}

// NewSQPSolver constructs a solver for the given model id and horizon length.
func NewSQPSolver(modelID string, n int) *SQPSolver {
	s := &SQPSolver{modelID: modelID, n: n}
	s.x0 = make([]float64, XDim)
	s.u = make([]float64, n)
	s.xGuess = makeGrid(n+1, XDim)
	s.params = makeGrid(n+1, ParamDim)
	s.yref = makeGrid(n+1, CostDim)
	s.wDiag = makeGrid(n+1, CostDim)
	s.zl = makeGrid(n+1, ConstrDim)
	s.xSol = makeGrid(n+1, XDim)
	s.uSol = makeGrid(n, UDim)
	return s
}

func makeGrid(rows, cols int) [][]float64 {
	g := make([][]float64, rows)
	for i := range g {
		g[i] = make([]float64, cols)
	}
	return g
}

func zeroGrid(g [][]float64) {
	for i := range g {
		for j := range g[i] {
			g[i][j] = 0
		}
	}
}

func (s *SQPSolver) Reset() {
	for i := range s.x0 {
		s.x0[i] = 0
	}
	for i := range s.u {
		s.u[i] = 0
	}
	zeroGrid(s.xGuess)
	zeroGrid(s.params)
	zeroGrid(s.yref)
	zeroGrid(s.wDiag)
	zeroGrid(s.zl)
	zeroGrid(s.xSol)
	zeroGrid(s.uSol)
	s.stats = SolveStats{}
}

func (s *SQPSolver) SetStateGuess(stage int, x []float64) { copy(s.xGuess[stage], x) }
func (s *SQPSolver) SetParams(stage int, p []float64)     { copy(s.params[stage], p) }
func (s *SQPSolver) SetRef(stage int, yref []float64)     { copy(s.yref[stage], yref) }
func (s *SQPSolver) SetWeights(stage int, w []float64)    { copy(s.wDiag[stage], w) }

func (s *SQPSolver) SetConstraintWeights(stage int, zl []float64) { copy(s.zl[stage], zl) }

func (s *SQPSolver) PinInitialState(x0 []float64) {
	copy(s.x0, x0)
	copy(s.xGuess[0], x0)
}

func (s *SQPSolver) State(stage int) []float64   { return s.xSol[stage] }
func (s *SQPSolver) Control(stage int) []float64 { return s.uSol[stage] }
func (s *SQPSolver) Stats() SolveStats           { return s.stats }

// residualLen is cost residuals for every stage (terminal truncated) plus
// soft-constraint residuals for the path stages.
func (s *SQPSolver) residualLen() int {
	return s.n*CostDim + CostEDim + s.n*ConstrDim
}

const (
	sqpMaxIter   = 30
	sqpFDEps     = 1e-4
	sqpDamping   = 1e-6
	sqpStepTol   = 1e-7
	sqpBacktrack = 8
)

func (s *SQPSolver) Solve() int {
	start := time.Now()
	s.stats = SolveStats{}

	// Warm start from the stored state guesses: under the triple integrator
	// the guessed acceleration profile determines the jerk sequence exactly,
	// so a solved trajectory carries over unchanged and a re-seeded constant
	// guess clears the warm start.
	for i := 0; i < s.n; i++ {
		s.u[i] = (s.xGuess[i+1][2] - s.xGuess[i][2]) / TDiff[i+1]
	}

	m := s.residualLen()
	r := make([]float64, m)
	rTrial := make([]float64, m)
	uTrial := make([]float64, s.n)
	jac := mat.NewDense(m+s.n, s.n, nil)
	rhs := mat.NewVecDense(m+s.n, nil)
	var delta mat.VecDense

	status := solveOK
	s.residuals(s.u, r)
	cost := halfSquaredNorm(r)
	if !isFinite(cost) {
		status = solveNonFinite
	}

	for iter := 0; status == solveOK && iter < sqpMaxIter; iter++ {
		s.stats.Iterations = iter + 1

		linStart := time.Now()
		for k := 0; k < s.n; k++ {
			copy(uTrial, s.u)
			uTrial[k] += sqpFDEps
			s.residuals(uTrial, rTrial)
			for row := 0; row < m; row++ {
				jac.Set(row, k, (rTrial[row]-r[row])/sqpFDEps)
			}
		}
		// Tikhonov rows keep the least-squares system full rank.
		damp := math.Sqrt(sqpDamping)
		for k := 0; k < s.n; k++ {
			for kk := 0; kk < s.n; kk++ {
				v := 0.0
				if k == kk {
					v = damp
				}
				jac.Set(m+k, kk, v)
			}
		}
		for row := 0; row < m; row++ {
			rhs.SetVec(row, -r[row])
		}
		for k := 0; k < s.n; k++ {
			rhs.SetVec(m+k, 0)
		}
		s.stats.LinearizeTime += time.Since(linStart)

		facStart := time.Now()
		var qr mat.QR
		qr.Factorize(jac)
		if err := qr.SolveVecTo(&delta, false, rhs); err != nil {
			status = solveFactorError
			s.stats.FactorizeTime += time.Since(facStart)
			break
		}
		s.stats.FactorizeTime += time.Since(facStart)

		stepNorm := mat.Norm(&delta, 2)
		if !isFinite(stepNorm) {
			status = solveNonFinite
			break
		}
		if stepNorm < sqpStepTol {
			break
		}

		// Backtracking line search on the squared residual norm.
		alpha := 1.0
		improved := false
		for bt := 0; bt < sqpBacktrack; bt++ {
			for k := 0; k < s.n; k++ {
				uTrial[k] = s.u[k] + alpha*delta.AtVec(k)
			}
			s.residuals(uTrial, rTrial)
			trialCost := halfSquaredNorm(rTrial)
			if isFinite(trialCost) && trialCost < cost {
				copy(s.u, uTrial)
				copy(r, rTrial)
				cost = trialCost
				improved = true
				break
			}
			alpha /= 2
		}
		if !improved {
			break
		}
	}

	states := s.rollout(s.u)
	for i := 0; i <= s.n; i++ {
		copy(s.xSol[i], states[i])
		copy(s.xGuess[i], states[i])
		if !isFinite(states[i][0]) || !isFinite(states[i][1]) || !isFinite(states[i][2]) {
			status = solveNonFinite
		}
	}
	for i := 0; i < s.n; i++ {
		s.uSol[i][0] = s.u[i]
	}

	s.stats.SolveTime = time.Since(start)
	return status
}

// rollout integrates the triple-integrator dynamics exactly over the
// non-uniform grid.
func (s *SQPSolver) rollout(u []float64) [][]float64 {
	states := makeGrid(s.n+1, XDim)
	copy(states[0], s.x0)
	for i := 0; i < s.n; i++ {
		dt := TDiff[i+1]
		x, v, a := states[i][0], states[i][1], states[i][2]
		j := u[i]
		states[i+1][0] = x + v*dt + a*dt*dt/2 + j*dt*dt*dt/6
		states[i+1][1] = v + a*dt + j*dt*dt/2
		states[i+1][2] = a + j*dt
	}
	return states
}

// residuals fills r with the weighted cost and soft-constraint residuals for
// the candidate input sequence u.
func (s *SQPSolver) residuals(u []float64, r []float64) {
	states := s.rollout(u)
	idx := 0

	var y [CostDim]float64
	for i := 0; i <= s.n; i++ {
		p := s.params[i]
		xEgo, vEgo, aEgo := states[i][0], states[i][1], states[i][2]

		safeDist := SafeObstacleDistance(vEgo, p[ParamTFollow])
		rawGap := (p[ParamXObstacle] - xEgo) - safeDist
		// Distance error with mild speed weighting: absolute gap blended
		// with a gap normalized by speed, so low-speed errors matter more.
		const alpha = 0.6
		const smallSpeedOffset = 5.0
		y[0] = alpha*rawGap + (1.0-alpha)*rawGap/(vEgo+smallSpeedOffset)
		y[1] = xEgo
		y[2] = vEgo
		y[3] = aEgo
		y[4] = aEgo - p[ParamPrevA]

		dim := CostDim
		if i == s.n {
			dim = CostEDim
		} else {
			y[5] = u[i]
		}
		for k := 0; k < dim; k++ {
			r[idx] = math.Sqrt(math.Max(0, s.wDiag[i][k])) * (y[k] - s.yref[i][k])
			idx++
		}
	}

	for i := 0; i < s.n; i++ {
		p := s.params[i]
		xEgo, vEgo, aEgo := states[i][0], states[i][1], states[i][2]
		safeDist := SafeObstacleDistance(vEgo, p[ParamTFollow])

		h := [ConstrDim]float64{
			vEgo,
			aEgo - p[ParamAMin],
			p[ParamAMax] - aEgo,
			(p[ParamXObstacle] - xEgo) - p[ParamDangerFactor]*safeDist,
		}
		for k := 0; k < ConstrDim; k++ {
			viol := math.Max(0, -h[k])
			r[idx] = math.Sqrt(math.Max(0, s.zl[i][k])) * viol
			idx++
		}
	}
}

func halfSquaredNorm(r []float64) float64 {
	sum := 0.0
	for _, v := range r {
		sum += v * v
	}
	return sum / 2
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
