package cruise

import "math"

// Sentinel values on the cruise command interface.
const (
	// StopSentinel is returned when the arbiter wants a full stop.
	StopSentinel = -1.0
	// VCruiseUnset is the stock "no cruise speed set" marker.
	VCruiseUnset = 255.0
)

// DefaultCruiseFloor is the minimum speed (m/s, ~15 mph) a curve or limit
// advisor may command; anything at or below it is treated as inactive.
const DefaultCruiseFloor = 6.7

// DefaultPlannerTime converts tracked stopping distance to a target speed.
const DefaultPlannerTime = 10.0

const (
	forceStopDebounce = 1.0  // s a stop feature must persist before acting
	forceStopOverride = 10.0 // s an override suppresses re-engagement
	maxStopPathLength = 100.0
)

// Toggles is the per-tick snapshot of user feature switches.
type Toggles struct {
	ForceStops      bool
	ForceStandstill bool

	MapTurnControl        bool
	MapTurnCurvatureCheck bool

	ShowSpeedLimits              bool
	SpeedLimitControl            bool
	SpeedLimitConfirmation       bool
	SpeedLimitConfirmationLower  bool
	SpeedLimitConfirmationHigher bool
	SpeedLimitOverrideManual     bool
	SpeedLimitOverrideSetSpeed   bool

	VisionTurnControl  bool
	TurnAggressiveness float64
}

// TickInput carries one tick of vehicle and perception state. All speeds
// are m/s; cluster values are the dash-displayed equivalents and may read
// slightly high.
type TickInput struct {
	VEgo           float64
	AEgo           float64
	VEgoCluster    float64
	VCruise        float64
	VCruiseCluster float64

	Standstill   bool
	GasPressed   bool
	AccelPressed bool
	DecelPressed bool
	Enabled      bool
	LongActive   bool

	SpeedLimitConfirmed bool

	StopFeatureDetected bool
	TrackedPathLength   float64
	TrackingLead        bool

	RoadCurvature     float64
	UpcomingCurveDist float64
	UpcomingCurvature float64
}

// MapTurnAdvisor proposes a curve speed from map data.
type MapTurnAdvisor interface {
	TargetSpeed(vEgo, aEgo float64) float64
}

// SpeedLimitAdvisor resolves the posted limit from its sources.
type SpeedLimitAdvisor interface {
	Update(vCruiseCluster, vEgo float64, enabled bool)
	DesiredLimit() float64
}

// Config holds the arbiter tunables.
type Config struct {
	CruiseFloor float64
	PlannerTime float64
	DT          float64
}

func DefaultConfig() Config {
	return Config{CruiseFloor: DefaultCruiseFloor, PlannerTime: DefaultPlannerTime, DT: 0.05}
}

// Arbiter owns the cruise speed decision: forced stops, map and vision turn
// speeds and speed limit control all compete, and the lowest meaningful
// target wins.
type Arbiter struct {
	cfg Config

	mapAdvisor MapTurnAdvisor
	slcAdvisor SpeedLimitAdvisor
	vtsc       *VisionTurnSpeedController

	forceStopTimer         float64
	overrideForceStop      bool
	overrideForceStopTimer float64
	forcingStop            bool
	trackedStopLength      float64

	mtscTarget float64
	vtscTarget float64

	slcTarget         float64
	speedLimitChanged bool
	speedLimitTimer   int
	overrideSlc       bool
	overriddenSpeed   float64

	lastCommand float64
}

func NewArbiter(cfg Config, mapAdvisor MapTurnAdvisor, slcAdvisor SpeedLimitAdvisor) *Arbiter {
	if cfg.CruiseFloor <= 0 {
		cfg.CruiseFloor = DefaultCruiseFloor
	}
	if cfg.PlannerTime <= 0 {
		cfg.PlannerTime = DefaultPlannerTime
	}
	if cfg.DT <= 0 {
		cfg.DT = 0.05
	}
	return &Arbiter{
		cfg:        cfg,
		mapAdvisor: mapAdvisor,
		slcAdvisor: slcAdvisor,
		vtsc:       NewVisionTurnSpeedController(cfg.CruiseFloor, cfg.DT),
	}
}

// ForcingStop reports whether the last Update commanded a controlled stop.
func (a *Arbiter) ForcingStop() bool { return a.forcingStop }

// SpeedLimitTarget reports the confirmed speed limit, 0 when none.
func (a *Arbiter) SpeedLimitTarget() float64 { return a.slcTarget }

// SpeedLimitPending reports whether a changed limit awaits confirmation.
func (a *Arbiter) SpeedLimitPending() bool { return a.speedLimitChanged }

// Update arbitrates one tick and returns the cruise speed command in m/s,
// or StopSentinel for a forced standstill hold.
func (a *Arbiter) Update(in TickInput, tog Toggles) float64 {
	vCruise := in.VCruise
	vEgo := in.VEgo

	// Forced stop debounce: the detection has to persist before we act on
	// it, and a recent override keeps it suppressed.
	forceStop := tog.ForceStops && in.StopFeatureDetected && in.Enabled &&
		in.TrackedPathLength < maxStopPathLength && a.overrideForceStopTimer <= 0
	if forceStop {
		a.forceStopTimer += a.cfg.DT
	} else {
		a.forceStopTimer = 0
	}
	forceStopActive := a.forceStopTimer >= forceStopDebounce

	a.overrideForceStop = a.overrideForceStop ||
		(!tog.ForceStandstill && in.Standstill && in.TrackingLead) ||
		in.GasPressed || in.AccelPressed
	a.overrideForceStop = a.overrideForceStop && forceStopActive
	if a.overrideForceStop {
		a.overrideForceStopTimer = forceStopOverride
	} else if a.overrideForceStopTimer > 0 {
		a.overrideForceStopTimer -= a.cfg.DT
	}

	// The cluster can display a higher speed than the true setpoint; track
	// the offset so advisor targets land on the displayed value.
	vCruiseCluster := math.Max(in.VCruiseCluster, vCruise)
	vCruiseDiff := vCruiseCluster - vCruise
	vEgoCluster := math.Max(in.VEgoCluster, vEgo)
	vEgoDiff := vEgoCluster - vEgo

	a.updateMapTurn(in, tog, vCruise, vEgo)
	a.updateSpeedLimit(in, tog, vCruise, vCruiseCluster, vEgoCluster)

	vtscActive := tog.VisionTurnControl && vEgo > a.cfg.CruiseFloor && in.LongActive
	a.vtscTarget = a.vtsc.Update(vtscActive, vEgo, vCruise,
		in.RoadCurvature, in.UpcomingCurveDist, in.UpcomingCurvature, tog.TurnAggressiveness)

	switch {
	case tog.ForceStandstill && in.Standstill && !a.overrideForceStop && in.Enabled:
		a.forcingStop = true
		vCruise = StopSentinel

	case forceStopActive && !a.overrideForceStop:
		a.forcingStop = a.forcingStop || !in.Standstill
		a.trackedStopLength = math.Max(a.trackedStopLength-vEgo*a.cfg.DT, 0)
		target := a.trackedStopLength / a.cfg.PlannerTime
		if target < vCruise {
			vCruise = target
		}

	default:
		if !in.StopFeatureDetected {
			a.overrideForceStop = false
		}
		a.forcingStop = false
		a.trackedStopLength = in.TrackedPathLength

		targets := []float64{a.mtscTarget, a.vtscTarget}
		if tog.SpeedLimitControl {
			slc := math.Max(a.overriddenSpeed, a.slcTarget) - vEgoDiff
			targets = []float64{a.mtscTarget, slc, a.vtscTarget}
		}
		for _, t := range targets {
			if t <= a.cfg.CruiseFloor {
				t = in.VCruise
			}
			if t < vCruise {
				vCruise = t
			}
		}
	}

	a.mtscTarget += vCruiseDiff
	a.vtscTarget += vCruiseDiff
	a.lastCommand = vCruise
	return vCruise
}

func (a *Arbiter) updateMapTurn(in TickInput, tog Toggles, vCruise, vEgo float64) {
	if tog.MapTurnControl && a.mapAdvisor != nil && vEgo > a.cfg.CruiseFloor && in.LongActive {
		mtscActive := a.mtscTarget < vCruise
		a.mtscTarget = clampFloat(a.mapAdvisor.TargetSpeed(vEgo, in.AEgo), a.cfg.CruiseFloor, vCruise)

		curveDetected := false
		if in.RoadCurvature > curvatureEps {
			curveDetected = math.Sqrt(1.0/in.RoadCurvature) < vEgo
		}
		if curveDetected && mtscActive {
			// Hold the previous command through the curve itself.
			a.mtscTarget = a.lastCommand
		} else if !curveDetected && tog.MapTurnCurvatureCheck {
			a.mtscTarget = vCruise
		}
		if a.mtscTarget == a.cfg.CruiseFloor {
			a.mtscTarget = vCruise
		}
		return
	}
	if vCruise != VCruiseUnset {
		a.mtscTarget = vCruise
	} else {
		a.mtscTarget = 0
	}
}
