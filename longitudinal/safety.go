package longitudinal

import (
	"errors"
	"fmt"
)

// Comfortable braking envelope used for nominal follow distances.
const (
	ComfortBrake = 2.5 // m/s^2
	StopDistance = 6.0 // m
)

// Harder envelope used for urgent-constraint computations.
const (
	DiscomfortBrake    = 5.5 // m/s^2
	UrgentStopDistance = 2.0 // m
)

var (
	ErrUnsupportedPersonality = errors.New("longitudinal personality not supported")
	ErrUnsupportedMode        = errors.New("planner mode not recognized")
)

// Personality selects the following-aggressiveness profile.
type Personality int

const (
	PersonalityRelaxed Personality = iota
	PersonalityStandard
	PersonalityAggressive
)

func (p Personality) String() string {
	switch p {
	case PersonalityRelaxed:
		return "relaxed"
	case PersonalityStandard:
		return "standard"
	case PersonalityAggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("personality(%d)", int(p))
	}
}

// JerkTriple is the per-personality jerk cost multiplier set.
type JerkTriple struct {
	Accel  float64
	Danger float64
	Speed  float64
}

// PersonalityTable maps personalities to jerk multipliers and follow times.
// The zero value is unusable; use DefaultPersonalityTable or supply a custom
// table through the configuration.
type PersonalityTable struct {
	Relaxed    JerkTriple
	Standard   JerkTriple
	Aggressive JerkTriple

	RelaxedFollow    float64
	StandardFollow   float64
	AggressiveFollow float64
}

// DefaultPersonalityTable reproduces the stock tuning: identical jerk
// multipliers everywhere except aggressive, which halves them.
func DefaultPersonalityTable() PersonalityTable {
	return PersonalityTable{
		Relaxed:          JerkTriple{1.0, 1.0, 1.0},
		Standard:         JerkTriple{1.0, 1.0, 1.0},
		Aggressive:       JerkTriple{0.5, 0.5, 0.5},
		RelaxedFollow:    1.75,
		StandardFollow:   1.45,
		AggressiveFollow: 1.25,
	}
}

// JerkFactors returns the jerk cost multipliers for p.
func (t PersonalityTable) JerkFactors(p Personality) (JerkTriple, error) {
	switch p {
	case PersonalityRelaxed:
		return t.Relaxed, nil
	case PersonalityStandard:
		return t.Standard, nil
	case PersonalityAggressive:
		return t.Aggressive, nil
	default:
		return JerkTriple{}, fmt.Errorf("%w: %v", ErrUnsupportedPersonality, p)
	}
}

// FollowTime returns the desired time gap for p, in seconds.
func (t PersonalityTable) FollowTime(p Personality) (float64, error) {
	switch p {
	case PersonalityRelaxed:
		return t.RelaxedFollow, nil
	case PersonalityStandard:
		return t.StandardFollow, nil
	case PersonalityAggressive:
		return t.AggressiveFollow, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedPersonality, p)
	}
}

// StoppedEquivalence is the distance the lead would cover braking comfortably
// to a stop from vLead.
func StoppedEquivalence(vLead float64) float64 {
	return vLead * vLead / (2 * ComfortBrake)
}

// SafeObstacleDistance is the gap required to stop comfortably behind a
// stationary obstacle from vEgo, keeping a tFollow time gap.
func SafeObstacleDistance(vEgo, tFollow float64) float64 {
	return vEgo*vEgo/(2*ComfortBrake) + tFollow*vEgo + StopDistance
}

// DesiredFollowDistance is the nominal gap to a moving lead.
func DesiredFollowDistance(vEgo, vLead, tFollow float64) float64 {
	return SafeObstacleDistance(vEgo, tFollow) - StoppedEquivalence(vLead)
}

// UrgentEquivalence is StoppedEquivalence under hard braking.
func UrgentEquivalence(vLead float64) float64 {
	return vLead * vLead / (2 * DiscomfortBrake)
}

// UrgentObstacleDistance is SafeObstacleDistance under hard braking.
func UrgentObstacleDistance(vEgo, tFollow float64) float64 {
	return vEgo*vEgo/(2*DiscomfortBrake) + tFollow*vEgo + UrgentStopDistance
}

// UrgentFollowDistance is the minimum gap still recoverable with hard braking.
func UrgentFollowDistance(vEgo, vLead, tFollow float64) float64 {
	return UrgentObstacleDistance(vEgo, tFollow) - UrgentEquivalence(vLead)
}
