package main

import (
	"encoding/json"
	"fmt"
	"os"

	"long-decision-core/cruise"
	"long-decision-core/longitudinal"
)

// Config defines a complete loop configuration
type Config struct {
	Meta      ConfigMeta      `json:"meta"`
	Planner   PlannerConfig   `json:"planner"`
	Cruise    CruiseConfig    `json:"cruise"`
	Toggles   TogglesConfig   `json:"toggles"`
	Frames    FrameConfig     `json:"frames"`
	Advisors  AdvisorConfig   `json:"advisors"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// ConfigMeta contains configuration metadata
type ConfigMeta struct {
	Name        string `json:"name"`
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// PlannerConfig selects the planning mode and driving personality
type PlannerConfig struct {
	Mode        string  `json:"mode"`        // "acc" or "blended"
	Personality string  `json:"personality"` // "relaxed", "standard", "aggressive"
	MinAccel    float64 `json:"min_accel_mps2"`
	MaxAccel    float64 `json:"max_accel_mps2"`
}

// CruiseConfig holds the arbiter tunables
type CruiseConfig struct {
	FloorMPS     float64 `json:"floor_mps"`
	PlannerTimeS float64 `json:"planner_time_s"`
}

// TogglesConfig mirrors the user feature switches
type TogglesConfig struct {
	ForceStops                   bool    `json:"force_stops"`
	ForceStandstill              bool    `json:"force_standstill"`
	MapTurnControl               bool    `json:"map_turn_control"`
	MapTurnCurvatureCheck        bool    `json:"map_turn_curvature_check"`
	ShowSpeedLimits              bool    `json:"show_speed_limits"`
	SpeedLimitControl            bool    `json:"speed_limit_control"`
	SpeedLimitConfirmation       bool    `json:"speed_limit_confirmation"`
	SpeedLimitConfirmationLower  bool    `json:"speed_limit_confirmation_lower"`
	SpeedLimitConfirmationHigher bool    `json:"speed_limit_confirmation_higher"`
	SpeedLimitOverrideManual     bool    `json:"speed_limit_override_manual"`
	SpeedLimitOverrideSetSpeed   bool    `json:"speed_limit_override_set_speed"`
	VisionTurnControl            bool    `json:"vision_turn_control"`
	TurnAggressiveness           float64 `json:"turn_aggressiveness"`
}

// FrameConfig names the CAN frames on both directions of the loop
type FrameConfig struct {
	EgoState    string `json:"ego_state"`
	CruiseState string `json:"cruise_state"`
	Model       string `json:"model"`
	Lead0       string `json:"lead_0"`
	Lead1       string `json:"lead_1"`
	Command     string `json:"command"`
}

// AdvisorConfig configures the static advisor stand-ins
type AdvisorConfig struct {
	MapTurnSpeedMPS float64 `json:"map_turn_speed_mps"`
	SpeedLimitMPS   float64 `json:"speed_limit_mps"`
}

// TelemetryConfig points at the sqlite tick log; empty path disables it
type TelemetryConfig struct {
	Path string `json:"path"`
}

// LoadConfig loads a loop configuration from a JSON file
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	// Defaults
	if cfg.Planner.Mode == "" {
		cfg.Planner.Mode = string(longitudinal.ModeACC)
	}
	if cfg.Planner.Personality == "" {
		cfg.Planner.Personality = "standard"
	}
	if cfg.Planner.MinAccel == 0 {
		cfg.Planner.MinAccel = -1.2
	}
	if cfg.Planner.MaxAccel == 0 {
		cfg.Planner.MaxAccel = 1.2
	}
	if cfg.Cruise.FloorMPS == 0 {
		cfg.Cruise.FloorMPS = cruise.DefaultCruiseFloor
	}
	if cfg.Cruise.PlannerTimeS == 0 {
		cfg.Cruise.PlannerTimeS = cruise.DefaultPlannerTime
	}
	if cfg.Toggles.TurnAggressiveness == 0 {
		cfg.Toggles.TurnAggressiveness = 1.0
	}

	// Validate
	mode := longitudinal.PlannerMode(cfg.Planner.Mode)
	if mode != longitudinal.ModeACC && mode != longitudinal.ModeBlended {
		return Config{}, fmt.Errorf("invalid planner mode %q", cfg.Planner.Mode)
	}
	if _, err := parsePersonality(cfg.Planner.Personality); err != nil {
		return Config{}, err
	}
	if cfg.Planner.MinAccel >= 0 || cfg.Planner.MaxAccel <= 0 {
		return Config{}, fmt.Errorf("invalid accel envelope [%f, %f]",
			cfg.Planner.MinAccel, cfg.Planner.MaxAccel)
	}
	for name, v := range map[string]string{
		"ego_state": cfg.Frames.EgoState,
		"lead_0":    cfg.Frames.Lead0,
		"command":   cfg.Frames.Command,
	} {
		if v == "" {
			return Config{}, fmt.Errorf("frames.%s must be set", name)
		}
	}

	return cfg, nil
}

func parsePersonality(s string) (longitudinal.Personality, error) {
	switch s {
	case "relaxed":
		return longitudinal.PersonalityRelaxed, nil
	case "standard":
		return longitudinal.PersonalityStandard, nil
	case "aggressive":
		return longitudinal.PersonalityAggressive, nil
	}
	return 0, fmt.Errorf("invalid personality %q", s)
}

func (t TogglesConfig) toCruise() cruise.Toggles {
	return cruise.Toggles{
		ForceStops:                   t.ForceStops,
		ForceStandstill:              t.ForceStandstill,
		MapTurnControl:               t.MapTurnControl,
		MapTurnCurvatureCheck:        t.MapTurnCurvatureCheck,
		ShowSpeedLimits:              t.ShowSpeedLimits,
		SpeedLimitControl:            t.SpeedLimitControl,
		SpeedLimitConfirmation:       t.SpeedLimitConfirmation,
		SpeedLimitConfirmationLower:  t.SpeedLimitConfirmationLower,
		SpeedLimitConfirmationHigher: t.SpeedLimitConfirmationHigher,
		SpeedLimitOverrideManual:     t.SpeedLimitOverrideManual,
		SpeedLimitOverrideSetSpeed:   t.SpeedLimitOverrideSetSpeed,
		VisionTurnControl:            t.VisionTurnControl,
		TurnAggressiveness:           t.TurnAggressiveness,
	}
}
