package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"long-decision-core/cruise"
	"long-decision-core/longitudinal"
	"long-decision-core/telemetry"
	"long-decision-core/utils"
)

type RunnerConfig struct {
	Interface  string
	MapPath    string
	ConfigPath string
}

// VehicleState is the decoded RX picture the planner runs against. Updated
// from the CAN bus; the tick loop reads a snapshot.
type VehicleState struct {
	VEgo         float64
	AEgo         float64
	VEgoCluster  float64
	Standstill   bool
	GasPressed   bool
	VCruise      float64
	VCruiseCl    float64
	Enabled      bool
	LongActive   bool
	AccelPressed bool
	DecelPressed bool

	StopDetected      bool
	ModelLength       float64
	RoadCurvature     float64
	UpcomingCurveDist float64
	UpcomingCurvature float64

	Lead0     longitudinal.LeadState
	Lead1     longitudinal.LeadState
	Timestamp time.Time
}

type Runner struct {
	cfg  RunnerConfig
	conf Config
	log  *utils.Logger
	cmap *utils.CANMap

	writer utils.CANWriter
	reader utils.CANReader
	cmdFD  *utils.FrameDef

	arbiter     *cruise.Arbiter
	mpc         *longitudinal.LongitudinalMPC
	personality longitudinal.Personality
	followTime  float64

	store *telemetry.Store
}

func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cmap, err := utils.LoadCANMap(cfg.MapPath)
	if err != nil {
		return nil, fmt.Errorf("load can map: %w", err)
	}

	conf, err := LoadConfig(cfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cmdFD, err := cmap.FrameByName(conf.Frames.Command)
	if err != nil {
		return nil, fmt.Errorf("command frame: %w", err)
	}
	if cmdFD.CycleMS <= 0 {
		return nil, fmt.Errorf("frame %s has invalid cycle_ms %d", cmdFD.Name, cmdFD.CycleMS)
	}
	// The RX frames must exist in the map too; fail at startup, not mid-loop.
	for _, name := range []string{conf.Frames.EgoState, conf.Frames.Lead0} {
		if _, err := cmap.FrameByName(name); err != nil {
			return nil, fmt.Errorf("rx frame: %w", err)
		}
	}

	writer, err := utils.NewSocketCANWriter(ctx, cfg.Interface)
	if err != nil {
		return nil, err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.Interface)
	if err != nil {
		writer.Close()
		return nil, err
	}

	personality, err := parsePersonality(conf.Planner.Personality)
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}
	table := longitudinal.DefaultPersonalityTable()
	followTime, err := table.FollowTime(personality)
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}

	solver := longitudinal.NewSQPSolver("long", longitudinal.HorizonN)
	mpc, err := longitudinal.NewLongitudinalMPC(
		longitudinal.PlannerMode(conf.Planner.Mode), solver, table, log)
	if err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}
	if err := mpc.SetWeights(personality, true); err != nil {
		writer.Close()
		reader.Close()
		return nil, err
	}
	mpc.SetAccelLimits(conf.Planner.MinAccel, conf.Planner.MaxAccel)

	arb := cruise.NewArbiter(
		cruise.Config{
			CruiseFloor: conf.Cruise.FloorMPS,
			PlannerTime: conf.Cruise.PlannerTimeS,
			DT:          float64(cmdFD.CycleMS) / 1000.0,
		},
		&staticMapAdvisor{target: conf.Advisors.MapTurnSpeedMPS},
		&staticSpeedLimitAdvisor{limit: conf.Advisors.SpeedLimitMPS},
	)

	var store *telemetry.Store
	if conf.Telemetry.Path != "" {
		store, err = telemetry.Open(conf.Telemetry.Path)
		if err != nil {
			writer.Close()
			reader.Close()
			return nil, err
		}
		log.Info("Telemetry enabled: %s", conf.Telemetry.Path)
	}

	return &Runner{
		cfg:         cfg,
		conf:        conf,
		log:         log,
		cmap:        cmap,
		writer:      writer,
		reader:      reader,
		cmdFD:       cmdFD,
		arbiter:     arb,
		mpc:         mpc,
		personality: personality,
		followTime:  followTime,
		store:       store,
	}, nil
}

func (r *Runner) Close() {
	if r.reader != nil {
		_ = r.reader.Close()
	}
	if r.writer != nil {
		_ = r.writer.Close()
	}
	if r.store != nil {
		_ = r.store.Close()
	}
}

func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting loop: cmd=%s id=0x%X cycle_ms=%d iface=%s mode=%s personality=%s",
		r.cmdFD.Name, r.cmdFD.ID, r.cmdFD.CycleMS, r.cfg.Interface,
		r.conf.Planner.Mode, r.conf.Planner.Personality)

	ticker := time.NewTicker(time.Duration(r.cmdFD.CycleMS) * time.Millisecond)
	defer ticker.Stop()

	rxChan := make(chan VehicleState, 100)
	go r.receiveLoop(ctx, rxChan)

	toggles := r.conf.Toggles.toCruise()

	var state VehicleState
	var tick uint64
	lastRxTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping loop")
			r.log.Info("Completed. ticks=%d", tick)
			return ctx.Err()

		case s := <-rxChan:
			state = s
			lastRxTime = s.Timestamp

		case now := <-ticker.C:
			rxAge := now.Sub(lastRxTime)
			if rxAge > 500*time.Millisecond {
				r.log.WarnEvery(5*time.Second, "No vehicle state for %.0f ms; planning on stale data", rxAge.Seconds()*1000)
			}

			vCruiseCmd := r.arbiter.Update(cruise.TickInput{
				VEgo:           state.VEgo,
				AEgo:           state.AEgo,
				VEgoCluster:    state.VEgoCluster,
				VCruise:        state.VCruise,
				VCruiseCluster: state.VCruiseCl,
				Standstill:     state.Standstill,
				GasPressed:     state.GasPressed,
				AccelPressed:   state.AccelPressed,
				DecelPressed:   state.DecelPressed,
				Enabled:        state.Enabled,
				LongActive:     state.LongActive,

				StopFeatureDetected: state.StopDetected,
				TrackedPathLength:   state.ModelLength,
				TrackingLead:        state.Lead0.Valid,

				RoadCurvature:     state.RoadCurvature,
				UpcomingCurveDist: state.UpcomingCurveDist,
				UpcomingCurvature: state.UpcomingCurvature,
			}, toggles)

			// A stop sentinel plans against a zero cruise target.
			vCruisePlan := math.Max(vCruiseCmd, 0)

			r.mpc.SetCurState(state.VEgo, state.AEgo)
			r.mpc.Update(state.Lead0, state.Lead1, vCruisePlan,
				longitudinal.Reference{}, r.followTime)

			fcw := r.mpc.CrashCount > 5
			if fcw {
				r.log.Warn("Forward collision warning: lead prob=%.2f v_ego=%.1f", state.Lead0.Prob, state.VEgo)
			}

			values := map[string]float64{
				"accel_cmd_mps2": r.mpc.ASolution[0],
				"v_target_mps":   r.mpc.VSolution[0],
				"fcw":            boolToFloat(fcw),
				"forcing_stop":   boolToFloat(r.arbiter.ForcingStop()),
				"source":         sourceToFloat(r.mpc.Source),
				"solver_status":  float64(r.mpc.SolutionStatus),
			}
			frame, err := r.cmap.EncodeFrame(r.cmdFD.Name, values)
			if err != nil {
				r.log.Error("Encode failed: %v", err)
				return err
			}
			if err := r.writer.WriteFrame(ctx, frame); err != nil {
				r.log.Critical("Transmit failed: %v", err)
				return err
			}

			tick++
			r.log.Trace("TX tick=%d v_ego=%.2f v_cruise_cmd=%.2f a_cmd=%.3f source=%s status=%d",
				tick, state.VEgo, vCruiseCmd, r.mpc.ASolution[0], r.mpc.Source, r.mpc.SolutionStatus)

			if r.store != nil {
				rec := telemetry.TickRecord{
					Tick:         tick,
					VEgo:         state.VEgo,
					VCruiseCmd:   vCruiseCmd,
					Source:       string(r.mpc.Source),
					SolverStatus: r.mpc.SolutionStatus,
					SolveTime:    r.mpc.LastStats.SolveTime,
					CrashCount:   r.mpc.CrashCount,
					ForcingStop:  r.arbiter.ForcingStop(),
				}
				if err := r.store.RecordTick(rec); err != nil {
					r.log.WarnEvery(5*time.Second, "Telemetry write failed: %v", err)
				}
			}
		}
	}
}

// receiveLoop continuously reads CAN frames and folds decoded signals into
// the latest vehicle state snapshot.
func (r *Runner) receiveLoop(ctx context.Context, out chan<- VehicleState) {
	r.log.Debug("RX loop started")
	defer r.log.Debug("RX loop stopped")

	var state VehicleState
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		frame, err := r.reader.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Error("RX error: %v", err)
			continue
		}

		fd, err := r.cmap.FrameByID(uint32(frame.ID))
		if err != nil {
			continue // not ours
		}
		sig, err := r.cmap.DecodeFrame(uint32(frame.ID), frame.Data[:frame.Length])
		if err != nil {
			r.log.Error("Decode %s failed: %v", fd.Name, err)
			continue
		}

		switch fd.Name {
		case r.conf.Frames.EgoState:
			state.VEgo = sig["v_ego_mps"]
			state.AEgo = sig["a_ego_mps2"]
			state.VEgoCluster = sig["v_ego_cluster_mps"]
			state.Standstill = sig["standstill"] != 0
			state.GasPressed = sig["gas_pressed"] != 0
		case r.conf.Frames.CruiseState:
			state.VCruise = sig["v_cruise_mps"]
			state.VCruiseCl = sig["v_cruise_cluster_mps"]
			state.Enabled = sig["enabled"] != 0
			state.LongActive = sig["long_active"] != 0
			state.AccelPressed = sig["accel_pressed"] != 0
			state.DecelPressed = sig["decel_pressed"] != 0
		case r.conf.Frames.Model:
			state.StopDetected = sig["stop_detected"] != 0
			state.ModelLength = sig["path_length_m"]
			state.RoadCurvature = sig["curvature"]
			state.UpcomingCurveDist = sig["upcoming_curve_dist_m"]
			state.UpcomingCurvature = sig["upcoming_curvature"]
		case r.conf.Frames.Lead0:
			state.Lead0 = decodeLead(sig)
		case r.conf.Frames.Lead1:
			state.Lead1 = decodeLead(sig)
		default:
			r.log.Trace("RX id=0x%X len=%d data=% X", uint32(frame.ID), frame.Length, frame.Data[:frame.Length])
			continue
		}
		state.Timestamp = time.Now()

		select {
		case out <- state:
		default:
			// Channel full, skip
		}
	}
}

func decodeLead(sig map[string]float64) longitudinal.LeadState {
	return longitudinal.LeadState{
		Valid:    sig["valid"] != 0,
		DistRel:  sig["d_rel_m"],
		VRel:     sig["v_rel_mps"],
		ALead:    sig["a_lead_mps2"],
		ALeadTau: sig["a_lead_tau"],
		Prob:     sig["prob"],
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func sourceToFloat(s longitudinal.ObstacleSource) float64 {
	switch s {
	case longitudinal.SourceLead0:
		return 0
	case longitudinal.SourceLead1:
		return 1
	case longitudinal.SourceCruise:
		return 2
	case longitudinal.SourceE2E:
		return 3
	}
	return 2
}
