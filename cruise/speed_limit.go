package cruise

import "math"

// slcDenyTicks is the confirmation window: a pending limit change not
// accepted within this many ticks is denied.
const slcDenyTicks = 30

// slcChangeThreshold is the minimum delta (m/s) that counts as a new limit.
const slcChangeThreshold = 1.0

// updateSpeedLimit runs the confirmation state machine and the override
// tracking for speed limit control.
//
// A changed posted limit does not take effect immediately: it becomes
// pending and must be accepted (accel press while active, or an external
// confirmation) before it replaces the confirmed target. A decel press or
// the confirmation window expiring denies it. Either directional
// confirmation toggle being off auto-accepts changes in that direction.
func (a *Arbiter) updateSpeedLimit(in TickInput, tog Toggles, vCruise, vCruiseCluster, vEgoCluster float64) {
	if !tog.ShowSpeedLimits && !tog.SpeedLimitControl {
		a.slcTarget = 0
		a.speedLimitChanged = false
		a.speedLimitTimer = 0
		a.overrideSlc = false
		a.overriddenSpeed = 0
		return
	}

	var unconfirmed float64
	if a.slcAdvisor != nil {
		a.slcAdvisor.Update(vCruiseCluster, in.VEgo, in.Enabled)
		unconfirmed = a.slcAdvisor.DesiredLimit()
	}

	if tog.SpeedLimitConfirmation && a.slcTarget != 0 {
		a.speedLimitChanged = math.Abs(a.slcTarget-unconfirmed) > slcChangeThreshold &&
			unconfirmed > slcChangeThreshold

		accepted := a.speedLimitChanged &&
			((in.AccelPressed && in.LongActive) || in.SpeedLimitConfirmed)
		denied := a.speedLimitChanged &&
			((in.DecelPressed && in.LongActive) || a.speedLimitTimer >= slcDenyTicks)
		decreased := a.speedLimitChanged && a.slcTarget-unconfirmed > slcChangeThreshold
		increased := a.speedLimitChanged && unconfirmed-a.slcTarget > slcChangeThreshold

		switch {
		case accepted:
			a.slcTarget = unconfirmed
			a.speedLimitChanged = false
		case denied:
			a.speedLimitChanged = false
		case decreased && !tog.SpeedLimitConfirmationLower:
			a.slcTarget = unconfirmed
			a.speedLimitChanged = false
		case increased && !tog.SpeedLimitConfirmationHigher:
			a.slcTarget = unconfirmed
			a.speedLimitChanged = false
		}

		if a.speedLimitChanged {
			a.speedLimitTimer++
		} else {
			a.speedLimitTimer = 0
		}
	} else {
		a.slcTarget = unconfirmed
	}

	if !tog.SpeedLimitControl || a.slcTarget == 0 {
		a.overrideSlc = false
		a.overriddenSpeed = 0
		return
	}

	// Driver override: once the ego speed is pushed above the limit with
	// the gas, hold the overridden speed until the limit changes.
	a.overrideSlc = a.overriddenSpeed > a.slcTarget
	a.overrideSlc = a.overrideSlc || (in.GasPressed && in.VEgo > a.slcTarget)
	a.overrideSlc = a.overrideSlc && in.Enabled

	if !a.overrideSlc {
		a.overriddenSpeed = 0
		return
	}
	switch {
	case tog.SpeedLimitOverrideManual:
		if in.GasPressed {
			a.overriddenSpeed = vEgoCluster
		}
		a.overriddenSpeed = clampFloat(a.overriddenSpeed, a.slcTarget, vCruise)
	case tog.SpeedLimitOverrideSetSpeed:
		a.overriddenSpeed = vCruiseCluster
	}
}
