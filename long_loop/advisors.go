package main

// Static advisor stand-ins for bench runs without a live map or navigation
// source. A zero target means "nothing to advise".

type staticMapAdvisor struct {
	target float64
}

func (a *staticMapAdvisor) TargetSpeed(vEgo, aEgo float64) float64 {
	return a.target
}

type staticSpeedLimitAdvisor struct {
	limit float64
}

func (a *staticSpeedLimitAdvisor) Update(vCruiseCluster, vEgo float64, enabled bool) {}

func (a *staticSpeedLimitAdvisor) DesiredLimit() float64 {
	return a.limit
}
