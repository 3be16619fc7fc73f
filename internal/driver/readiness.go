package driver

// isReady implements SPEC_FULL.md §4.3's readiness gate: true once
// sufficientResourcesRegistered() returns true OR the driver has been alive
// at least MaxRegisteredResourcesWaitingTime.
func (e *Endpoint) isReady() bool {
	if e.sufficientResourcesRegistered() {
		return true
	}
	return e.clk.Now().Sub(e.createTime) >= e.cfg.MaxRegisteredResourcesWaitingTime
}

// sufficientResourcesRegistered implements the default
// sufficient_resources_registered: true when ExpectedExecutors is unset
// (ratio-based gate disabled), otherwise true once
// registered/expected >= MinRegisteredResourcesRatio.
func (e *Endpoint) sufficientResourcesRegistered() bool {
	if e.cfg.ExpectedExecutors <= 0 {
		return true
	}
	registered := float64(e.registry.TotalRegisteredExecutors())
	ratio := registered / float64(e.cfg.ExpectedExecutors)
	return ratio >= e.cfg.MinRegisteredResourcesRatio
}
