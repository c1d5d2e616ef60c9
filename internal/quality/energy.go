package quality

import (
	"fmt"
	"time"
)

// Power draw assumptions in watts
const (
	CPUPowerWatts = 0.5
	GPUPowerWatts = 3.0
)

// Energy is an energy estimate in milliwatt-hours
type Energy float64

// EstimateEnergy estimates the energy spent on a generation. GPU draw is
// added on top of the CPU baseline when accelerated.
func EstimateEnergy(latency time.Duration, gpu bool) Energy {
	watts := CPUPowerWatts
	if gpu {
		watts += GPUPowerWatts
	}
	ws := watts * latency.Seconds()
	return Energy(ws / 3600 * 1000)
}

// String formats the estimate with a unit that keeps it readable
func (e Energy) String() string {
	mwh := float64(e)
	switch {
	case mwh < 0.001:
		return fmt.Sprintf("%.2f µWh", mwh*1000)
	case mwh < 1:
		return fmt.Sprintf("%.3f mWh", mwh)
	case mwh < 1000:
		return fmt.Sprintf("%.2f mWh", mwh)
	default:
		return fmt.Sprintf("%.3f Wh", mwh/1000)
	}
}
