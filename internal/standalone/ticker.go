package standalone

import "time"

// idleInterval matches the UI refresh cadence the embedded hosts drive.
const idleInterval = 30 * time.Millisecond

func newIdleTicker() *time.Ticker {
	return time.NewTicker(idleInterval)
}
