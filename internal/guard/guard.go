// Package guard rejects telemetry whose sensor-declared time is
// implausibly far in the future — the defense against a misset device RTC
// described in SPEC_FULL.md §4.C.
package guard

import "time"

// MaxFutureSkew is the largest amount a sensor's declared time may lead
// "now" by before the reading is rejected. Exactly +30s is accepted;
// +30s and one tick over is not.
const MaxFutureSkew = 30 * time.Second

// Result reports why a timestamp was rejected, for the structured warning
// log written to the dedicated future-timestamps stream.
type Result struct {
	Accepted     bool
	DeltaSeconds float64
}

// Check evaluates delta = sensorTime - now. now is passed in (rather than
// read internally) so callers and tests can supply a fixed clock.
func Check(sensorTime, now time.Time) Result {
	delta := sensorTime.Sub(now)
	return Result{
		Accepted:     delta <= MaxFutureSkew,
		DeltaSeconds: delta.Seconds(),
	}
}
