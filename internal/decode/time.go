package decode

import (
	"time"

	"buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
)

// sensorTimeOf returns the node-declared unix-epoch-seconds time for a
// telemetry packet, or 0 when the device didn't stamp it. unixSeconds maps
// 0 to the zero time.Time ("unknown, very old"), which the timestamp guard
// accepts because it is not in the future; an absent time is never treated
// as "now".
func sensorTimeOf(t *meshtastic.Telemetry) uint32 {
	return t.GetTime()
}

func unixSeconds(epoch uint32) time.Time {
	if epoch == 0 {
		return time.Time{}
	}
	return time.Unix(int64(epoch), 0).UTC()
}
