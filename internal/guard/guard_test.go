package guard

import (
	"testing"
	"time"
)

func TestCheck_ExactlyAtLimit_Accepted(t *testing.T) {
	now := time.Unix(1000, 0)
	sensorTime := now.Add(30 * time.Second)
	r := Check(sensorTime, now)
	if !r.Accepted {
		t.Fatalf("delta of exactly +30s should be accepted")
	}
}

func TestCheck_OneSecondOverLimit_Rejected(t *testing.T) {
	now := time.Unix(1000, 0)
	sensorTime := now.Add(31 * time.Second)
	r := Check(sensorTime, now)
	if r.Accepted {
		t.Fatalf("delta of +31s should be rejected")
	}
	if r.DeltaSeconds != 31 {
		t.Fatalf("DeltaSeconds = %v, want 31", r.DeltaSeconds)
	}
}

func TestCheck_Past_Accepted(t *testing.T) {
	now := time.Unix(1000, 0)
	sensorTime := now.Add(-1 * time.Hour)
	r := Check(sensorTime, now)
	if !r.Accepted {
		t.Fatalf("a sensor time in the past should always be accepted")
	}
}
