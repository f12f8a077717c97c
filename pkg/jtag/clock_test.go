package jtag

import (
	"testing"
	"time"
)

func TestModeString(t *testing.T) {
	for m, want := range map[Mode]string{Normal: "normal", Fast: "fast", NoWait: "nowait", Mode(9): "unknown"} {
		if got := m.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", m, got, want)
		}
	}
}

func TestTimingWait(t *testing.T) {
	tm := Timing{Settle: 2 * time.Millisecond, Spin: 10}
	start := time.Now()
	tm.Wait(Normal)
	if d := time.Since(start); d < 2*time.Millisecond {
		t.Errorf("Normal wait took %v", d)
	}
	start = time.Now()
	tm.Wait(NoWait)
	tm.Wait(Fast)
	if d := time.Since(start); d > time.Second {
		t.Errorf("NoWait/Fast took %v", d)
	}
}
