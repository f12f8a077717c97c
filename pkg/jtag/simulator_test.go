package jtag

import (
	"testing"

	"github.com/OpenTraceLab/jtagft/pkg/tap"
)

// shiftIR loads the same instruction into every device, assuming equal IR
// lengths, and returns the captured IR bits.
func shiftIR(t *testing.T, c Clocker, total int, ir uint64, irLen int) []bool {
	t.Helper()
	clockTMS(t, c, true, true, false, false)
	var out []bool
	for i := 0; i < total; i++ {
		tdo, err := c.ClockBit(i == total-1, (ir>>uint(i%irLen))&1 == 1, NoWait)
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, tdo)
	}
	clockTMS(t, c, true, false)
	return out
}

func TestSimulatorCaptureIR(t *testing.T) {
	sim := NewIDCodeChain(LayoutLegacy, testWrite, testRead, 1, 2)
	c := newTestClock(sim)
	clockTMS(t, c, true, true, true, true, true, false)

	got := shiftIR(t, c, 12, 0x3f, 6)
	// Every device captures 000001, device 0 first.
	for i, b := range got {
		if want := i%6 == 0; b != want {
			t.Fatalf("IR capture bit %d = %v, want %v", i, b, want)
		}
	}
}

func TestSimulatorBypassAndReset(t *testing.T) {
	sim := NewIDCodeChain(LayoutLegacy, testWrite, testRead, 0x11111111, 0x22222222)
	c := newTestClock(sim)
	clockTMS(t, c, true, true, true, true, true, false)
	shiftIR(t, c, 12, 0x3f, 6)

	// Two bypass bits in front of a marker.
	clockTMS(t, c, true, false, false)
	var out []bool
	for i := 0; i < 4; i++ {
		tdo, _ := c.ClockBit(i == 3, true, NoWait)
		out = append(out, tdo)
	}
	clockTMS(t, c, true, false)
	if out[0] || out[1] || !out[2] || !out[3] {
		t.Errorf("bypass path = %v", out)
	}

	// Test-Logic-Reset restores IDCODE.
	if got := readIDCode(t, c); got != 0x11111111 {
		t.Errorf("IDCODE after reset = 0x%08x", got)
	}
}

type recordModel struct {
	NopModel
	irs     []uint64
	shifted int
	updated []bool
	states  int
}

func (m *recordModel) UpdateIR(ir uint64)       { m.irs = append(m.irs, ir) }
func (m *recordModel) ShiftDR(_ uint64, _ bool) { m.shifted++ }
func (m *recordModel) Clock(tap.State)          { m.states++ }

func (m *recordModel) SelectDR(ir uint64) (int, uint64, bool) {
	if ir == 0x02 {
		return 4, 0xA, true
	}
	return 0, 0, false
}

func (m *recordModel) UpdateDR(ir uint64, bits []bool) {
	if ir == 0x02 {
		m.updated = bits
	}
}

func TestSimulatorModelHooks(t *testing.T) {
	m := &recordModel{}
	sim := NewChainSimulator(LayoutLegacy, testWrite, testRead, &SimDevice{
		Name: "user", IRLength: 6, IDCodeOp: 0x09, Model: m,
	})
	c := newTestClock(sim)
	clockTMS(t, c, true, true, true, true, true, false)
	shiftIR(t, c, 6, 0x02, 6)
	if len(m.irs) != 1 || m.irs[0] != 0x02 {
		t.Fatalf("UpdateIR calls = %x", m.irs)
	}

	clockTMS(t, c, true, false, false)
	var captured uint64
	for i, b := range []bool{true, true, false, false} {
		tdo, _ := c.ClockBit(i == 3, b, NoWait)
		if tdo {
			captured |= 1 << uint(i)
		}
	}
	clockTMS(t, c, true, false)

	if captured != 0xA {
		t.Errorf("captured = 0x%x, want 0xA", captured)
	}
	if m.shifted != 4 {
		t.Errorf("ShiftDR calls = %d, want 4", m.shifted)
	}
	want := []bool{true, true, false, false}
	for i := range want {
		if m.updated[i] != want[i] {
			t.Fatalf("UpdateDR bits = %v, want %v", m.updated, want)
		}
	}
	edges, _ := sim.Counts()
	if m.states != edges {
		t.Errorf("Clock calls = %d, edges = %d", m.states, edges)
	}
}

func TestSimulatorOtherRegisters(t *testing.T) {
	sim := NewIDCodeChain(LayoutLegacy, testWrite, testRead)
	if err := sim.WriteRegister(0x10, 0xdead); err != nil {
		t.Fatal(err)
	}
	if v, _ := sim.ReadRegister(0x10); v != 0xdead {
		t.Errorf("ReadRegister(0x10) = 0x%x", v)
	}
	if sim.State() != tap.StateTestLogicReset {
		t.Errorf("initial state %s", sim.State())
	}
}
