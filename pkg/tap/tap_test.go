package tap

import "testing"

func TestNextStateTable(t *testing.T) {
	type transition struct {
		start State
		tms   bool
		end   State
	}

	cases := []transition{
		{StateTestLogicReset, false, StateRunTestIdle},
		{StateTestLogicReset, true, StateTestLogicReset},
		{StateRunTestIdle, true, StateSelectDRScan},
		{StateSelectDRScan, false, StateCaptureDR},
		{StateShiftDR, true, StateExit1DR},
		{StateExit1DR, true, StateUpdateDR},
		{StateExit2DR, false, StateShiftDR},
		{StateSelectIRScan, true, StateTestLogicReset},
		{StateCaptureIR, false, StateShiftIR},
		{StatePauseIR, true, StateExit2IR},
		{StateExit2IR, true, StateUpdateIR},
		{StateUpdateIR, false, StateRunTestIdle},
	}

	for _, tc := range cases {
		got := NextState(tc.start, tc.tms)
		if got != tc.end {
			t.Fatalf("NextState(%s, %v) = %s, want %s", tc.start, tc.tms, got, tc.end)
		}
	}
}

func TestResetEndsInIdle(t *testing.T) {
	for _, cycles := range []int{0, 5, 8} {
		m := NewStateMachine()
		m.Clock(false)
		m.Clock(true)
		m.Clock(false) // -> Capture-DR

		seq := m.Reset(cycles)

		want := cycles
		if want < 5 {
			want = 5
		}
		if len(seq.TMS) != want+1 {
			t.Fatalf("Reset(%d) length = %d, want %d", cycles, len(seq.TMS), want+1)
		}
		if seq.TMS[len(seq.TMS)-1] {
			t.Fatalf("Reset(%d) final TMS = true, want false", cycles)
		}
		if got := seq.States[len(seq.States)-2]; got != StateTestLogicReset {
			t.Fatalf("Reset(%d) passes through %s, want %s", cycles, got, StateTestLogicReset)
		}
		if m.State() != StateRunTestIdle {
			t.Fatalf("State after Reset(%d) = %s, want %s", cycles, m.State(), StateRunTestIdle)
		}
	}
}

func TestGoToScanEntries(t *testing.T) {
	cases := []struct {
		from State
		to   State
		tms  []bool
	}{
		{StateRunTestIdle, StateShiftIR, []bool{true, true, false, false}},
		{StateRunTestIdle, StateShiftDR, []bool{true, false, false}},
		{StateExit1IR, StateRunTestIdle, []bool{true, false}},
		{StateExit1DR, StateRunTestIdle, []bool{true, false}},
		{StateShiftDR, StateShiftDR, nil},
	}

	for _, tc := range cases {
		path, err := computePath(tc.from, tc.to)
		if err != nil {
			t.Fatalf("computePath(%s, %s) returned error: %v", tc.from, tc.to, err)
		}
		if len(path.TMS) != len(tc.tms) {
			t.Fatalf("computePath(%s, %s) = %v, want %v", tc.from, tc.to, path.TMS, tc.tms)
		}
		for i := range tc.tms {
			if path.TMS[i] != tc.tms[i] {
				t.Fatalf("computePath(%s, %s) bit %d = %v, want %v", tc.from, tc.to, i, path.TMS[i], tc.tms[i])
			}
		}
		if path.Last() != tc.to {
			t.Fatalf("computePath(%s, %s) ends in %s", tc.from, tc.to, path.Last())
		}
		if len(path.States) != len(path.TMS)+1 {
			t.Fatalf("computePath(%s, %s) states = %d, want %d", tc.from, tc.to, len(path.States), len(path.TMS)+1)
		}
	}
}

func TestGoToUpdatesMachine(t *testing.T) {
	m := NewStateMachine()
	m.Clock(false)

	if _, err := m.GoTo(StateShiftIR); err != nil {
		t.Fatalf("GoTo returned error: %v", err)
	}
	if m.State() != StateShiftIR || !m.State().IsShift() || !m.State().IsIR() {
		t.Fatalf("State() = %s, want %s", m.State(), StateShiftIR)
	}
	if _, err := m.GoTo(StateRunTestIdle); err != nil {
		t.Fatalf("GoTo RunTestIdle returned error: %v", err)
	}
	if m.State() != StateRunTestIdle {
		t.Fatalf("State() = %s, want %s", m.State(), StateRunTestIdle)
	}
}

func TestInvalidStates(t *testing.T) {
	if _, err := computePath(State(40), StateRunTestIdle); err == nil {
		t.Fatalf("computePath from invalid state returned nil error")
	}
	if got := State(40).String(); got != "State(40)" {
		t.Fatalf("String() = %q, want %q", got, "State(40)")
	}
}
