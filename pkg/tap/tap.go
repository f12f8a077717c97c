package tap

import (
	"fmt"
)

// State represents one of the 16 defined IEEE 1149.1 TAP controller states.
type State uint8

const (
	StateTestLogicReset State = iota
	StateRunTestIdle
	StateSelectDRScan
	StateCaptureDR
	StateShiftDR
	StateExit1DR
	StatePauseDR
	StateExit2DR
	StateUpdateDR
	StateSelectIRScan
	StateCaptureIR
	StateShiftIR
	StateExit1IR
	StatePauseIR
	StateExit2IR
	StateUpdateIR

	numStates
)

var stateNames = [numStates]string{
	"Test-Logic-Reset", "Run-Test/Idle",
	"Select-DR-Scan", "Capture-DR", "Shift-DR", "Exit1-DR", "Pause-DR", "Exit2-DR", "Update-DR",
	"Select-IR-Scan", "Capture-IR", "Shift-IR", "Exit1-IR", "Pause-IR", "Exit2-IR", "Update-IR",
}

func (s State) String() string {
	if s < numStates {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", s)
}

// IsShift reports whether TDI is sampled into a register in this state.
func (s State) IsShift() bool {
	return s == StateShiftDR || s == StateShiftIR
}

// IsIR reports whether the state belongs to the instruction column.
func (s State) IsIR() bool {
	return s >= StateSelectIRScan && s < numStates
}

// Sequence captures the TMS drive pattern and the sequence of states that result
// from applying that pattern to the TAP controller.
type Sequence struct {
	TMS    []bool
	States []State
}

// Last returns the state the sequence ends in.
func (s Sequence) Last() State {
	return s.States[len(s.States)-1]
}

// transitions[s][tms] is the state entered from s on a TCK edge.
var transitions = [numStates][2]State{
	StateTestLogicReset: {StateRunTestIdle, StateTestLogicReset},
	StateRunTestIdle:    {StateRunTestIdle, StateSelectDRScan},
	StateSelectDRScan:   {StateCaptureDR, StateSelectIRScan},
	StateCaptureDR:      {StateShiftDR, StateExit1DR},
	StateShiftDR:        {StateShiftDR, StateExit1DR},
	StateExit1DR:        {StatePauseDR, StateUpdateDR},
	StatePauseDR:        {StatePauseDR, StateExit2DR},
	StateExit2DR:        {StateShiftDR, StateUpdateDR},
	StateUpdateDR:       {StateRunTestIdle, StateSelectDRScan},
	StateSelectIRScan:   {StateCaptureIR, StateTestLogicReset},
	StateCaptureIR:      {StateShiftIR, StateExit1IR},
	StateShiftIR:        {StateShiftIR, StateExit1IR},
	StateExit1IR:        {StatePauseIR, StateUpdateIR},
	StatePauseIR:        {StatePauseIR, StateExit2IR},
	StateExit2IR:        {StateShiftIR, StateUpdateIR},
	StateUpdateIR:       {StateRunTestIdle, StateSelectDRScan},
}

// NextState returns the next TAP state after clocking TCK with the provided TMS
// value. It panics on a state outside the IEEE diagram.
func NextState(current State, tms bool) State {
	if current >= numStates {
		panic(fmt.Sprintf("tap: unhandled state %d", current))
	}
	if tms {
		return transitions[current][1]
	}
	return transitions[current][0]
}

// StateMachine tracks the TAP controller state locally. It performs no I/O;
// callers clock the hardware with the TMS values it produces and keep the two
// in step by calling Clock for every edge they issue.
type StateMachine struct {
	state State
}

// NewStateMachine creates a TAP state machine initialized to Test-Logic-Reset.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateTestLogicReset}
}

// State reports the current TAP state tracked by the machine.
func (m *StateMachine) State() State {
	return m.state
}

// Clock advances the machine one TCK cycle with the provided TMS bit and
// returns the new state.
func (m *StateMachine) Clock(tms bool) State {
	m.state = NextState(m.state, tms)
	return m.state
}

// Reset clocks TMS=1 for the given number of cycles (at least five are needed
// to reach Test-Logic-Reset from any state) followed by one TMS=0 cycle, so the
// machine always ends in Run-Test/Idle.
func (m *StateMachine) Reset(cycles int) Sequence {
	if cycles < 5 {
		cycles = 5
	}
	seq := Sequence{
		TMS:    make([]bool, 0, cycles+1),
		States: []State{m.state},
	}
	for i := 0; i < cycles; i++ {
		seq.TMS = append(seq.TMS, true)
		seq.States = append(seq.States, m.Clock(true))
	}
	seq.TMS = append(seq.TMS, false)
	seq.States = append(seq.States, m.Clock(false))
	return seq
}

// GoTo computes the minimal sequence of TMS values needed to reach the target
// state from the current state. It updates the machine as a side effect and
// returns the generated sequence.
func (m *StateMachine) GoTo(target State) (Sequence, error) {
	path, err := computePath(m.state, target)
	if err != nil {
		return Sequence{}, err
	}
	for _, bit := range path.TMS {
		m.Clock(bit)
	}
	return path, nil
}

// computePath uses BFS across the TAP state diagram to find the shortest set of
// transitions between two states.
func computePath(from, to State) (Sequence, error) {
	if from >= numStates {
		return Sequence{}, fmt.Errorf("tap: invalid start state %d", from)
	}
	if to >= numStates {
		return Sequence{}, fmt.Errorf("tap: invalid target state %d", to)
	}
	if from == to {
		return Sequence{States: []State{from}}, nil
	}

	var (
		prev    [numStates]pathEdge
		visited [numStates]bool
	)
	visited[from] = true
	queue := []State{from}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, bit := range []bool{false, true} {
			next := NextState(cur, bit)
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = pathEdge{from: cur, tms: bit}
			if next == to {
				return unwind(prev[:], from, to), nil
			}
			queue = append(queue, next)
		}
	}

	return Sequence{}, fmt.Errorf("tap: no path from %s to %s", from, to)
}

// pathEdge records the state and TMS bit that first reached a state.
type pathEdge struct {
	from State
	tms  bool
}

func unwind(prev []pathEdge, from, to State) Sequence {
	var (
		tms    []bool
		states []State
	)
	for s := to; s != from; s = prev[s].from {
		tms = append(tms, prev[s].tms)
		states = append(states, s)
	}
	states = append(states, from)
	for i, j := 0, len(tms)-1; i < j; i, j = i+1, j-1 {
		tms[i], tms[j] = tms[j], tms[i]
	}
	for i, j := 0, len(states)-1; i < j; i, j = i+1, j-1 {
		states[i], states[j] = states[j], states[i]
	}
	return Sequence{TMS: tms, States: states}
}
