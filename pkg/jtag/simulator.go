package jtag

import (
	"fmt"
	"sync"

	"github.com/OpenTraceLab/jtagft/pkg/tap"
)

// SimModel supplies the behaviour of one simulated TAP beyond IDCODE and
// BYPASS. Instruction values are passed LSB-first as shifted.
type SimModel interface {
	// CaptureIR returns the value loaded into the instruction shift register.
	CaptureIR() uint64
	// UpdateIR is called with the instruction latched on Update-IR.
	UpdateIR(ir uint64)
	// SelectDR returns the width and capture value of the data register
	// selected by ir. ok=false selects the one-bit bypass register.
	SelectDR(ir uint64) (width int, capture uint64, ok bool)
	// ShiftDR observes every TDI bit shifted into the selected register.
	ShiftDR(ir uint64, tdi bool)
	// UpdateDR is called with the register contents on Update-DR, first
	// shifted bit first.
	UpdateDR(ir uint64, bits []bool)
	// Clock is called once per TCK edge with the state the edge entered.
	Clock(state tap.State)
}

// NopModel gives every SimModel hook its plain IEEE behaviour. Embed it to
// override only the hooks a model needs.
type NopModel struct{}

func (NopModel) CaptureIR() uint64                   { return 1 }
func (NopModel) UpdateIR(uint64)                     {}
func (NopModel) SelectDR(uint64) (int, uint64, bool) { return 0, 0, false }
func (NopModel) ShiftDR(uint64, bool)                {}
func (NopModel) UpdateDR(uint64, []bool)             {}
func (NopModel) Clock(tap.State)                     {}

// SimDevice is one TAP in a ChainSimulator.
type SimDevice struct {
	Name     string
	IDCode   uint32
	IRLength int
	IDCodeOp uint64 // instruction selecting the IDCODE register
	Model    SimModel

	ir    uint64
	irReg []bool
	drReg []bool
}

func (d *SimDevice) reset() {
	d.ir = d.IDCodeOp
	d.irReg = make([]bool, d.IRLength)
	d.drReg = []bool{false}
}

func (d *SimDevice) bypassOp() uint64 {
	return 1<<uint(d.IRLength) - 1
}

func (d *SimDevice) captureIR() {
	v := uint64(1)
	if d.Model != nil {
		v = d.Model.CaptureIR()
	}
	d.irReg = loadBits(d.irReg[:0], d.IRLength, v)
}

func (d *SimDevice) captureDR() {
	if d.Model != nil {
		if width, v, ok := d.Model.SelectDR(d.ir); ok {
			d.drReg = loadBits(d.drReg[:0], width, v)
			return
		}
	}
	if d.ir == d.IDCodeOp && d.ir != d.bypassOp() {
		d.drReg = loadBits(d.drReg[:0], 32, uint64(d.IDCode))
		return
	}
	d.drReg = loadBits(d.drReg[:0], 1, 0)
}

func (d *SimDevice) updateIR() {
	d.ir = packBits(d.irReg)
	if d.Model != nil {
		d.Model.UpdateIR(d.ir)
	}
}

func (d *SimDevice) updateDR() {
	if d.Model != nil {
		d.Model.UpdateDR(d.ir, append([]bool(nil), d.drReg...))
	}
}

// shiftReg pushes tdi in at the TDI end and returns the bit leaving at TDO.
func shiftReg(reg []bool, tdi bool) bool {
	if len(reg) == 0 {
		return tdi
	}
	out := reg[0]
	copy(reg, reg[1:])
	reg[len(reg)-1] = tdi
	return out
}

func loadBits(dst []bool, width int, v uint64) []bool {
	for i := 0; i < width; i++ {
		dst = append(dst, i < 64 && (v>>uint(i))&1 == 1)
	}
	return dst
}

func packBits(bits []bool) uint64 {
	var v uint64
	for i, b := range bits {
		if b && i < 64 {
			v |= 1 << uint(i)
		}
	}
	return v
}

// ChainSimulator implements RegisterIO by emulating a JTAG port wired to a
// chain of TAPs. Devices[0] sits next to TDO, the last device next to TDI.
type ChainSimulator struct {
	Layout      Layout
	WriteOffset uint32
	ReadOffset  uint32
	Devices     []*SimDevice

	// ErrorBits is presented in the error summary field of the read register.
	ErrorBits uint32
	// Registers serves every other offset.
	Registers map[uint32]uint32

	mu     sync.Mutex
	tap    *tap.StateMachine
	tdo    bool
	edges  int
	blocks int
}

// NewChainSimulator builds a simulator for the given register placement.
func NewChainSimulator(layout Layout, writeOff, readOff uint32, devices ...*SimDevice) *ChainSimulator {
	s := &ChainSimulator{
		Layout:      layout,
		WriteOffset: writeOff,
		ReadOffset:  readOff,
		Devices:     devices,
		Registers:   make(map[uint32]uint32),
		tap:         tap.NewStateMachine(),
	}
	for _, d := range devices {
		d.reset()
	}
	return s
}

// NewIDCodeChain builds a chain of plain devices answering IDCODE and BYPASS,
// listed from TDO to TDI. Every device gets a six-bit IR with IDCODE 0x09.
func NewIDCodeChain(layout Layout, writeOff, readOff uint32, ids ...uint32) *ChainSimulator {
	devices := make([]*SimDevice, len(ids))
	for i, id := range ids {
		devices[i] = &SimDevice{
			Name:     fmt.Sprintf("dev%d", i),
			IDCode:   id,
			IRLength: 6,
			IDCodeOp: 0x09,
		}
	}
	return NewChainSimulator(layout, writeOff, readOff, devices...)
}

// State reports the simulated TAP state shared by every device.
func (s *ChainSimulator) State() tap.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tap.State()
}

// Counts reports the number of TCK edges and block writes seen.
func (s *ChainSimulator) Counts() (edges, blocks int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.edges, s.blocks
}

// WriteRegister decodes clock and block strobes on the JTAG register and
// stores everything else.
func (s *ChainSimulator) WriteRegister(off uint32, v uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off != s.WriteOffset {
		s.Registers[off] = v
		return nil
	}
	l := s.Layout
	switch op := v & l.OpMask; {
	case op == l.Clock&l.OpMask:
		s.clock(v&l.TMS != 0, v&l.TDI != 0)
	case l.HasBlock() && op == l.Block&l.OpMask:
		b := byte(v >> l.BlockShift)
		for i := 7; i >= 0; i-- {
			s.clock(false, (b>>uint(i))&1 == 1)
		}
		s.blocks++
	}
	return nil
}

// ReadRegister returns TDO and the error summary on the JTAG read register.
func (s *ChainSimulator) ReadRegister(off uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if off != s.ReadOffset {
		return s.Registers[off], nil
	}
	var v uint32
	if s.tdo {
		v |= 1 << s.Layout.TDOShift
	}
	v |= (s.ErrorBits & s.Layout.ErrorMask) << s.Layout.ErrorShift
	return v, nil
}

func (s *ChainSimulator) clock(tms, tdi bool) {
	s.edges++
	prev := s.tap.State()

	if prev.IsShift() {
		// Bits flow from the TDI end towards Devices[0].
		in := tdi
		for i := len(s.Devices) - 1; i >= 0; i-- {
			d := s.Devices[i]
			if prev == tap.StateShiftIR {
				in = shiftReg(d.irReg, in)
			} else {
				if d.Model != nil {
					d.Model.ShiftDR(d.ir, in)
				}
				in = shiftReg(d.drReg, in)
			}
		}
		s.tdo = in
	}

	next := s.tap.Clock(tms)
	for _, d := range s.Devices {
		switch next {
		case tap.StateTestLogicReset:
			if prev != tap.StateTestLogicReset {
				d.reset()
			}
		case tap.StateCaptureIR:
			d.captureIR()
		case tap.StateCaptureDR:
			d.captureDR()
		case tap.StateUpdateIR:
			d.updateIR()
		case tap.StateUpdateDR:
			d.updateDR()
		}
		if d.Model != nil {
			d.Model.Clock(next)
		}
	}
}
