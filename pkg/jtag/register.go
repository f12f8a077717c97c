package jtag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// RegisterIO is the flat register capability a JTAG port is driven through.
// Offsets are byte offsets into the unit's register window.
type RegisterIO interface {
	ReadRegister(off uint32) (uint32, error)
	WriteRegister(off uint32, v uint32) error
}

// Layout describes how a firmware revision encodes JTAG edges in its write
// register and reports TDO in its read register.
type Layout struct {
	Name string

	Clock    uint32 // strobe issuing one TCK edge
	TMS      uint32
	TDI      uint32
	TDOShift uint

	Block      uint32 // strobe shifting the byte at BlockShift; 0 when unsupported
	BlockShift uint
	BlockBusy  uint32 // read bits that must clear before the next block
	BlockDrain uint32 // read bits that must clear after the last block

	OpMask   uint32 // bits distinguishing Clock from Block
	PortMask uint32

	ErrorShift uint // error summary field of the read register
	ErrorMask  uint32
}

var (
	// LayoutLegacy is the first single-edge firmware.
	LayoutLegacy = Layout{
		Name:       "legacy",
		Clock:      0x8200,
		TMS:        0x2000,
		TDI:        0x1000,
		TDOShift:   0,
		Block:      0x0a00,
		BlockShift: 24,
		BlockBusy:  ^uint32(0xf9), // all but TDO and the error summary
		OpMask:     0xcf00,
		PortMask:   0xff,
		ErrorShift: 3,
		ErrorMask:  0x1f,
	}

	// Layout2P is the two-port firmware, TDO in the top bit.
	Layout2P = Layout{
		Name:       "2p",
		Clock:      0x4e0000,
		TMS:        1 << 23,
		TDI:        1 << 24,
		TDOShift:   31,
		Block:      0x2e0000,
		BlockShift: 24,
		BlockBusy:  1 << 29,
		BlockDrain: 1 << 28,
		OpMask:     0x7f0000,
		PortMask:   0xffff,
		ErrorShift: 24,
		ErrorMask:  0x1f,
	}

	// LayoutSpy is the legacy encoding on firmware without a block engine.
	LayoutSpy = Layout{
		Name:       "spy",
		Clock:      0x8200,
		TMS:        0x2000,
		TDI:        0x1000,
		OpMask:     0xcf00,
		PortMask:   0xff,
		ErrorShift: 3,
		ErrorMask:  0x1f,
	}
)

// HasBlock reports whether the layout has a byte-wide shift strobe.
func (l Layout) HasBlock() bool {
	return l.Block != 0
}

// EncodeClock returns the write-register value for one edge on port.
func (l Layout) EncodeClock(port uint32, tms, tdi bool) uint32 {
	v := l.Clock + port&l.PortMask
	if tms {
		v |= l.TMS
	}
	if tdi {
		v |= l.TDI
	}
	return v
}

// EncodeBlock returns the write-register value shifting b on port.
func (l Layout) EncodeBlock(port uint32, b byte) uint32 {
	return l.Block + uint32(b)<<l.BlockShift + port&l.PortMask
}

// TDO extracts the sampled TDO level from a read-register value.
func (l Layout) TDO(r uint32) bool {
	return (r>>l.TDOShift)&1 == 1
}

// ErrorSummary extracts the configuration error field from a read-register
// value.
func (l Layout) ErrorSummary(r uint32) uint32 {
	return (r >> l.ErrorShift) & l.ErrorMask
}

// blockPolls bounds every busy-bit wait.
const blockPolls = 10

// RegisterConfig places a RegisterClock on a unit.
type RegisterConfig struct {
	Layout      Layout
	WriteOffset uint32
	ReadOffset  uint32
	Port        uint32
	Timing      Timing
}

// RegisterClock bit-bangs a JTAG port through a RegisterIO.
type RegisterClock struct {
	rw  RegisterIO
	cfg RegisterConfig

	mu     sync.Mutex
	blocks int
	waits  int
}

// NewRegisterClock creates a clock driver for the port described by cfg.
func NewRegisterClock(rw RegisterIO, cfg RegisterConfig) *RegisterClock {
	return &RegisterClock{rw: rw, cfg: cfg}
}

// Info describes the backend.
func (c *RegisterClock) Info() Info {
	return Info{
		Name:     "register",
		Firmware: c.cfg.Layout.Name,
		Block:    c.cfg.Layout.HasBlock(),
		Notes:    fmt.Sprintf("port %d", c.cfg.Port),
	}
}

// Layout returns the register encoding in use.
func (c *RegisterClock) Layout() Layout {
	return c.cfg.Layout
}

// ClockBit writes one edge, reads TDO back and then waits according to mode.
func (c *RegisterClock) ClockBit(tms, tdi bool, mode Mode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := c.cfg.Layout.EncodeClock(c.cfg.Port, tms, tdi)
	if err := c.rw.WriteRegister(c.cfg.WriteOffset, v); err != nil {
		return false, fmt.Errorf("jtag: write register 0x%x: %v: %w", c.cfg.WriteOffset, err, ErrTransport)
	}
	r, err := c.rw.ReadRegister(c.cfg.ReadOffset)
	if err != nil {
		return false, fmt.Errorf("jtag: read register 0x%x: %v: %w", c.cfg.ReadOffset, err, ErrTransport)
	}
	tdo := c.cfg.Layout.TDO(r)
	c.cfg.Timing.Wait(mode)

	if glog.V(3) {
		glog.Infof("tck tms=%d tdi=%d tdo=%d reg=%08x", b2i(tms), b2i(tdi), b2i(tdo), v)
	}
	return tdo, nil
}

// ShiftBlock shifts b through the firmware block engine and polls the busy
// bits until they clear.
func (c *RegisterClock) ShiftBlock(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.cfg.Layout
	if !l.HasBlock() {
		return fmt.Errorf("jtag: %s firmware has no block mode: %w", l.Name, ErrNotImplemented)
	}
	if err := c.rw.WriteRegister(c.cfg.WriteOffset, l.EncodeBlock(c.cfg.Port, b)); err != nil {
		return fmt.Errorf("jtag: write register 0x%x: %v: %w", c.cfg.WriteOffset, err, ErrTransport)
	}
	c.blocks++
	return c.poll(l.BlockBusy, "block busy")
}

// Flush waits for the block engine to drain. A drain bit that never clears
// is only logged: on 2P firmware it is also the top error summary bit, which
// the caller checks on its own.
func (c *RegisterClock) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfg.Layout.BlockDrain == 0 {
		return nil
	}
	err := c.poll(c.cfg.Layout.BlockDrain, "block drain")
	if errors.Is(err, ErrTimeout) {
		glog.Warningf("%v", err)
		return nil
	}
	return err
}

func (c *RegisterClock) poll(mask uint32, what string) error {
	var r uint32
	for i := 0; i < blockPolls; i++ {
		var err error
		r, err = c.rw.ReadRegister(c.cfg.ReadOffset)
		if err != nil {
			return fmt.Errorf("jtag: read register 0x%x: %v: %w", c.cfg.ReadOffset, err, ErrTransport)
		}
		if r&mask == 0 {
			return nil
		}
		c.waits++
	}
	return fmt.Errorf("jtag: %s: register 0x%x = 0x%08x: %w", what, c.cfg.ReadOffset, r, ErrTimeout)
}

// BlockStats reports how many blocks were written and how many extra busy
// polls they needed.
func (c *RegisterClock) BlockStats() (blocks, waits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.blocks, c.waits
}

// ErrorSummary reads the configuration error field of the read register.
func (c *RegisterClock) ErrorSummary() (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, err := c.rw.ReadRegister(c.cfg.ReadOffset)
	if err != nil {
		return 0, fmt.Errorf("jtag: read register 0x%x: %v: %w", c.cfg.ReadOffset, err, ErrTransport)
	}
	return c.cfg.Layout.ErrorSummary(r), nil
}

// Release writes zero to the JTAG register, leaving the port undriven.
func (c *RegisterClock) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.rw.WriteRegister(c.cfg.WriteOffset, 0); err != nil {
		return fmt.Errorf("jtag: write register 0x%x: %v: %w", c.cfg.WriteOffset, err, ErrTransport)
	}
	return nil
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
