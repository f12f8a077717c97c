// Package shift implements instruction and data register scans over a bare
// TCK clock, skipping the devices around the target with BYPASS.
package shift

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/jtag"
	"github.com/OpenTraceLab/jtagft/pkg/tap"
)

// ErrState is returned when a scan is started outside Run-Test/Idle.
var ErrState = errors.New("shift: TAP not in Run-Test/Idle")

// DefaultIRSettle is the pause before every instruction scan.
const DefaultIRSettle = time.Microsecond

// Engine issues scans on one chain. It is not safe for concurrent use.
type Engine struct {
	clk   jtag.Clocker
	block jtag.BlockShifter
	topo  chain.Topology

	headDevices, tailDevices int
	headBits, tailBits       int

	bypass   bool
	fast     bool
	useBlock bool
	irSettle time.Duration
	sleep    func(time.Duration)

	tap *tap.StateMachine
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces time.Sleep for every real-time delay of the engine.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithIRSettle sets the pause before instruction scans.
func WithIRSettle(d time.Duration) Option {
	return func(e *Engine) { e.irSettle = d }
}

// WithoutBlock disables the block shift path.
func WithoutBlock() Option {
	return func(e *Engine) { e.useBlock = false }
}

// New creates an engine for the target of topo. The block path is used when
// the clock implements jtag.BlockShifter and reports block support.
func New(clk jtag.Clocker, topo chain.Topology, opts ...Option) *Engine {
	e := &Engine{
		clk:         clk,
		topo:        topo,
		headDevices: topo.HeadDevices(),
		tailDevices: topo.TailDevices(),
		headBits:    topo.HeadBits(),
		tailBits:    topo.TailBits(),
		bypass:      true,
		useBlock:    true,
		irSettle:    DefaultIRSettle,
		sleep:       time.Sleep,
		tap:         tap.NewStateMachine(),
	}
	if bs, ok := clk.(jtag.BlockShifter); ok {
		if d, ok := clk.(interface{ Info() jtag.Info }); !ok || d.Info().Block {
			e.block = bs
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Topology returns the chain the engine skips around.
func (e *Engine) Topology() chain.Topology {
	return e.topo
}

// State reports the tracked TAP state.
func (e *Engine) State() tap.State {
	return e.tap.State()
}

// BypassBit sets the value shifted into each bypassed device during data
// scans. It defaults to one; PROM sequences use zero.
func (e *Engine) BypassBit(v bool) {
	e.bypass = v
}

// SetFast selects the busy-spin pacing for single edges and returns the
// previous setting.
func (e *Engine) SetFast(v bool) bool {
	old := e.fast
	e.fast = v
	return old
}

// Block reports whether byte transfers will use the block path.
func (e *Engine) Block() bool {
	return e.useBlock && e.block != nil
}

// SetIRSettle sets the pause before instruction scans and returns the
// previous one.
func (e *Engine) SetIRSettle(d time.Duration) time.Duration {
	old := e.irSettle
	e.irSettle = d
	return old
}

// Sleep waits d with the engine's sleeper.
func (e *Engine) Sleep(d time.Duration) {
	if d > 0 {
		e.sleep(d)
	}
}

func (e *Engine) mode() jtag.Mode {
	if e.fast {
		return jtag.Fast
	}
	return jtag.Normal
}

func (e *Engine) lastInChain() bool {
	return e.tailDevices == 0
}

func (e *Engine) clock(tms, tdi bool, mode jtag.Mode) (bool, error) {
	tdo, err := e.clk.ClockBit(tms, tdi, mode)
	if err != nil {
		return false, fmt.Errorf("shift: clock in %s: %w", e.tap.State(), err)
	}
	e.tap.Clock(tms)
	return tdo, nil
}

func (e *Engine) tms(seq ...bool) error {
	mode := e.mode()
	for _, v := range seq {
		if _, err := e.clock(v, false, mode); err != nil {
			return err
		}
	}
	return nil
}

// shiftLSB shifts the low n bits of v, least significant first. The last
// bit carries TMS=1 when exit is set.
func (e *Engine) shiftLSB(n int, v uint32, exit bool, mode jtag.Mode) (uint32, error) {
	var out uint32
	for i := 0; i < n; i++ {
		tdo, err := e.clock(exit && i == n-1, (v>>uint(i))&1 == 1, mode)
		if err != nil {
			return out, err
		}
		if tdo {
			out |= 1 << uint(i)
		}
	}
	return out, nil
}

// shiftMSB is shiftLSB starting from bit n-1.
func (e *Engine) shiftMSB(n int, v uint32, exit bool, mode jtag.Mode) (uint32, error) {
	var out uint32
	for i := n - 1; i >= 0; i-- {
		tdo, err := e.clock(exit && i == 0, (v>>uint(i))&1 == 1, mode)
		if err != nil {
			return out, err
		}
		if tdo {
			out |= 1 << uint(i)
		}
	}
	return out, nil
}

// skipIR shifts n ones in 32-bit chunks. Only the last bit of a tail skip
// leaves Shift-IR.
func (e *Engine) skipIR(n int, tail bool) error {
	mode := e.mode()
	for i := n; i > 0; i -= 32 {
		chunk := i
		if chunk > 32 {
			chunk = 32
		}
		if _, err := e.shiftLSB(chunk, ^uint32(0), tail && i <= 32, mode); err != nil {
			return err
		}
	}
	return nil
}

// skipDR shifts one bypass bit per device.
func (e *Engine) skipDR(n int, tail bool) error {
	mode := e.mode()
	for i := 0; i < n; i++ {
		if _, err := e.clock(tail && i == n-1, e.bypass, mode); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) checkIdle() error {
	if s := e.tap.State(); s != tap.StateRunTestIdle {
		return fmt.Errorf("shift: scan from %s: %w", s, ErrState)
	}
	return nil
}

// enterDR moves from Run-Test/Idle to Shift-DR and skips the head devices.
func (e *Engine) enterDR() error {
	if err := e.checkIdle(); err != nil {
		return err
	}
	if err := e.tms(true, false, false); err != nil {
		return err
	}
	return e.skipDR(e.headDevices, false)
}

// leaveDR skips the tail devices and returns to Run-Test/Idle.
func (e *Engine) leaveDR() error {
	if err := e.skipDR(e.tailDevices, true); err != nil {
		return err
	}
	return e.tms(true, false)
}

// ShiftIR loads value into the target instruction register and returns the
// target's IR capture.
func (e *Engine) ShiftIR(width int, value uint32) (uint32, error) {
	if width <= 0 || width > 32 {
		return 0, fmt.Errorf("shift: IR width %d out of range", width)
	}
	if err := e.checkIdle(); err != nil {
		return 0, err
	}
	e.Sleep(e.irSettle)
	if err := e.tms(true, true, false, false); err != nil {
		return 0, err
	}
	if err := e.skipIR(e.headBits, false); err != nil {
		return 0, err
	}
	capture, err := e.shiftLSB(width, value, e.lastInChain(), e.mode())
	if err != nil {
		return 0, err
	}
	if err := e.skipIR(e.tailBits, true); err != nil {
		return 0, err
	}
	if err := e.tms(true, false); err != nil {
		return 0, err
	}
	glog.V(2).Infof("shift: ir %0*x capture %0*x", (width+3)/4, value, (width+3)/4, capture)
	return capture, nil
}

// ScanOption adjusts a single data scan.
type ScanOption func(*scanConfig)

type scanConfig struct {
	exitDelay   time.Duration
	updateDelay time.Duration
}

// ExitDelay waits d in Exit1-DR before Update-DR.
func ExitDelay(d time.Duration) ScanOption {
	return func(c *scanConfig) { c.exitDelay = d }
}

// UpdateDelay waits d in Update-DR before returning to Run-Test/Idle.
func UpdateDelay(d time.Duration) ScanOption {
	return func(c *scanConfig) { c.updateDelay = d }
}

// ShiftDR shifts width bits of value, least significant first, through the
// target data register and returns the bits it captured.
func (e *Engine) ShiftDR(width int, value uint32, opts ...ScanOption) (uint32, error) {
	if width <= 0 || width > 32 {
		return 0, fmt.Errorf("shift: DR width %d out of range", width)
	}
	var cfg scanConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := e.enterDR(); err != nil {
		return 0, err
	}
	out, err := e.shiftLSB(width, value, e.lastInChain(), e.mode())
	if err != nil {
		return 0, err
	}
	if err := e.skipDR(e.tailDevices, true); err != nil {
		return 0, err
	}
	e.Sleep(cfg.exitDelay)
	if err := e.tms(true); err != nil {
		return 0, err
	}
	e.Sleep(cfg.updateDelay)
	if err := e.tms(false); err != nil {
		return 0, err
	}
	glog.V(2).Infof("shift: dr%d %0*x -> %0*x", width, (width+3)/4, value, (width+3)/4, out)
	return out, nil
}

// ShiftDRWords shifts each word most significant bit first.
func (e *Engine) ShiftDRWords(words []uint32) error {
	if len(words) == 0 {
		return errors.New("shift: no words to shift")
	}
	if err := e.enterDR(); err != nil {
		return err
	}
	mode := e.mode()
	for i, w := range words {
		if _, err := e.shiftMSB(32, w, i == len(words)-1 && e.lastInChain(), mode); err != nil {
			return err
		}
	}
	if err := e.leaveDR(); err != nil {
		return err
	}
	glog.V(2).Infof("shift: dr words %08x", words)
	return nil
}

// Reset holds TMS high for n+2 edges, enough to reach Test-Logic-Reset from
// any state, then moves to Run-Test/Idle.
func (e *Engine) Reset(n int) error {
	seq := make([]bool, n+3)
	for i := 0; i < n+2; i++ {
		seq[i] = true
	}
	if err := e.tms(seq...); err != nil {
		return err
	}
	glog.V(2).Infof("shift: reset %d", n)
	return nil
}

// RunTest clocks four edges with TMS high and then n with TMS low, in fast
// pacing.
func (e *Engine) RunTest(n int) error {
	for i := 0; i < 4; i++ {
		if _, err := e.clock(true, false, jtag.Fast); err != nil {
			return err
		}
	}
	for i := 0; i < n; i++ {
		if _, err := e.clock(false, false, jtag.Fast); err != nil {
			return err
		}
	}
	glog.V(2).Infof("shift: runtest %d", n)
	return nil
}
