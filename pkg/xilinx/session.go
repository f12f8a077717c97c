// Package xilinx runs the configuration sequences of Xilinx FPGAs and XCF
// platform flash PROMs over a shift.Engine.
package xilinx

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/jtag"
	"github.com/OpenTraceLab/jtagft/pkg/shift"
)

var (
	// ErrMismatch marks a readback that differs from what the sequence
	// expects. It is fatal unless the session ignores mismatches.
	ErrMismatch = errors.New("xilinx: unexpected readback")
	// ErrTimeout marks a status poll that never reported ready.
	ErrTimeout = errors.New("xilinx: timeout")
)

// ErrorSource reports the configuration error field of the JTAG port.
type ErrorSource interface {
	ErrorSummary() (uint32, error)
}

// BlockCounter reports how many bytes went through the block engine and how
// many extra busy polls they took.
type BlockCounter interface {
	BlockStats() (blocks, waits int)
}

// Config holds the per-session settings.
type Config struct {
	Registry *device.Registry
	// Errors is consulted after configuration when the port provides one.
	Errors ErrorSource
	// Release parks the port after an identification.
	Release jtag.Releaser
	// Blocks, when set, adds block engine counters to the progress line.
	Blocks BlockCounter
	// IgnoreMismatch turns ErrMismatch into warnings.
	IgnoreMismatch bool
	// Parallel selects the parallel (SelectMAP) mode of XCF..P PROMs.
	Parallel bool
	// Out receives the progress and status lines; nil discards them.
	Out io.Writer
}

// Session runs operations on the target of one engine.
type Session struct {
	e   *shift.Engine
	cfg Config
}

// NewSession binds cfg to an engine.
func NewSession(e *shift.Engine, cfg Config) *Session {
	if cfg.Registry == nil {
		cfg.Registry = device.Default()
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	return &Session{e: e, cfg: cfg}
}

// Result describes the last readbacks of an operation.
type Result struct {
	IDCode       uint32
	Part         device.Part
	Capture      uint32 // last IR capture of interest
	Status       uint32 // configuration status register
	ErrorSummary uint32
	// Warnings lists ignored mismatches and tolerated timeouts.
	Warnings []string
}

func (r *Result) warn(err error) {
	glog.Warningf("%v", err)
	r.Warnings = append(r.Warnings, err.Error())
}

// seq runs a sequence of scans on one family, keeping the first error so
// that long instruction scripts read as a list of steps.
type seq struct {
	s   *Session
	fam device.FamilyInfo
	res *Result
	err error
}

func (s *Session) newSeq(fam device.FamilyInfo, res *Result) *seq {
	return &seq{s: s, fam: fam, res: res}
}

func (q *seq) ir(in device.Instruction) uint32 {
	if q.err != nil {
		return 0
	}
	op, err := q.fam.Opcode(in)
	if err != nil {
		q.err = err
		return 0
	}
	capture, err := q.s.e.ShiftIR(q.fam.IRWidth, op)
	if err != nil {
		q.err = fmt.Errorf("xilinx: %s: %w", in, err)
		return 0
	}
	glog.V(2).Infof("xilinx: %s capture %0*x", in, (q.fam.IRWidth+3)/4, capture)
	return capture
}

func (q *seq) dr(width int, v uint32, opts ...shift.ScanOption) uint32 {
	if q.err != nil {
		return 0
	}
	out, err := q.s.e.ShiftDR(width, v, opts...)
	if err != nil {
		q.err = fmt.Errorf("xilinx: dr%d 0x%x: %w", width, v, err)
	}
	return out
}

func (q *seq) reset(n int) {
	if q.err == nil {
		q.err = q.s.e.Reset(n)
	}
}

func (q *seq) sleep(d time.Duration) {
	if q.err == nil {
		q.s.e.Sleep(d)
	}
}

func (q *seq) bypass(v bool) {
	q.s.e.BypassBit(v)
}

// mismatch records an unexpected readback. It stops the sequence unless the
// session ignores mismatches.
func (q *seq) mismatch(format string, args ...any) {
	if q.err != nil {
		return
	}
	err := fmt.Errorf("xilinx: "+format+": %w", append(args, ErrMismatch)...)
	if !q.s.cfg.IgnoreMismatch {
		q.err = err
		return
	}
	q.res.warn(err)
}

// printf writes a progress line to the session output.
func (q *seq) printf(format string, args ...any) {
	if q.err == nil {
		fmt.Fprintf(q.s.cfg.Out, format, args...)
	}
}

// idcode reads and matches the target IDCODE.
func (q *seq) idcode() uint32 {
	q.ir(device.IDCODE)
	id := q.dr(32, 0)
	if q.err != nil {
		return 0
	}
	q.res.IDCode = id
	if p, ok := q.s.cfg.Registry.Match(id); ok {
		q.res.Part = p
		q.printf("idcode = %08x (%s)\n", id, p.Name)
	} else {
		q.printf("idcode = %08x (%s)\n", id, device.ParseIDCode(id))
	}
	glog.V(1).Infof("xilinx: idcode %08x part %q", id, q.res.Part.Name)
	return id
}

// progress returns a callback printing whole percentages.
func (s *Session) progress() func(done, total int64) {
	last := int64(-1)
	return func(done, total int64) {
		pct := done * 100 / total
		if pct == last {
			return
		}
		last = pct
		if s.cfg.Blocks == nil {
			fmt.Fprintf(s.cfg.Out, "\r%d%%", pct)
			return
		}
		blocks, waits := s.cfg.Blocks.BlockStats()
		fmt.Fprintf(s.cfg.Out, "\r%d%% %d %d", pct, blocks, waits)
	}
}
