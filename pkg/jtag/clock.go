package jtag

import (
	"errors"
	"runtime"
	"time"
)

// Mode selects how a backend paces the edge it has just issued.
type Mode uint8

const (
	// Normal waits a real-time settle delay after each edge.
	Normal Mode = iota
	// Fast replaces the sleep with a bounded busy-spin.
	Fast
	// NoWait issues edges back to back; used inside bulk loops whose
	// surrounding scan already paces the hardware.
	NoWait
)

func (m Mode) String() string {
	switch m {
	case Normal:
		return "normal"
	case Fast:
		return "fast"
	case NoWait:
		return "nowait"
	}
	return "unknown"
}

// Info describes a clock backend.
type Info struct {
	Name         string
	Vendor       string
	Model        string
	SerialNumber string
	Firmware     string
	Block        bool // supports BlockShifter
	Notes        string
}

// Clocker drives a single TCK edge with the given TMS/TDI levels and returns
// the TDO level sampled for that edge.
type Clocker interface {
	ClockBit(tms, tdi bool, mode Mode) (tdo bool, err error)
}

// BlockShifter is implemented by backends able to shift eight TDI bits, most
// significant first and with TMS held low, in one transaction.
type BlockShifter interface {
	ShiftBlock(b byte) error
	// Flush waits until the last block has left the hardware.
	Flush() error
}

// Releaser returns the port to its idle value at the end of an operation.
type Releaser interface {
	Release() error
}

var (
	// ErrNotImplemented lets backends signal that a requested capability is not
	// available without relying on fmt.Errorf each time.
	ErrNotImplemented = errors.New("jtag: not implemented")
	// ErrTransport marks a failed register or USB access.
	ErrTransport = errors.New("jtag: transport failure")
	// ErrTimeout marks a busy bit that never cleared.
	ErrTimeout = errors.New("jtag: busy timeout")
)

// Timing is the delay policy of a session, chosen once when the backend is
// built.
type Timing struct {
	Settle time.Duration // Normal mode delay
	Spin   int           // Fast mode iterations
}

// DefaultTiming matches the minimum pulse width of the FTSW JTAG port.
var DefaultTiming = Timing{Settle: time.Microsecond, Spin: 2000}

// Wait applies the delay for mode.
func (t Timing) Wait(mode Mode) {
	switch mode {
	case Normal:
		if t.Settle > 0 {
			time.Sleep(t.Settle)
		}
	case Fast:
		spin(t.Spin)
	}
}

func spin(n int) {
	var acc int
	for i := 0; i < n; i++ {
		acc += i
	}
	runtime.KeepAlive(acc)
}
