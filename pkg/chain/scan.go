package chain

import (
	"errors"
	"fmt"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/jtag"
	"github.com/OpenTraceLab/jtagft/pkg/tap"
)

var (
	// ErrNoResponse means TDO stayed low: no cable, or a break in the chain.
	ErrNoResponse = errors.New("chain: no jtag response")
	// ErrNoDevice means the first word read was already the end marker.
	ErrNoDevice = errors.New("chain: no device found")
	// ErrTooManyDevices usually means a floating TDO.
	ErrTooManyDevices = errors.New("chain: too many devices")
)

// DefaultMaxDevices bounds a scan when the caller passes zero.
const DefaultMaxDevices = 100

// ScanDevice is one IDCODE read from the chain.
type ScanDevice struct {
	Position int
	Raw      uint32
	IDCode   uint32 // Raw without the version field
	Part     device.Part
	Known    bool
}

// Name returns the part name, or a description of the IDCODE fields for
// unknown devices.
func (d ScanDevice) Name() string {
	if d.Known {
		return d.Part.Name
	}
	return "unknown " + device.ParseIDCode(d.Raw).String()
}

// ScanResult lists the devices from TDO (index 0) to TDI.
type ScanResult struct {
	Devices []ScanDevice
}

// Scan resets the chain, which leaves every device with IDCODE (or BYPASS)
// selected, and reads 32-bit words from the data register while shifting in
// ones until the all-ones end marker comes back. On ErrNoResponse after the
// first device and on ErrTooManyDevices the partial result is returned along
// with the error.
func Scan(clk jtag.Clocker, reg *device.Registry, max int) (*ScanResult, error) {
	if max <= 0 {
		max = DefaultMaxDevices
	}
	s := scanner{clk: clk, tap: tap.NewStateMachine()}

	// Reset(3) then Run-Test/Idle to Shift-DR.
	for i := 0; i < 5; i++ {
		s.clock(true, false)
	}
	for _, tms := range []bool{false, true, false, false} {
		s.clock(tms, false)
	}

	res := &ScanResult{}
	var id uint32
	for len(res.Devices) < max && s.err == nil {
		id = 0
		for i := 0; i < 32; i++ {
			if s.clock(false, true) {
				id |= 1 << uint(i)
			}
		}
		if id == 0 || id&0x7fffffff == 0x7fffffff {
			break
		}
		sd := ScanDevice{
			Position: len(res.Devices),
			Raw:      id,
			IDCode:   id & device.PartMask,
		}
		sd.Part, sd.Known = reg.Match(id)
		glog.V(2).Infof("chain: dev[%d] idcode %08x %s", sd.Position, id, sd.Name())
		res.Devices = append(res.Devices, sd)
	}

	// Exit1-DR, Update-DR, Run-Test/Idle.
	s.clock(true, true)
	s.clock(true, false)
	s.clock(false, false)
	if s.err != nil {
		return nil, s.err
	}

	n := len(res.Devices)
	switch {
	case id == 0 && n == 0:
		return nil, fmt.Errorf("chain: TDO stuck low, cable or jtag path may be wrong: %w", ErrNoResponse)
	case id == 0:
		return res, fmt.Errorf("chain: TDO stuck low after %d devices: %w", n, ErrNoResponse)
	case n == 0:
		return nil, ErrNoDevice
	case n == max:
		return res, fmt.Errorf("chain: %d devices, probably noise: %w", n, ErrTooManyDevices)
	}
	return res, nil
}

// scanner clocks the raw port and keeps the first error.
type scanner struct {
	clk jtag.Clocker
	tap *tap.StateMachine
	err error
}

func (s *scanner) clock(tms, tdi bool) bool {
	if s.err != nil {
		return false
	}
	tdo, err := s.clk.ClockBit(tms, tdi, jtag.Normal)
	if err != nil {
		s.err = fmt.Errorf("chain: scan in %s: %w", s.tap.State(), err)
		return false
	}
	s.tap.Clock(tms)
	return tdo
}
