package jtag

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"
	rpio "github.com/stianeikeland/go-rpio/v4"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// Pin is one digital line of a bit-banged JTAG port.
type Pin interface {
	Out(high bool) error
	Read() bool
}

// Pins wires the four JTAG signals.
type Pins struct {
	TCK, TMS, TDI, TDO Pin
}

// PinClock bit-bangs TCK on general purpose IO lines.
type PinClock struct {
	pins   Pins
	timing Timing
	name   string

	mu sync.Mutex
}

// NewPinClock drives the given pins. TCK is left low.
func NewPinClock(name string, pins Pins, timing Timing) (*PinClock, error) {
	if pins.TCK == nil || pins.TMS == nil || pins.TDI == nil || pins.TDO == nil {
		return nil, errors.New("jtag: incomplete pin set")
	}
	if err := pins.TCK.Out(false); err != nil {
		return nil, fmt.Errorf("jtag: drive TCK: %v: %w", err, ErrTransport)
	}
	return &PinClock{pins: pins, timing: timing, name: name}, nil
}

// Info describes the backend.
func (c *PinClock) Info() Info {
	return Info{Name: c.name}
}

// ClockBit sets TMS and TDI with TCK low, samples TDO and raises TCK.
func (c *PinClock) ClockBit(tms, tdi bool, mode Mode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pins.TMS.Out(tms); err != nil {
		return false, fmt.Errorf("jtag: drive TMS: %v: %w", err, ErrTransport)
	}
	if err := c.pins.TDI.Out(tdi); err != nil {
		return false, fmt.Errorf("jtag: drive TDI: %v: %w", err, ErrTransport)
	}
	tdo := c.pins.TDO.Read()
	if err := c.pins.TCK.Out(true); err != nil {
		return false, fmt.Errorf("jtag: drive TCK: %v: %w", err, ErrTransport)
	}
	c.timing.Wait(mode)
	if err := c.pins.TCK.Out(false); err != nil {
		return false, fmt.Errorf("jtag: drive TCK: %v: %w", err, ErrTransport)
	}
	return tdo, nil
}

// Release leaves TCK low and TMS high.
func (c *PinClock) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pins.TCK.Out(false); err != nil {
		return err
	}
	return c.pins.TMS.Out(true)
}

// periphPin adapts a periph.io line.
type periphPin struct {
	p gpio.PinIO
}

func (p periphPin) Out(high bool) error { return p.p.Out(gpio.Level(high)) }
func (p periphPin) Read() bool          { return bool(p.p.Read()) }

var hostInitialized atomic.Bool

func initHost() error {
	if hostInitialized.CompareAndSwap(false, true) {
		if _, err := host.Init(); err != nil {
			hostInitialized.Store(false)
			return fmt.Errorf("jtag: host initialization failed: %w", err)
		}
	}
	return nil
}

// PinNames names the JTAG lines in the periph.io GPIO registry.
type PinNames struct {
	TCK, TMS, TDI, TDO string
}

// OpenGPIOClock resolves names through gpioreg and configures TDO as a
// pulled-up input.
func OpenGPIOClock(names PinNames, timing Timing) (*PinClock, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	lookup := func(signal, name string) (gpio.PinIO, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("jtag: %s pin %q not found", signal, name)
		}
		return p, nil
	}
	var pins [4]gpio.PinIO
	for i, n := range [4][2]string{{"TCK", names.TCK}, {"TMS", names.TMS}, {"TDI", names.TDI}, {"TDO", names.TDO}} {
		p, err := lookup(n[0], n[1])
		if err != nil {
			return nil, err
		}
		pins[i] = p
	}
	if err := pins[3].In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("jtag: configure TDO: %w", err)
	}
	glog.V(1).Infof("gpio: TCK=%s TMS=%s TDI=%s TDO=%s", pins[0], pins[1], pins[2], pins[3])
	return NewPinClock("gpio", Pins{
		TCK: periphPin{pins[0]},
		TMS: periphPin{pins[1]},
		TDI: periphPin{pins[2]},
		TDO: periphPin{pins[3]},
	}, timing)
}

// OpenFTDIClock bit-bangs the first FT232H found, using the MPSSE JTAG pin
// assignment D0=TCK, D1=TDI, D2=TDO, D3=TMS.
func OpenFTDIClock(timing Timing) (*PinClock, error) {
	if err := initHost(); err != nil {
		return nil, err
	}
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		ft, ok := dev.(*ftdi.FT232H)
		if !ok {
			continue
		}
		ft.Info(&info)
		glog.V(1).Infof("ftdi: using %04x:%04x", info.VenID, info.DevID)
		if err := ft.D2.In(gpio.PullUp, gpio.NoEdge); err != nil {
			return nil, fmt.Errorf("jtag: configure TDO: %w", err)
		}
		c, err := NewPinClock("ftdi", Pins{
			TCK: periphPin{ft.D0},
			TDI: periphPin{ft.D1},
			TDO: periphPin{ft.D2},
			TMS: periphPin{ft.D3},
		}, timing)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, errors.New("jtag: no FT232H found")
}

// rpioPin adapts a BCM2835 line accessed through /dev/gpiomem.
type rpioPin struct {
	p rpio.Pin
}

func (p rpioPin) Out(high bool) error {
	if high {
		p.p.High()
	} else {
		p.p.Low()
	}
	return nil
}

func (p rpioPin) Read() bool { return p.p.Read() == rpio.High }

// PinNumbers are BCM GPIO numbers of the JTAG lines on a Raspberry Pi.
type PinNumbers struct {
	TCK, TMS, TDI, TDO int
}

// RPIOClock is a PinClock whose Release also unmaps the GPIO block.
type RPIOClock struct {
	*PinClock
}

// Release parks the port and closes the mapping.
func (c *RPIOClock) Release() error {
	err := c.PinClock.Release()
	if cerr := rpio.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenRPIOClock maps the Raspberry Pi GPIO block directly.
func OpenRPIOClock(nums PinNumbers, timing Timing) (*RPIOClock, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("jtag: open gpiomem: %w", err)
	}
	pin := func(n int, out bool) rpioPin {
		p := rpio.Pin(n)
		if out {
			p.Output()
		} else {
			p.Input()
			p.PullUp()
		}
		return rpioPin{p}
	}
	c, err := NewPinClock("rpio", Pins{
		TCK: pin(nums.TCK, true),
		TMS: pin(nums.TMS, true),
		TDI: pin(nums.TDI, true),
		TDO: pin(nums.TDO, false),
	}, timing)
	if err != nil {
		rpio.Close()
		return nil, err
	}
	return &RPIOClock{c}, nil
}
