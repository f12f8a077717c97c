package chain

import (
	"fmt"
	"strings"

	"github.com/OpenTraceLab/jtagft/pkg/device"
)

// Device is one TAP of a chain.
type Device struct {
	Name   string
	Family device.FamilyInfo
	Part   device.Part // zero when only the family is known
	IDCode uint32      // raw IDCODE when the device came from a scan
}

// IRWidth returns the instruction register length of the device.
func (d Device) IRWidth() int {
	return d.Family.IRWidth
}

// NewDevice resolves a part name or family code through reg.
func NewDevice(reg *device.Registry, name string) (Device, error) {
	info, part, err := reg.Resolve(name)
	if err != nil {
		return Device{}, err
	}
	d := Device{Name: strings.ToLower(name), Family: info, Part: part}
	if part.Name != "" {
		d.Name = part.Name
	}
	return d, nil
}

// Topology is the chain as seen from TDO. Devices[0] sits next to TDO; the
// devices before Target form the head, those after it the tail. The zero
// value is a chain holding only the target.
type Topology struct {
	Devices []Device
	Target  int
}

// New builds a topology from the head and tail lists around target. Both
// lists are ordered from TDO to TDI.
func New(target Device, head, tail []Device) Topology {
	devices := make([]Device, 0, len(head)+1+len(tail))
	devices = append(devices, head...)
	devices = append(devices, target)
	devices = append(devices, tail...)
	return Topology{Devices: devices, Target: len(head)}
}

// Validate checks that Target indexes a device of the chain.
func (t Topology) Validate() error {
	if len(t.Devices) == 0 {
		return nil
	}
	if t.Target < 0 || t.Target >= len(t.Devices) {
		return fmt.Errorf("chain: target %d outside chain of %d devices", t.Target, len(t.Devices))
	}
	for i, d := range t.Devices {
		if i != t.Target && d.IRWidth() <= 0 {
			return fmt.Errorf("chain: device %d (%s) has unknown IR length", i, d.Name)
		}
	}
	return nil
}

// TargetDevice returns the target, if the topology names one.
func (t Topology) TargetDevice() (Device, bool) {
	if t.Target < 0 || t.Target >= len(t.Devices) {
		return Device{}, false
	}
	return t.Devices[t.Target], true
}

// HeadDevices is the number of devices between the target and TDO.
func (t Topology) HeadDevices() int {
	if len(t.Devices) == 0 {
		return 0
	}
	return t.Target
}

// TailDevices is the number of devices between TDI and the target.
func (t Topology) TailDevices() int {
	if n := len(t.Devices) - t.Target - 1; n > 0 {
		return n
	}
	return 0
}

// HeadBits is the sum of the head instruction registers.
func (t Topology) HeadBits() int {
	return irBits(t.Devices[:t.HeadDevices()])
}

// TailBits is the sum of the tail instruction registers.
func (t Topology) TailBits() int {
	if t.TailDevices() == 0 {
		return 0
	}
	return irBits(t.Devices[t.Target+1:])
}

func irBits(devices []Device) int {
	n := 0
	for _, d := range devices {
		n += d.IRWidth()
	}
	return n
}

// String renders the topology in the chain description syntax.
func (t Topology) String() string {
	if len(t.Devices) == 0 {
		return "[]"
	}
	parts := make([]string, len(t.Devices))
	for i, d := range t.Devices {
		if i == t.Target {
			parts[i] = "[" + d.Name + "]"
		} else {
			parts[i] = d.Name
		}
	}
	return strings.Join(parts, "+")
}

// FromScan builds a topology from a scanned chain. Every device other than
// the target must be known so that its IR length can be skipped.
func FromScan(res *ScanResult, target int) (Topology, error) {
	if res == nil || len(res.Devices) == 0 {
		return Topology{}, ErrNoDevice
	}
	if target < 0 || target >= len(res.Devices) {
		return Topology{}, fmt.Errorf("chain: target %d outside chain of %d devices", target, len(res.Devices))
	}
	t := Topology{Devices: make([]Device, len(res.Devices)), Target: target}
	for i, sd := range res.Devices {
		if !sd.Known && i != target {
			return Topology{}, fmt.Errorf("chain: device %d (0x%08x) is unknown, IR length cannot be skipped", i, sd.Raw)
		}
		t.Devices[i] = Device{
			Name:   sd.Name(),
			Family: sd.Part.Info(),
			Part:   sd.Part,
			IDCode: sd.Raw,
		}
	}
	return t, nil
}
