package jtag

import (
	"fmt"
	"math/bits"
	"sync"

	"github.com/golang/glog"
)

// dapTransport is the packet exchange a DAPClock runs over.
type dapTransport interface {
	WriteRead(cmd []byte) ([]byte, error)
	Close() error
}

// DefaultDAPClockHz is the TCK rate requested when none is given.
const DefaultDAPClockHz = 1_000_000

// DAPClock drives TCK through a CMSIS-DAP probe using DAP_JTAG_Sequence.
// Single edges capture TDO; whole bytes go out as one eight-clock sequence.
type DAPClock struct {
	transport dapTransport
	proto     dapProtocol
	info      Info

	mu        sync.Mutex
	connected bool
}

// OpenDAPClock opens the probe at vid:pid, connects its JTAG port and sets
// the TCK frequency.
func OpenDAPClock(vid, pid uint16, hz uint32) (*DAPClock, error) {
	t, err := NewUSBTransport(vid, pid)
	if err != nil {
		return nil, err
	}
	c, err := newDAPClock(t, hz)
	if err != nil {
		t.Close()
		return nil, err
	}
	return c, nil
}

func newDAPClock(t dapTransport, hz uint32) (*DAPClock, error) {
	c := &DAPClock{transport: t}
	c.queryInfo()

	resp, err := t.WriteRead(c.proto.encodeConnect(PortJTAG))
	if err != nil {
		return nil, err
	}
	port, err := c.proto.decodeConnect(resp)
	if err != nil {
		return nil, err
	}
	if port != PortJTAG {
		return nil, fmt.Errorf("cmsis-dap: probe connected port %d, want JTAG", port)
	}
	c.connected = true

	if hz == 0 {
		hz = DefaultDAPClockHz
	}
	resp, err = t.WriteRead(c.proto.encodeSetClock(hz))
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, CmdSWJClock); err != nil {
		return nil, err
	}
	glog.V(1).Infof("cmsis-dap: %s %s connected at %d Hz", c.info.Vendor, c.info.Model, hz)
	return c, nil
}

// queryInfo fills the descriptive fields; probes that omit a string leave it
// empty.
func (c *DAPClock) queryInfo() {
	get := func(id byte) string {
		resp, err := c.transport.WriteRead(c.proto.encodeInfo(id))
		if err != nil {
			return ""
		}
		s, err := c.proto.decodeInfo(resp)
		if err != nil {
			return ""
		}
		return s
	}
	c.info = Info{
		Name:         "cmsis-dap",
		Vendor:       get(InfoVendorID),
		Model:        get(InfoProductID),
		SerialNumber: get(InfoSerialNum),
		Firmware:     get(InfoFirmwareVer),
		Block:        true,
	}
}

// Info describes the probe.
func (c *DAPClock) Info() Info {
	return c.info
}

// ClockBit issues one TCK with TDO capture. The USB round trip paces the
// edge, so mode is ignored.
func (c *DAPClock) ClockBit(tms, tdi bool, mode Mode) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	seq := []JTAGSequence{NewJTAGSequence(1, tms, true, []byte{byte(b2i(tdi))})}
	out, err := c.run(seq)
	if err != nil {
		return false, err
	}
	return out[0][0]&1 == 1, nil
}

// ShiftBlock shifts b most significant bit first with TMS low.
func (c *DAPClock) ShiftBlock(b byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The probe sends TDI least significant bit first.
	seq := []JTAGSequence{NewJTAGSequence(8, false, false, []byte{bits.Reverse8(b)})}
	_, err := c.run(seq)
	return err
}

// Flush is a no-op: every sequence has completed when its response arrives.
func (c *DAPClock) Flush() error {
	return nil
}

func (c *DAPClock) run(seqs []JTAGSequence) ([][]byte, error) {
	if !c.connected {
		return nil, fmt.Errorf("cmsis-dap: not connected: %w", ErrTransport)
	}
	resp, err := c.transport.WriteRead(c.proto.encodeJTAGSequence(seqs))
	if err != nil {
		return nil, err
	}
	return c.proto.decodeJTAGSequence(resp, seqs)
}

// Close disconnects the probe and releases the transport.
func (c *DAPClock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		if _, err := c.transport.WriteRead(c.proto.encodeDisconnect()); err != nil {
			glog.Warningf("cmsis-dap: disconnect: %v", err)
		}
		c.connected = false
	}
	return c.transport.Close()
}
