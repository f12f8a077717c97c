package jtag

import (
	"context"
	"testing"
	"time"
)

func TestClassifyUSBDevice(t *testing.T) {
	tests := []struct {
		vid, pid uint16
		kind     ProbeKind
		ok       bool
	}{
		{VendorIDRaspberryPi, ProductIDCMSISDAP, ProbeKindCMSISDAP, true},
		{0x0403, 0x6014, ProbeKindFTDI, true},
		{0x1234, 0x5678, "", false},
	}
	for _, tt := range tests {
		info, ok := classifyUSBDevice(tt.vid, tt.pid)
		if ok != tt.ok {
			t.Errorf("classify %04X:%04X ok = %v, want %v", tt.vid, tt.pid, ok, tt.ok)
			continue
		}
		if ok && info.Kind != tt.kind {
			t.Errorf("classify %04X:%04X kind = %s, want %s", tt.vid, tt.pid, info.Kind, tt.kind)
		}
	}
}

func TestProbeLabel(t *testing.T) {
	p := ProbeInfo{Kind: ProbeKindFTDI, VendorID: 0x0403, ProductID: 0x6014}
	if got, want := p.Label(), "ftdi 0403:6014"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
	p.Description = "FTDI FT232H"
	if got, want := p.Label(), "FTDI FT232H (0403:6014)"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
}

// Integration test - only runs with real hardware
func TestUSBTransportIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	probes, err := EnumerateProbes(ctx)
	if err != nil {
		t.Skipf("usb unavailable: %v", err)
	}
	t.Logf("found %d probe(s)", len(probes))

	transport, err := NewUSBTransport(VendorIDRaspberryPi, ProductIDCMSISDAP)
	if err != nil {
		t.Skipf("No CMSIS-DAP hardware found: %v", err)
	}
	defer transport.Close()

	if transport.PacketSize() < DefaultPacketSize {
		t.Errorf("Packet size too small: %d", transport.PacketSize())
	}
	resp, err := transport.WriteRead([]byte{CmdInfo, InfoVendorID})
	if err != nil {
		t.Fatalf("WriteRead failed: %v", err)
	}
	if len(resp) < 2 || resp[0] != CmdInfo {
		t.Fatalf("unexpected response % x", resp)
	}
}
