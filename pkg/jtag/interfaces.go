package jtag

import (
	"context"
	"fmt"

	"github.com/google/gousb"
)

// ProbeKind categorizes USB adapter families.
type ProbeKind string

const (
	ProbeKindCMSISDAP ProbeKind = "cmsis-dap"
	ProbeKindFTDI     ProbeKind = "ftdi"
)

// ProbeInfo describes a detected USB JTAG adapter.
type ProbeInfo struct {
	Kind        ProbeKind
	Description string
	VendorID    uint16
	ProductID   uint16
	Bus         int
	Address     int
}

// Label returns a user-friendly description for the probe.
func (p ProbeInfo) Label() string {
	if p.Description != "" {
		return fmt.Sprintf("%s (%04X:%04X)", p.Description, p.VendorID, p.ProductID)
	}
	return fmt.Sprintf("%s %04X:%04X", p.Kind, p.VendorID, p.ProductID)
}

// EnumerateProbes lists connected USB devices matching known adapter IDs.
// Devices that cannot be opened for lack of permission are still listed.
func EnumerateProbes(ctx context.Context) ([]ProbeInfo, error) {
	var results []ProbeInfo
	usb := gousb.NewContext()
	defer usb.Close()

	_, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if info, ok := classifyUSBDevice(uint16(desc.Vendor), uint16(desc.Product)); ok {
			info.Bus = desc.Bus
			info.Address = desc.Address
			results = append(results, info)
		}
		return false
	})
	if err != nil && err != gousb.ErrorAccess {
		return results, fmt.Errorf("usb enumerate: %w", err)
	}
	return results, ctx.Err()
}

func classifyUSBDevice(vid, pid uint16) (ProbeInfo, bool) {
	for _, known := range knownProbes {
		if vid == known.VendorID && pid == known.ProductID {
			return ProbeInfo{
				Kind:        known.Kind,
				Description: known.Description,
				VendorID:    vid,
				ProductID:   pid,
			}, true
		}
	}
	return ProbeInfo{}, false
}

type knownUSBDevice struct {
	Kind        ProbeKind
	VendorID    uint16
	ProductID   uint16
	Description string
}

var knownProbes = []knownUSBDevice{
	{ProbeKindCMSISDAP, VendorIDRaspberryPi, ProductIDCMSISDAP, "Raspberry Pi Debug Probe"},
	{ProbeKindCMSISDAP, 0x0d28, 0x0204, "DAPLink CMSIS-DAP"},
	{ProbeKindCMSISDAP, 0x1366, 0x0101, "SEGGER J-Link CMSIS-DAP"},
	{ProbeKindFTDI, 0x0403, 0x6014, "FTDI FT232H"},
	{ProbeKindFTDI, 0x0403, 0x6010, "FTDI FT2232H"},
}
