package device

import "fmt"

// IDCode is a decoded IEEE 1149.1 IDCODE.
type IDCode struct {
	Raw          uint32
	Version      uint8  // [31:28]
	PartNumber   uint16 // [27:12]
	Manufacturer uint16 // [11:1], JEP106 bank and id
}

// ParseIDCode splits raw into its fields.
func ParseIDCode(raw uint32) IDCode {
	return IDCode{
		Raw:          raw,
		Version:      uint8(raw >> 28 & 0xf),
		PartNumber:   uint16(raw >> 12 & 0xffff),
		Manufacturer: uint16(raw >> 1 & 0x7ff),
	}
}

// Valid reports whether the mandatory LSB is set.
func (id IDCode) Valid() bool {
	return id.Raw&1 == 1
}

func (id IDCode) String() string {
	return fmt.Sprintf("%08x (mfr %s, part 0x%04x, ver %d)",
		id.Raw, ManufacturerName(id.Manufacturer), id.PartNumber, id.Version)
}

// JEP106 names of manufacturers likely to share a chain with Xilinx parts.
var manufacturers = map[uint16]string{
	0x001: "AMD",
	0x009: "Intel",
	0x00e: "Freescale",
	0x015: "Philips",
	0x017: "Texas Instruments",
	0x01f: "Atmel",
	0x020: "STMicroelectronics",
	0x021: "Lattice",
	0x029: "Microchip",
	0x034: "Cypress",
	0x049: "Xilinx",
	0x065: "Analog Devices",
	0x06e: "Altera",
	0x23b: "ARM",
}

// ManufacturerName returns the JEP106 name for code, or the code in hex.
func ManufacturerName(code uint16) string {
	if n, ok := manufacturers[code]; ok {
		return n
	}
	return fmt.Sprintf("0x%03x", code)
}
