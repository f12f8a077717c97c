// Package device holds the Xilinx family and part tables: instruction
// opcodes, status validation constants and IDCODE matching.
package device

import (
	"fmt"
	"math/bits"
	"strings"
)

// Family identifies a device family sharing one instruction set.
type Family uint8

const (
	FamilyUnknown Family = iota
	XC3S
	XC5V
	XC6V
	XC6S
	XC7A
	XC7K
	XC7Z
	XCFP // XCF..P platform flash
	XCFS // XCF..S platform flash, chain topology only

	numFamilies
)

func (f Family) String() string {
	if info, ok := families[f]; ok {
		return info.Name
	}
	return fmt.Sprintf("Family(%d)", f)
}

// Instruction names a JTAG instruction independently of its opcode.
type Instruction uint8

const (
	IDCODE Instruction = iota
	BYPASS
	JPROG
	JSTART
	CFGIN
	CFGOUT
	ISPEN
	ISCErase
	ISCProgram
	ISCAddrShift
	ISCDataShift
	XSCOpStatus
	XSCDataSUCR
	XSCDataCC
	XSCDataCCB
	XSCDataDone
	XSCDataBTC
	XSCDataRDPT
	XSCDataWRPT
	XSCUnlock
	CONLD
)

var instructionNames = [...]string{
	IDCODE:       "IDCODE",
	BYPASS:       "BYPASS",
	JPROG:        "JPROG",
	JSTART:       "JSTART",
	CFGIN:        "CFG_IN",
	CFGOUT:       "CFG_OUT",
	ISPEN:        "ISPEN",
	ISCErase:     "ISC_ERASE",
	ISCProgram:   "ISC_PROGRAM",
	ISCAddrShift: "ISC_ADDRESS_SHIFT",
	ISCDataShift: "ISC_DATA_SHIFT",
	XSCOpStatus:  "XSC_OP_STATUS",
	XSCDataSUCR:  "XSC_DATA_SUCR",
	XSCDataCC:    "XSC_DATA_CC",
	XSCDataCCB:   "XSC_DATA_CCB",
	XSCDataDone:  "XSC_DATA_DONE",
	XSCDataBTC:   "XSC_DATA_BTC",
	XSCDataRDPT:  "XSC_DATA_RDPT",
	XSCDataWRPT:  "XSC_DATA_WRPT",
	XSCUnlock:    "XSC_UNLOCK",
	CONLD:        "CONLD",
}

func (in Instruction) String() string {
	if int(in) < len(instructionNames) {
		return instructionNames[in]
	}
	return fmt.Sprintf("Instruction(%d)", in)
}

// FamilyInfo is the immutable description of a family.
type FamilyInfo struct {
	Family  Family
	Code    string // two-character code found in bitstream device strings
	Name    string
	IRWidth int
	DRWidth int
	PROM    bool

	Opcodes map[Instruction]uint32

	// IR capture pattern while configuring; InitBit and DoneBit are the
	// only bits allowed to differ.
	IRCapture uint32
	InitBit   uint32
	DoneBit   uint32

	// Status register check after configuration.
	StatusMask     uint32
	StatusExpected uint32
	// Status register check of a standalone readstat.
	ReadStatusMask     uint32
	ReadStatusExpected uint32
	// ReadStatus is the configuration packet selecting the status register.
	ReadStatus []uint32
}

// Opcode returns the opcode of in, or an error when the family lacks it.
func (fi FamilyInfo) Opcode(in Instruction) (uint32, error) {
	op, ok := fi.Opcodes[in]
	if !ok {
		return 0, fmt.Errorf("device: %s has no %s instruction", fi.Name, in)
	}
	return op, nil
}

// MustOpcode is Opcode for instructions every family of its kind has.
func (fi FamilyInfo) MustOpcode(in Instruction) uint32 {
	op, err := fi.Opcode(in)
	if err != nil {
		panic(err)
	}
	return op
}

var (
	virtexOpcodes = map[Instruction]uint32{
		IDCODE: 0x3c9,
		JPROG:  0x3cb,
		JSTART: 0x3cc,
		CFGIN:  0x3c5,
		CFGOUT: 0x3c4,
		BYPASS: 0x3ff,
	}
	spartanOpcodes = map[Instruction]uint32{
		IDCODE: 0x09,
		JPROG:  0x0b,
		JSTART: 0x0c,
		CFGIN:  0x05,
		CFGOUT: 0x04,
		BYPASS: 0x3f,
	}
	xcfpOpcodes = map[Instruction]uint32{
		IDCODE:       0xfe,
		ISPEN:        0xe8,
		XSCDataRDPT:  0x04,
		XSCDataWRPT:  0xf7,
		ISCErase:     0xec,
		XSCOpStatus:  0xe3,
		CONLD:        0xf0,
		XSCUnlock:    0xaa55,
		ISCProgram:   0xea,
		ISCAddrShift: 0xeb,
		ISCDataShift: 0xed,
		XSCDataSUCR:  0x0e,
		XSCDataCC:    0x07,
		XSCDataCCB:   0x0c,
		XSCDataDone:  0x09,
		XSCDataBTC:   0xf2,
		BYPASS:       0xffff,
	}
	xcfsOpcodes = map[Instruction]uint32{
		IDCODE: 0xfe,
		BYPASS: 0xff,
	}

	virtexReadStatus   = []uint32{0xffffffff, 0xaa995566, 0x20000000, 0x2800e001, 0x00000000}
	spartan6ReadStatus = []uint32{0xffffffff, 0xaa995566, 0x20002901, 0x00000000}
	spartan3ReadStatus = []uint32{0xffffffff, 0xffffaa99, 0x29012000, 0x20000000}
	series7ReadStatus  = []uint32{0xffffffff, 0xaa995566, 0x20000000, 0x2800e001, 0x20000000, 0x00000000}
)

func virtex(f Family, code, name string) FamilyInfo {
	return FamilyInfo{
		Family: f, Code: code, Name: name,
		IRWidth: 10, DRWidth: 32,
		Opcodes:   virtexOpcodes,
		IRCapture: 0x3c1, InitBit: 0x10, DoneBit: 0x20,
		StatusMask: 0xff1ffc1f, StatusExpected: 0x3f1e0800,
		ReadStatusMask: 0xff1ffc1f, ReadStatusExpected: 0x3f1e0800,
		ReadStatus: virtexReadStatus,
	}
}

// 7-series STAT register bits, UG470 table 5-25.
const (
	stat7CRCError     = 1 << 0
	stat7EOS          = 1 << 4
	stat7GTSCfgB      = 1 << 5
	stat7GWE          = 1 << 6
	stat7GHighB       = 1 << 7
	stat7InitComplete = 1 << 11
	stat7InitB        = 1 << 12
	stat7Done         = 1 << 14
	stat7IDError      = 1 << 15
	stat7DecError     = 1 << 16

	// A started device has these set and none of the error bits.
	stat7Started = stat7EOS | stat7GTSCfgB | stat7GWE | stat7GHighB |
		stat7InitComplete | stat7InitB | stat7Done
	stat7Errors = stat7CRCError | stat7IDError | stat7DecError
)

// The 7-series status word arrives bit-reversed, MSB of STAT first.
func series7(f Family, code, name string) FamilyInfo {
	mask := bits.Reverse32(stat7Started | stat7Errors)
	exp := bits.Reverse32(stat7Started)
	return FamilyInfo{
		Family: f, Code: code, Name: name,
		IRWidth: 6, DRWidth: 32,
		Opcodes:   spartanOpcodes,
		IRCapture: 0x01, InitBit: 0x10, DoneBit: 0x20,
		StatusMask: mask, StatusExpected: exp,
		ReadStatusMask: mask, ReadStatusExpected: exp,
		ReadStatus: series7ReadStatus,
	}
}

var families = map[Family]FamilyInfo{
	XC3S: {
		Family: XC3S, Code: "3s", Name: "Spartan-3",
		IRWidth: 6, DRWidth: 32,
		Opcodes:   spartanOpcodes,
		IRCapture: 0x01, InitBit: 0x10, DoneBit: 0x20,
		StatusMask: 0xd00f, StatusExpected: 0x100c,
		ReadStatusMask: 0xffffff0f, ReadStatusExpected: 0x1c0c,
		ReadStatus: spartan3ReadStatus,
	},
	XC5V: virtex(XC5V, "5v", "Virtex-5"),
	XC6V: virtex(XC6V, "6v", "Virtex-6"),
	XC6S: {
		Family: XC6S, Code: "6s", Name: "Spartan-6",
		IRWidth: 6, DRWidth: 32,
		Opcodes:   spartanOpcodes,
		IRCapture: 0x01, InitBit: 0x10, DoneBit: 0x20,
		StatusMask: 0xd00f, StatusExpected: 0x100c,
		ReadStatusMask: 0xffffff0f, ReadStatusExpected: 0x1c0c,
		ReadStatus: spartan6ReadStatus,
	},
	XC7A: series7(XC7A, "7a", "Artix-7"),
	XC7K: series7(XC7K, "7k", "Kintex-7"),
	XC7Z: series7(XC7Z, "7z", "Zynq-7000"),
	XCFP: {
		Family: XCFP, Code: "fp", Name: "XCF-P",
		IRWidth: 16, DRWidth: 32, PROM: true,
		Opcodes: xcfpOpcodes,
	},
	XCFS: {
		Family: XCFS, Code: "fs", Name: "XCF-S",
		IRWidth: 8, DRWidth: 32, PROM: true,
		Opcodes: xcfsOpcodes,
	},
}

// Info returns the table entry for f.
func Info(f Family) (FamilyInfo, bool) {
	info, ok := families[f]
	return info, ok
}

// Families lists every known family in enum order.
func Families() []FamilyInfo {
	out := make([]FamilyInfo, 0, len(families))
	for f := Family(1); f < numFamilies; f++ {
		out = append(out, families[f])
	}
	return out
}

// FamilyByCode resolves a family code such as "5v" or "xc5v".
func FamilyByCode(code string) (FamilyInfo, bool) {
	code = strings.TrimPrefix(strings.ToLower(code), "xc")
	for _, info := range families {
		if info.Code == code {
			return info, true
		}
	}
	return FamilyInfo{}, false
}

// FamilyForDevice maps a device string from a bitstream header, such as
// "5vlx30tff665" or "xc6slx45", to its family.
func FamilyForDevice(device string) (FamilyInfo, error) {
	d := strings.TrimPrefix(strings.ToLower(device), "xc")
	if len(d) < 2 {
		return FamilyInfo{}, fmt.Errorf("device: unsupported device %q", device)
	}
	info, ok := FamilyByCode(d[:2])
	if !ok || info.PROM {
		return FamilyInfo{}, fmt.Errorf("device: unsupported device %q", device)
	}
	return info, nil
}
