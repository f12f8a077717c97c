package ftsw

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/jtag"
)

// Magic is the board id register value of every FTSW.
const Magic = 0x46545357

const (
	confDone = 0x80

	// Units 8 to 99 are FTSW2 boards whose CPLD must be at least this version.
	minCPLDVersion = 46
)

// Firmware describes the loaded FPGA firmware.
type Firmware struct {
	ID          uint32
	Version     uint32
	CPLDVersion uint32
	Layout      jtag.Layout
}

// Name returns the firmware id as its four ASCII characters, or hex when
// they are not printable.
func (fw Firmware) Name() string {
	b := []byte{byte(fw.ID >> 24), byte(fw.ID >> 16), byte(fw.ID >> 8), byte(fw.ID)}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return fmt.Sprintf("%08x", fw.ID)
		}
	}
	return string(b)
}

func (fw Firmware) String() string {
	return fmt.Sprintf("%s%03d (%s)", fw.Name(), fw.Version, fw.Layout.Name)
}

// FPGA firmware ids.
const (
	FT2U uint32 = 0x46543255
	FT3U uint32 = 0x46543355
	FT2O uint32 = 0x4654324f
	FT3O uint32 = 0x4654334f
	FT2P uint32 = 0x46543250
	FT3P uint32 = 0x46543350
	JSPY uint32 = 0x4a535059
)

var layouts = map[uint32]jtag.Layout{
	FT2U: jtag.LayoutLegacy,
	FT3U: jtag.LayoutLegacy,
	FT2O: jtag.Layout2P,
	FT3O: jtag.Layout2P,
	FT2P: jtag.Layout2P,
	FT3P: jtag.Layout2P,
	JSPY: jtag.LayoutSpy,
}

// Identify checks that rw is an FTSW with a programmed FPGA and returns its
// firmware and JTAG layout.
func Identify(rw jtag.RegisterIO, board Board, unit int) (Firmware, error) {
	read := func(off uint32) (uint32, error) {
		v, err := rw.ReadRegister(off)
		if err != nil {
			return 0, fmt.Errorf("ftsw: identify: read 0x%03x: %v: %w", off, err, jtag.ErrTransport)
		}
		return v, nil
	}

	id, err := read(board.ID)
	if err != nil {
		return Firmware{}, err
	}
	if id != Magic {
		return Firmware{}, fmt.Errorf("ftsw: FTSW#%03d not found: id=%08x", unit, id)
	}
	cpld, err := read(board.CPLDVersion)
	if err != nil {
		return Firmware{}, err
	}
	cpld &= 0xffff
	if unit >= 8 && unit < 100 && cpld < minCPLDVersion {
		return Firmware{}, fmt.Errorf("ftsw: old CPLD firmware %d.%02d on FTSW#%03d: %w",
			cpld/100, cpld%100, unit, ErrUnsupportedFirmware)
	}
	conf, err := read(board.Conf)
	if err != nil {
		return Firmware{}, err
	}
	if conf&confDone == 0 {
		return Firmware{}, fmt.Errorf("ftsw: FPGA is not programmed: conf=%08x", conf)
	}

	fw := Firmware{CPLDVersion: cpld}
	if fw.ID, err = read(board.FPGAID); err != nil {
		return Firmware{}, err
	}
	ver, err := read(board.FPGAVersion)
	if err != nil {
		return Firmware{}, err
	}
	fw.Version = ver & 0xffff

	layout, ok := layouts[fw.ID]
	if !ok {
		return fw, fmt.Errorf("ftsw: FPGA firmware %s: %w", fw.Name(), ErrUnsupportedFirmware)
	}
	fw.Layout = layout
	glog.V(1).Infof("ftsw: unit %d firmware %s", unit, fw)
	return fw, nil
}

// NewClock identifies the firmware behind rw and returns a clock driving JTAG
// port on it.
func NewClock(rw jtag.RegisterIO, board Board, unit int, port uint32, timing jtag.Timing) (*jtag.RegisterClock, Firmware, error) {
	fw, err := Identify(rw, board, unit)
	if err != nil {
		return nil, fw, err
	}
	clk := jtag.NewRegisterClock(rw, jtag.RegisterConfig{
		Layout:      fw.Layout,
		WriteOffset: board.JTAGWrite,
		ReadOffset:  board.JTAGRead,
		Port:        port,
		Timing:      timing,
	})
	return clk, fw, nil
}

// Seed fills the identification registers of a simulated unit so that it
// reports fw.
func Seed(regs map[uint32]uint32, board Board, fw Firmware) {
	regs[board.ID] = Magic
	regs[board.CPLDVersion] = fw.CPLDVersion
	regs[board.Conf] = confDone
	regs[board.FPGAID] = fw.ID
	regs[board.FPGAVersion] = fw.Version
}
