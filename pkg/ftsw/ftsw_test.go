package ftsw

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/OpenTraceLab/jtagft/pkg/jtag"
)

func testBoard() Board {
	b := DefaultBoard
	b.Size = os.Getpagesize()
	return b
}

func deviceFile(t *testing.T) string {
	t.Helper()
	name := filepath.Join(t.TempDir(), "ftsw3")
	if err := os.WriteFile(name, make([]byte, os.Getpagesize()), 0o644); err != nil {
		t.Fatal(err)
	}
	return name
}

func TestOpenLocksUnit(t *testing.T) {
	path := deviceFile(t)
	u, err := Open(3, WithDevice(path), WithBoard(testBoard()))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := Open(3, WithDevice(path), WithBoard(testBoard())); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Open error = %v, want ErrBusy", err)
	}

	if err := u.WriteRegister(0x1a0, 0x8200); err != nil {
		t.Fatal(err)
	}
	if v, err := u.ReadRegister(0x1a0); err != nil || v != 0x8200 {
		t.Fatalf("ReadRegister = 0x%x, %v", v, err)
	}
	if _, err := u.ReadRegister(0x1a2); err == nil {
		t.Error("ReadRegister accepted an unaligned offset")
	}
	if u.ID() != 3 || u.Board().JTAGRead != 0x1b0 {
		t.Errorf("ID/Board = %d/%+v", u.ID(), u.Board())
	}

	if err := u.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := u.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	u2, err := Open(3, WithDevice(path), WithBoard(testBoard()))
	if err != nil {
		t.Fatalf("Open after Close: %v", err)
	}
	u2.Close()
}

func TestOpenMissingDevice(t *testing.T) {
	_, err := Open(1, WithDevice(filepath.Join(t.TempDir(), "missing")))
	if err == nil || !strings.Contains(err.Error(), "could not open") {
		t.Fatalf("Open error = %v", err)
	}
}

func simUnit(fw Firmware) *jtag.ChainSimulator {
	sim := jtag.NewIDCodeChain(jtag.LayoutLegacy, DefaultBoard.JTAGWrite, DefaultBoard.JTAGRead)
	Seed(sim.Registers, DefaultBoard, fw)
	return sim
}

func TestIdentify(t *testing.T) {
	tests := []struct {
		id     uint32
		layout string
	}{
		{FT2U, "legacy"},
		{FT3U, "legacy"},
		{FT2O, "2p"},
		{FT3P, "2p"},
		{JSPY, "spy"},
	}
	for _, tt := range tests {
		fw, err := Identify(simUnit(Firmware{ID: tt.id, Version: 67, CPLDVersion: 50}), DefaultBoard, 10)
		if err != nil {
			t.Errorf("Identify(%08x): %v", tt.id, err)
			continue
		}
		if fw.Layout.Name != tt.layout {
			t.Errorf("Identify(%08x) layout = %s, want %s", tt.id, fw.Layout.Name, tt.layout)
		}
	}

	fw, _ := Identify(simUnit(Firmware{ID: FT3P, Version: 33}), DefaultBoard, 1)
	if got := fw.String(); got != "FT3P033 (2p)" {
		t.Errorf("String() = %q", got)
	}
}

func TestIdentifyRejects(t *testing.T) {
	sim := simUnit(Firmware{ID: 0x01020304, CPLDVersion: 50})
	if _, err := Identify(sim, DefaultBoard, 1); !errors.Is(err, ErrUnsupportedFirmware) {
		t.Errorf("unknown firmware error = %v", err)
	}

	sim = simUnit(Firmware{ID: FT2U, CPLDVersion: 45})
	if _, err := Identify(sim, DefaultBoard, 8); !errors.Is(err, ErrUnsupportedFirmware) {
		t.Errorf("old CPLD error = %v", err)
	}
	if _, err := Identify(sim, DefaultBoard, 100); err != nil {
		t.Errorf("old CPLD outside 8..99: %v", err)
	}

	sim = simUnit(Firmware{ID: FT2U})
	sim.Registers[DefaultBoard.Conf] = 0
	if _, err := Identify(sim, DefaultBoard, 1); err == nil || !strings.Contains(err.Error(), "not programmed") {
		t.Errorf("unprogrammed error = %v", err)
	}

	sim = simUnit(Firmware{ID: FT2U})
	sim.Registers[DefaultBoard.ID] = 0
	if _, err := Identify(sim, DefaultBoard, 1); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("missing board error = %v", err)
	}
}

func TestNewClockReadsIDCode(t *testing.T) {
	sim := jtag.NewIDCodeChain(jtag.Layout2P, DefaultBoard.JTAGWrite, DefaultBoard.JTAGRead, 0x0424a093)
	Seed(sim.Registers, DefaultBoard, Firmware{ID: FT3P})

	clk, fw, err := NewClock(sim, DefaultBoard, 2, 0, jtag.Timing{})
	if err != nil {
		t.Fatalf("NewClock: %v", err)
	}
	if fw.Layout.Name != "2p" || clk.Layout().Name != "2p" {
		t.Fatalf("layout = %s", fw.Layout.Name)
	}

	tms := []bool{true, true, true, true, true, false, true, false, false}
	for _, b := range tms {
		if _, err := clk.ClockBit(b, false, jtag.NoWait); err != nil {
			t.Fatal(err)
		}
	}
	var id uint32
	for i := 0; i < 32; i++ {
		tdo, err := clk.ClockBit(i == 31, false, jtag.NoWait)
		if err != nil {
			t.Fatal(err)
		}
		if tdo {
			id |= 1 << uint(i)
		}
	}
	if id != 0x0424a093 {
		t.Errorf("IDCODE = 0x%08x", id)
	}
}

func TestFirmwareName(t *testing.T) {
	if got := (Firmware{ID: 0x00000001}).Name(); got != "00000001" {
		t.Errorf("Name() = %q", got)
	}
	if got := (Firmware{ID: JSPY}).Name(); got != "JSPY" {
		t.Errorf("Name() = %q", got)
	}
}
