package mmap

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
)

func TestHandle(t *testing.T) {
	t.Run("nil-handle", func(t *testing.T) {
		var h *Handle

		if _, err := h.Load32(0); !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid load error: %+v", err)
		}
		if err := h.Store32(0, 1); !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid store error: %+v", err)
		}
		if err := h.Close(); !errors.Is(err, os.ErrInvalid) {
			t.Fatalf("invalid close error: %+v", err)
		}
	})
	t.Run("nil-data", func(t *testing.T) {
		var h Handle

		if _, err := h.Load32(0); !errors.Is(err, errClosed) {
			t.Fatalf("invalid load error: %+v", err)
		}
		if err := h.Close(); err != nil {
			t.Fatalf("error closing nil-data handle: %+v", err)
		}
	})
	t.Run("anonymous", func(t *testing.T) {
		data, err := unix.Mmap(-1, 0, 4096, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
		if err != nil {
			t.Skipf("anonymous mmap unavailable: %v", err)
		}
		h := HandleFrom(data)
		defer h.Close()

		if err := h.Store32(0x1a0, 0xcafef00d); err != nil {
			t.Fatal(err)
		}
		if v, err := h.Load32(0x1a0); err != nil || v != 0xcafef00d {
			t.Fatalf("Load32 = 0x%08x, %v", v, err)
		}
		for _, off := range []uint32{0x1a1, 4096, 4094} {
			if _, err := h.Load32(off); err == nil {
				t.Errorf("Load32(0x%x) accepted a bad offset", off)
			}
		}
		if err := h.Close(); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Load32(0); !errors.Is(err, errClosed) {
			t.Fatalf("load after close: %+v", err)
		}
	})
}

func TestMapFile(t *testing.T) {
	ps := os.Getpagesize()
	name := filepath.Join(t.TempDir(), "regs")
	if err := os.WriteFile(name, make([]byte, 2*ps), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if _, err := Map(f, 100, 4096); err == nil {
		t.Error("Map accepted an unaligned offset")
	}

	h, err := Map(f, int64(ps), ps)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if h.Len() != ps {
		t.Errorf("Len() = %d", h.Len())
	}
	if err := h.Store32(8, 0x11223344); err != nil {
		t.Fatal(err)
	}
	if err := h.Close(); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	if got := raw[ps+8] | raw[ps+9] | raw[ps+10] | raw[ps+11]; got == 0 {
		t.Error("store did not reach the file")
	}
}
