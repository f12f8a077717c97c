// Package ftsw opens the register window of an FTSW-class timing board and
// identifies its firmware so the JTAG port can be driven with the right
// register encoding.
package ftsw

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/sys/unix"

	"github.com/OpenTraceLab/jtagft/internal/mmap"
	"github.com/OpenTraceLab/jtagft/pkg/jtag"
)

var (
	// ErrBusy is returned when another process holds the unit.
	ErrBusy = errors.New("ftsw: unit is busy")
	// ErrUnsupportedFirmware is returned for firmware without a JTAG layout.
	ErrUnsupportedFirmware = errors.New("ftsw: unsupported firmware")
)

// Board holds the register offsets of one board revision. Offsets are byte
// offsets into the mapped window.
type Board struct {
	JTAGWrite   uint32
	JTAGRead    uint32
	ID          uint32
	CPLDVersion uint32
	Conf        uint32
	FPGAID      uint32
	FPGAVersion uint32
	Size        int
}

// DefaultBoard is the FTSW2/FTSW3 register map.
var DefaultBoard = Board{
	JTAGWrite:   0x1a0,
	JTAGRead:    0x1b0,
	ID:          0x000,
	CPLDVersion: 0x004,
	Conf:        0x010,
	FPGAID:      0x080,
	FPGAVersion: 0x084,
	Size:        0x1000,
}

// Unit is an open, exclusively locked board.
type Unit struct {
	id    int
	f     *os.File
	mem   *mmap.Handle
	board Board

	mu sync.Mutex
}

type config struct {
	path  string
	base  int64
	board Board
}

// Option configures Open.
type Option func(*config)

// WithDevice maps path instead of /dev/ftsw<id>, for example /dev/mem.
func WithDevice(path string) Option {
	return func(c *config) { c.path = path }
}

// WithBase sets the physical offset of the window within the device file.
func WithBase(base int64) Option {
	return func(c *config) { c.base = base }
}

// WithBoard overrides the register map.
func WithBoard(b Board) Option {
	return func(c *config) { c.board = b }
}

// Open maps unit id and takes a non-blocking exclusive lock on its device
// file. A second session fails with ErrBusy.
func Open(id int, opts ...Option) (*Unit, error) {
	cfg := config{
		path:  fmt.Sprintf("/dev/ftsw%d", id),
		board: DefaultBoard,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f, err := os.OpenFile(cfg.path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, fmt.Errorf("ftsw: could not open %s: %w", cfg.path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("ftsw: %s: %w", cfg.path, ErrBusy)
		}
		return nil, fmt.Errorf("ftsw: could not lock %s: %w", cfg.path, err)
	}
	mem, err := mmap.Map(f, cfg.base, cfg.board.Size)
	if err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return nil, fmt.Errorf("ftsw: %w", err)
	}
	glog.V(1).Infof("ftsw: unit %d mapped from %s at 0x%x", id, cfg.path, cfg.base)
	return &Unit{id: id, f: f, mem: mem, board: cfg.board}, nil
}

// ID returns the unit number.
func (u *Unit) ID() int {
	return u.id
}

// Board returns the register map in use.
func (u *Unit) Board() Board {
	return u.board
}

// ReadRegister reads the register at byte offset off.
func (u *Unit) ReadRegister(off uint32) (uint32, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	v, err := u.mem.Load32(off)
	if err != nil {
		return 0, fmt.Errorf("ftsw: read 0x%03x: %w", off, err)
	}
	return v, nil
}

// WriteRegister writes the register at byte offset off.
func (u *Unit) WriteRegister(off uint32, v uint32) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.mem.Store32(off, v); err != nil {
		return fmt.Errorf("ftsw: write 0x%03x: %w", off, err)
	}
	return nil
}

var _ jtag.RegisterIO = (*Unit)(nil)

// Close unmaps the window and releases the lock.
func (u *Unit) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.f == nil {
		return nil
	}
	err := u.mem.Close()
	if e := unix.Flock(int(u.f.Fd()), unix.LOCK_UN); err == nil {
		err = e
	}
	if e := u.f.Close(); err == nil {
		err = e
	}
	u.f = nil
	return err
}
