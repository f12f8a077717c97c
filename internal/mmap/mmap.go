// Package mmap maps a device register window and gives 32-bit access to it.
package mmap

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

var errClosed = errors.New("mmap: closed")

// Handle is a mapped window. Register accesses are single aligned 32-bit
// loads and stores, never split or merged.
type Handle struct {
	data []byte
}

// Map maps size bytes of f starting at off, read-write and shared.
func Map(f *os.File, off int64, size int) (*Handle, error) {
	if off%int64(os.Getpagesize()) != 0 {
		return nil, fmt.Errorf("mmap: offset 0x%x is not page aligned", off)
	}
	data, err := unix.Mmap(int(f.Fd()), off, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: could not map %s at 0x%x: %w", f.Name(), off, err)
	}
	if len(data) != size {
		unix.Munmap(data)
		return nil, fmt.Errorf("mmap: invalid mapped size %d", len(data))
	}
	return HandleFrom(data), nil
}

// HandleFrom takes ownership of a mapping made with unix.Mmap.
func HandleFrom(data []byte) *Handle {
	h := &Handle{data: data}
	runtime.SetFinalizer(h, (*Handle).Close)
	return h
}

// Close unmaps the window.
func (h *Handle) Close() error {
	if h == nil {
		return os.ErrInvalid
	}
	if h.data == nil {
		return nil
	}
	data := h.data
	h.data = nil
	runtime.SetFinalizer(h, nil)
	return unix.Munmap(data)
}

// Len returns the window size in bytes.
func (h *Handle) Len() int {
	return len(h.data)
}

func (h *Handle) word(off uint32) (*uint32, error) {
	if h == nil {
		return nil, os.ErrInvalid
	}
	if h.data == nil {
		return nil, errClosed
	}
	if off%4 != 0 || uint64(off)+4 > uint64(len(h.data)) {
		return nil, fmt.Errorf("mmap: invalid register offset 0x%x", off)
	}
	return (*uint32)(unsafe.Pointer(&h.data[off])), nil
}

// Load32 reads the register at byte offset off.
func (h *Handle) Load32(off uint32) (uint32, error) {
	p, err := h.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

// Store32 writes the register at byte offset off.
func (h *Handle) Store32(off uint32, v uint32) error {
	p, err := h.word(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}
