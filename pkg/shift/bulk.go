package shift

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/jtag"
)

// StreamSettle is the pause after the last bitstream byte before the scan
// is closed.
const StreamSettle = 100 * time.Millisecond

// shiftByte sends b most significant bit first with TMS low, through the
// block engine when enabled.
func (e *Engine) shiftByte(b byte) error {
	if e.Block() {
		if err := e.block.ShiftBlock(b); err != nil {
			return fmt.Errorf("shift: block 0x%02x: %w", b, err)
		}
		return nil
	}
	_, err := e.shiftMSB(8, uint32(b), false, jtag.NoWait)
	return err
}

// lastByte drains the block engine and sends the final byte bitwise so
// that its last bit can carry TMS.
func (e *Engine) lastByte(b byte, mode jtag.Mode) error {
	if e.Block() {
		if err := e.block.Flush(); err != nil {
			return fmt.Errorf("shift: block drain: %w", err)
		}
	}
	_, err := e.shiftMSB(8, uint32(b), e.lastInChain(), mode)
	return err
}

// ShiftDRBytes shifts data through the target data register, each byte most
// significant bit first.
func (e *Engine) ShiftDRBytes(data []byte) error {
	if len(data) == 0 {
		return errors.New("shift: no bytes to shift")
	}
	if err := e.enterDR(); err != nil {
		return err
	}
	for _, b := range data[:len(data)-1] {
		if err := e.shiftByte(b); err != nil {
			return err
		}
	}
	if err := e.lastByte(data[len(data)-1], jtag.NoWait); err != nil {
		return err
	}
	if err := e.leaveDR(); err != nil {
		return err
	}
	glog.V(2).Infof("shift: dr bytes % x", data)
	return nil
}

// ShiftDRStream shifts size bytes of a bitstream payload from r, most
// significant bit first, reporting progress at every percent.
func (e *Engine) ShiftDRStream(r io.Reader, size int64, progress func(done, total int64)) error {
	if size <= 0 {
		return fmt.Errorf("shift: stream size %d", size)
	}
	br := bufio.NewReaderSize(r, 64*1024)
	cur, err := br.ReadByte()
	if err != nil {
		return fmt.Errorf("shift: stream: %w", err)
	}

	if err := e.enterDR(); err != nil {
		return err
	}
	fast := e.fast
	e.fast = true
	defer func() { e.fast = fast }()

	step := size / 100
	if step == 0 {
		step = 1
	}
	var n int64
	for {
		next, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			if err := e.lastByte(cur, jtag.Fast); err != nil {
				return err
			}
			n++
			break
		}
		if err != nil {
			return fmt.Errorf("shift: stream after %d bytes: %w", n, err)
		}
		if err := e.shiftByte(cur); err != nil {
			return err
		}
		if progress != nil && n%step == 0 {
			progress(n, size)
		}
		n++
		cur = next
	}
	if progress != nil {
		progress(n, size)
	}
	e.Sleep(StreamSettle)

	if err := e.leaveDR(); err != nil {
		return err
	}
	glog.V(1).Infof("shift: streamed %d of %d bytes", n, size)
	if n != size {
		return fmt.Errorf("shift: streamed %d bytes, expected %d", n, size)
	}
	return nil
}

// ShiftDRFile shifts bits from a text file of hex digits. The file is read
// as one big number, most significant nibble first, and shifted from its
// least significant end; characters other than hex digits are ignored.
func (e *Engine) ShiftDRFile(path string, bits int) error {
	if bits <= 0 {
		return fmt.Errorf("shift: bit count %d", bits)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("shift: %w", err)
	}
	defer f.Close()

	nibbles, err := readNibbles(bufio.NewReader(f), (bits+3)/4)
	if err != nil {
		return fmt.Errorf("shift: %s: %w", path, err)
	}

	if err := e.enterDR(); err != nil {
		return err
	}
	mode := e.mode()
	n := len(nibbles)
	for i := n - 1; i > 0; i-- {
		if _, err := e.shiftLSB(4, uint32(nibbles[i]), false, mode); err != nil {
			return err
		}
	}
	if _, err := e.shiftLSB(bits-(n-1)*4, uint32(nibbles[0]), e.lastInChain(), mode); err != nil {
		return err
	}
	return e.leaveDR()
}

func readNibbles(r io.ByteReader, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	for len(out) < n {
		c, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("EOF after %d of %d hex digits", len(out), n)
			}
			return nil, err
		}
		switch {
		case c >= '0' && c <= '9':
			out = append(out, c-'0')
		case c >= 'a' && c <= 'f':
			out = append(out, c-'a'+10)
		case c >= 'A' && c <= 'F':
			out = append(out, c-'A'+10)
		}
	}
	return out, nil
}
