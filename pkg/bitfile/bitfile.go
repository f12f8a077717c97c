// Package bitfile reads Xilinx .bit configuration files.
package bitfile

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/OpenTraceLab/jtagft/pkg/device"
)

// ErrFormat marks a file that is not a usable bitstream.
var ErrFormat = errors.New("bitfile: bad format")

const (
	headerSkip   = 16 // magic and the 'a' field tag and length
	fieldSkip    = 3  // 'b' field tag and length
	maxDeviceLen = 256
)

// Bitstream is a parsed .bit file.
type Bitstream struct {
	Design  string // design name field, usually "name.ncd;UserID=..."
	Device  string // part and package, such as "6slx45fgg484"
	Family  device.FamilyInfo
	Payload []byte // configuration data after the first 0xff byte
}

// Size returns the payload length.
func (b *Bitstream) Size() int64 {
	return int64(len(b.Payload))
}

// Reader returns a reader over the payload.
func (b *Bitstream) Reader() io.Reader {
	return bytes.NewReader(b.Payload)
}

// Parse reads a bitstream and resolves its family from the device string.
func Parse(r io.Reader) (*Bitstream, error) {
	br := bufio.NewReader(r)

	if _, err := io.CopyN(io.Discard, br, headerSkip); err != nil {
		return nil, formatError("header", err)
	}
	design, err := readCString(br, -1)
	if err != nil {
		return nil, formatError("design name", err)
	}
	if _, err := io.CopyN(io.Discard, br, fieldSkip); err != nil {
		return nil, formatError("device field", err)
	}
	dev, err := readCString(br, maxDeviceLen)
	if err != nil {
		return nil, formatError("device name", err)
	}
	for {
		c, err := br.ReadByte()
		if err != nil {
			return nil, formatError("sync byte", err)
		}
		if c == 0xff {
			break
		}
	}
	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, formatError("payload", err)
	}
	if len(payload) == 0 {
		return nil, formatError("payload", io.ErrUnexpectedEOF)
	}

	fam, err := device.FamilyForDevice(dev)
	if err != nil {
		return nil, fmt.Errorf("bitfile: device %q: %v: %w", dev, err, ErrFormat)
	}
	return &Bitstream{Design: design, Device: dev, Family: fam, Payload: payload}, nil
}

// ParseFile opens and parses path.
func ParseFile(path string) (*Bitstream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("bitfile: %w", err)
	}
	defer f.Close()

	bs, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bs, nil
}

// readCString reads up to a NUL byte. A positive max bounds the length.
func readCString(br *bufio.Reader, max int) (string, error) {
	var buf []byte
	for {
		c, err := br.ReadByte()
		if err != nil {
			return "", err
		}
		if c == 0 {
			return string(buf), nil
		}
		if max > 0 && len(buf) >= max {
			return "", fmt.Errorf("longer than %d bytes", max)
		}
		buf = append(buf, c)
	}
}

func formatError(stage string, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return fmt.Errorf("bitfile: %s: %v: %w", stage, err, ErrFormat)
}

var magic = []byte{0x00, 0x09, 0x0f, 0xf0, 0x0f, 0xf0, 0x0f, 0xf0, 0x0f, 0xf0, 0x00, 0x00, 0x01}

// WriteTo writes b in .bit layout: the header with the design and device
// fields, the 'e' field length, a 0xff sync byte and the payload.
func (b *Bitstream) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	buf.Write(magic)
	field := func(tag byte, s string) {
		buf.WriteByte(tag)
		binary.Write(&buf, binary.BigEndian, uint16(len(s)+1))
		buf.WriteString(s)
		buf.WriteByte(0)
	}
	field('a', b.Design)
	field('b', b.Device)
	buf.WriteByte('e')
	binary.Write(&buf, binary.BigEndian, uint32(len(b.Payload)+1))
	buf.WriteByte(0xff)
	buf.Write(b.Payload)
	return buf.WriteTo(w)
}
