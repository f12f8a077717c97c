// Package mcs reads PROM images in the Intel hex based .mcs format written by
// the Xilinx PROM file generator.
package mcs

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/marcinbor85/gohex"
)

// ErrFormat marks a file that is not a usable PROM image.
var ErrFormat = errors.New("mcs: bad format")

const (
	firstLine = ":020000040000FA"
	eofLine   = ":00000001FF"

	recordData      = 0x00
	recordEOF       = 0x01
	recordExtLinear = 0x04
	bytesPerRecord  = 16
	sizeGranularity = 65536
)

// Image is a PROM image starting at address zero.
type Image struct {
	Data []byte
}

// Size returns the image length, a multiple of 64 KiB.
func (img *Image) Size() int {
	return len(img.Data)
}

// Parse validates every record of an .mcs file and decodes it into a single
// contiguous image.
func Parse(r io.Reader) (*Image, error) {
	sc := bufio.NewScanner(r)
	var text bytes.Buffer
	line := 0
	next := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		line++
		return strings.TrimRight(sc.Text(), "\r"), true
	}

	first, ok := next()
	if !ok || first != firstLine {
		return nil, fmt.Errorf("mcs: line 1: unknown first line %q: %w", first, ErrFormat)
	}

	records := 0
	for {
		s, ok := next()
		if !ok {
			if err := sc.Err(); err != nil {
				return nil, fmt.Errorf("mcs: line %d: %w", line, err)
			}
			return nil, fmt.Errorf("mcs: missing EOF record: %w", ErrFormat)
		}
		kind, data, err := decodeRecord(s)
		if err != nil {
			return nil, fmt.Errorf("mcs: line %d: %v: %w", line, err, ErrFormat)
		}
		switch kind {
		case recordEOF:
			if s != eofLine {
				return nil, fmt.Errorf("mcs: line %d: bad EOF record %q: %w", line, s, ErrFormat)
			}
			text.WriteString(s + "\n")
			return decode(&text)
		case recordData:
			addr := int(data[0])<<8 | int(data[1])
			if n := len(data) - 2; n != bytesPerRecord {
				return nil, fmt.Errorf("mcs: line %d: %d data bytes, want %d: %w", line, n, bytesPerRecord, ErrFormat)
			}
			offset := records * bytesPerRecord
			if want := offset & 0xffff; addr != want {
				return nil, fmt.Errorf("mcs: line %d: address 0x%04x, want 0x%04x: %w", line, addr, want, ErrFormat)
			}
			// The upper address comes from the record count, not from
			// the file's extended address records.
			if addr == 0 {
				upper := offset >> 16
				text.WriteString(formatRecord(recordExtLinear, 0, []byte{byte(upper >> 8), byte(upper)}) + "\n")
			}
			text.WriteString(s + "\n")
			records++
		}
	}
}

// decodeRecord checks the framing and checksum of one record and returns its
// type with the address and data bytes.
func decodeRecord(s string) (byte, []byte, error) {
	if !strings.HasPrefix(s, ":") {
		return 0, nil, errors.New("missing ':'")
	}
	if len(s)%2 != 1 {
		return 0, nil, errors.New("odd number of hex digits")
	}
	raw, err := hex.DecodeString(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 5 {
		return 0, nil, errors.New("record too short")
	}
	if int(raw[0]) != len(raw)-5 {
		return 0, nil, fmt.Errorf("byte count %d for %d data bytes", raw[0], len(raw)-5)
	}
	var sum byte
	for _, b := range raw {
		sum += b
	}
	if sum != 0 {
		return 0, nil, fmt.Errorf("checksum off by 0x%02x", sum)
	}
	kind := raw[3]
	switch kind {
	case recordData, recordEOF, recordExtLinear:
	default:
		return 0, nil, fmt.Errorf("record type %02x", kind)
	}
	return kind, append(raw[1:3:3], raw[4:len(raw)-1]...), nil
}

func decode(text *bytes.Buffer) (*Image, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(text); err != nil {
		return nil, fmt.Errorf("mcs: %v: %w", err, ErrFormat)
	}
	segs := mem.GetDataSegments()
	if len(segs) != 1 || segs[0].Address != 0 {
		return nil, fmt.Errorf("mcs: image has %d segments, want one at address 0: %w", len(segs), ErrFormat)
	}
	data := segs[0].Data
	if len(data) == 0 || len(data)%sizeGranularity != 0 {
		return nil, fmt.Errorf("mcs: size %d is not a multiple of %d: %w", len(data), sizeGranularity, ErrFormat)
	}
	return &Image{Data: data}, nil
}

// ParseFile opens and parses path.
func ParseFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mcs: %w", err)
	}
	defer f.Close()

	img, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// formatRecord encodes one record with its checksum.
func formatRecord(kind byte, addr uint16, payload []byte) string {
	raw := append([]byte{byte(len(payload)), byte(addr >> 8), byte(addr), kind}, payload...)
	var sum byte
	for _, b := range raw {
		sum += b
	}
	raw = append(raw, -sum)
	return ":" + strings.ToUpper(hex.EncodeToString(raw))
}

// Write encodes data as an .mcs file with 16-byte records.
func Write(w io.Writer, data []byte) error {
	bw := bufio.NewWriter(w)
	record := func(kind byte, addr uint16, payload []byte) {
		fmt.Fprintf(bw, "%s\r\n", formatRecord(kind, addr, payload))
	}
	for off := 0; off < len(data); off += bytesPerRecord {
		if off%sizeGranularity == 0 {
			upper := uint16(off >> 16)
			record(recordExtLinear, 0, []byte{byte(upper >> 8), byte(upper)})
		}
		end := off + bytesPerRecord
		if end > len(data) {
			end = len(data)
		}
		record(recordData, uint16(off), data[off:end])
	}
	record(recordEOF, 0, nil)
	return bw.Flush()
}
