package bitfile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/OpenTraceLab/jtagft/pkg/device"
)

func encode(t *testing.T, design, dev string, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	bs := &Bitstream{Design: design, Device: dev, Payload: payload}
	if _, err := bs.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	return buf.Bytes()
}

func TestParseFamilies(t *testing.T) {
	payload := []byte{0xff, 0xff, 0xff, 0xff, 0xaa, 0x99, 0x55, 0x66}
	tests := []struct {
		dev  string
		want device.Family
	}{
		{"5vlx30tff665", device.XC5V},
		{"6slx45fgg484", device.XC6S},
		{"3s400pq208", device.XC3S},
		{"7a100tcsg324", device.XC7A},
	}
	for _, tt := range tests {
		t.Run(tt.dev, func(t *testing.T) {
			raw := encode(t, "top.ncd;UserID=0xFFFFFFFF", tt.dev, payload)
			bs, err := Parse(bytes.NewReader(raw))
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if bs.Family.Family != tt.want {
				t.Errorf("family = %s, want %s", bs.Family.Family, tt.want)
			}
			if bs.Device != tt.dev || bs.Design != "top.ncd;UserID=0xFFFFFFFF" {
				t.Errorf("header = %q/%q", bs.Design, bs.Device)
			}
			if !bytes.Equal(bs.Payload, payload) || bs.Size() != int64(len(payload)) {
				t.Errorf("payload = % x", bs.Payload)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	good := encode(t, "top.ncd", "6slx45fgg484", []byte{1, 2, 3})
	tests := []struct {
		name string
		raw  []byte
	}{
		{"empty", nil},
		{"short header", good[:10]},
		{"no design terminator", good[:20]},
		{"truncated device", encode(t, "top.ncd", "6slx45", nil)[:30]},
		{"no payload", encode(t, "top.ncd", "6slx45", nil)},
		{"unknown family", encode(t, "top.ncd", "4vfx60ff672", []byte{1})},
		{"prom device", encode(t, "top.ncd", "xcf32p", []byte{1})},
		{"long device", encode(t, "top.ncd", string(bytes.Repeat([]byte("6"), 300)), []byte{1})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(bytes.NewReader(tt.raw))
			if !errors.Is(err, ErrFormat) {
				t.Fatalf("err = %v, want ErrFormat", err)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top.bit")
	if err := os.WriteFile(path, encode(t, "top.ncd", "5vlx50tff1136", []byte{0x20, 0, 0, 0}), 0o644); err != nil {
		t.Fatal(err)
	}
	bs, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if bs.Family.Code != "5v" {
		t.Errorf("family code = %q", bs.Family.Code)
	}
	if _, err := ParseFile(path + ".missing"); err == nil {
		t.Error("missing file accepted")
	}
}
