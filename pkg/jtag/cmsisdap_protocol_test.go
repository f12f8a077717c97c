package jtag

import (
	"bytes"
	"testing"
)

func TestProtocolEncodeInfo(t *testing.T) {
	var proto dapProtocol

	tests := []struct {
		name   string
		infoID byte
		want   []byte
	}{
		{"Vendor ID", InfoVendorID, []byte{0x00, 0x01}},
		{"Product ID", InfoProductID, []byte{0x00, 0x02}},
		{"Serial Number", InfoSerialNum, []byte{0x00, 0x03}},
		{"Firmware Version", InfoFirmwareVer, []byte{0x00, 0x04}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := proto.encodeInfo(tt.infoID)
			if !bytes.Equal(got, tt.want) {
				t.Errorf("encodeInfo() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProtocolDecodeInfo(t *testing.T) {
	var proto dapProtocol

	tests := []struct {
		name    string
		resp    []byte
		want    string
		wantErr bool
	}{
		{name: "valid vendor", resp: []byte{0x00, 0x04, 'T', 'e', 's', 't'}, want: "Test"},
		{name: "nul terminated", resp: []byte{0x00, 0x05, 'T', 'e', 's', 't', 0}, want: "Test"},
		{name: "empty", resp: []byte{0x00, 0x00}, want: ""},
		{name: "too short", resp: []byte{0x00}, wantErr: true},
		{name: "wrong command", resp: []byte{0x01, 0x04, 'T', 'e', 's', 't'}, wantErr: true},
		{name: "incomplete string", resp: []byte{0x00, 0x10, 'T', 'e', 's', 't'}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := proto.decodeInfo(tt.resp)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("decodeInfo() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProtocolConnect(t *testing.T) {
	var proto dapProtocol

	if got := proto.encodeConnect(PortJTAG); !bytes.Equal(got, []byte{CmdConnect, PortJTAG}) {
		t.Errorf("encodeConnect() = %v", got)
	}
	port, err := proto.decodeConnect([]byte{CmdConnect, PortJTAG})
	if err != nil || port != PortJTAG {
		t.Errorf("decodeConnect() = %d, %v", port, err)
	}
	if _, err := proto.decodeConnect([]byte{CmdConnect, PortDefault}); err == nil {
		t.Error("decodeConnect() accepted a failed connect")
	}
	if _, err := proto.decodeConnect([]byte{CmdInfo, PortJTAG}); err == nil {
		t.Error("decodeConnect() accepted a mismatched command ID")
	}
}

func TestProtocolEncodeSetClock(t *testing.T) {
	var proto dapProtocol

	got := proto.encodeSetClock(1_000_000)
	want := []byte{CmdSWJClock, 0x40, 0x42, 0x0F, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("encodeSetClock() = % x, want % x", got, want)
	}
}

func TestNewJTAGSequence(t *testing.T) {
	tests := []struct {
		tck        int
		tms, tdo   bool
		wantInfo   byte
		wantCount  int
		wantLength int
	}{
		{1, false, false, 0x01, 1, 1},
		{8, true, false, 0x48, 8, 1},
		{9, false, true, 0x89, 9, 2},
		{64, true, true, 0xC0, 64, 8},
	}
	for _, tt := range tests {
		seq := NewJTAGSequence(tt.tck, tt.tms, tt.tdo, nil)
		if seq.Info != tt.wantInfo {
			t.Errorf("NewJTAGSequence(%d, %v, %v).Info = 0x%02X, want 0x%02X", tt.tck, tt.tms, tt.tdo, seq.Info, tt.wantInfo)
		}
		if seq.TCKCount() != tt.wantCount {
			t.Errorf("TCKCount() = %d, want %d", seq.TCKCount(), tt.wantCount)
		}
		if seq.byteLen() != tt.wantLength {
			t.Errorf("byteLen() = %d, want %d", seq.byteLen(), tt.wantLength)
		}
		if seq.TMS() != tt.tms || seq.CaptureTDO() != tt.tdo {
			t.Errorf("flags = %v/%v, want %v/%v", seq.TMS(), seq.CaptureTDO(), tt.tms, tt.tdo)
		}
	}
}

func TestProtocolJTAGSequence(t *testing.T) {
	var proto dapProtocol

	seqs := []JTAGSequence{
		NewJTAGSequence(1, true, true, []byte{0x01}),
		NewJTAGSequence(8, false, false, []byte{0xA5}),
		NewJTAGSequence(12, false, true, []byte{0xFF}),
	}
	got := proto.encodeJTAGSequence(seqs)
	want := []byte{CmdJTAGSequence, 3, 0xC1, 0x01, 0x08, 0xA5, 0x8C, 0xFF, 0x00}
	if !bytes.Equal(got, want) {
		t.Fatalf("encodeJTAGSequence() = % x, want % x", got, want)
	}

	out, err := proto.decodeJTAGSequence([]byte{CmdJTAGSequence, StatusOK, 0x01, 0x34, 0x02}, seqs)
	if err != nil {
		t.Fatalf("decodeJTAGSequence() error = %v", err)
	}
	if len(out) != 2 || !bytes.Equal(out[0], []byte{0x01}) || !bytes.Equal(out[1], []byte{0x34, 0x02}) {
		t.Errorf("decodeJTAGSequence() = %v", out)
	}

	if _, err := proto.decodeJTAGSequence([]byte{CmdJTAGSequence, StatusError}, seqs); err == nil {
		t.Error("decodeJTAGSequence() accepted an error status")
	}
	if _, err := proto.decodeJTAGSequence([]byte{CmdJTAGSequence, StatusOK, 0x01}, seqs); err == nil {
		t.Error("decodeJTAGSequence() accepted truncated TDO data")
	}
}
