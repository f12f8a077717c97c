package jtag

import (
	"encoding/binary"
	"fmt"
)

// CMSIS-DAP command IDs used by the bit-level backend.
const (
	CmdInfo         = 0x00
	CmdConnect      = 0x02
	CmdDisconnect   = 0x03
	CmdSWJClock     = 0x11
	CmdJTAGSequence = 0x14
)

// DAP_Info IDs
const (
	InfoVendorID     = 0x01
	InfoProductID    = 0x02
	InfoSerialNum    = 0x03
	InfoFirmwareVer  = 0x04
	InfoCapabilities = 0xF0
	InfoPacketSize   = 0xFF
)

// Connection ports
const (
	PortDefault = 0
	PortSWD     = 1
	PortJTAG    = 2
)

// Status codes
const (
	StatusOK    = 0x00
	StatusError = 0xFF
)

// JTAG sequence info byte
const (
	JTAGSeqTCKMask = 0x3F // TCK count, 0 means 64
	JTAGSeqTMS     = 0x40
	JTAGSeqTDO     = 0x80
)

// JTAGSequence is one entry of a DAP_JTAG_Sequence command: up to 64 TCK
// cycles with a constant TMS level. TDI is packed LSB-first.
type JTAGSequence struct {
	Info byte
	TDI  []byte
}

// NewJTAGSequence creates a sequence descriptor.
func NewJTAGSequence(tckCount int, tms bool, captureTDO bool, tdi []byte) JTAGSequence {
	info := byte(tckCount & JTAGSeqTCKMask)
	if tms {
		info |= JTAGSeqTMS
	}
	if captureTDO {
		info |= JTAGSeqTDO
	}
	return JTAGSequence{Info: info, TDI: tdi}
}

// TCKCount returns the number of TCK clocks in this sequence.
func (seq JTAGSequence) TCKCount() int {
	if n := int(seq.Info & JTAGSeqTCKMask); n != 0 {
		return n
	}
	return 64
}

// TMS returns the TMS level held for the sequence.
func (seq JTAGSequence) TMS() bool {
	return seq.Info&JTAGSeqTMS != 0
}

// CaptureTDO reports whether the probe returns TDO for this sequence.
func (seq JTAGSequence) CaptureTDO() bool {
	return seq.Info&JTAGSeqTDO != 0
}

func (seq JTAGSequence) byteLen() int {
	return (seq.TCKCount() + 7) / 8
}

// dapProtocol encodes commands and validates responses.
type dapProtocol struct{}

func checkResponse(resp []byte, cmd byte, min int) error {
	if len(resp) < min {
		return fmt.Errorf("cmsis-dap: response to 0x%02X too short (%d bytes)", cmd, len(resp))
	}
	if resp[0] != cmd {
		return fmt.Errorf("cmsis-dap: response ID 0x%02X, want 0x%02X", resp[0], cmd)
	}
	return nil
}

func checkStatus(resp []byte, cmd byte) error {
	if err := checkResponse(resp, cmd, 2); err != nil {
		return err
	}
	if resp[1] != StatusOK {
		return fmt.Errorf("cmsis-dap: command 0x%02X status 0x%02X", cmd, resp[1])
	}
	return nil
}

func (dapProtocol) encodeInfo(id byte) []byte {
	return []byte{CmdInfo, id}
}

func (dapProtocol) decodeInfo(resp []byte) (string, error) {
	if err := checkResponse(resp, CmdInfo, 2); err != nil {
		return "", err
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return "", fmt.Errorf("cmsis-dap: info string truncated")
	}
	s := resp[2 : 2+n]
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s), nil
}

func (dapProtocol) encodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

func (dapProtocol) decodeConnect(resp []byte) (byte, error) {
	if err := checkResponse(resp, CmdConnect, 2); err != nil {
		return 0, err
	}
	if resp[1] == PortDefault {
		return 0, fmt.Errorf("cmsis-dap: connect failed")
	}
	return resp[1], nil
}

func (dapProtocol) encodeDisconnect() []byte {
	return []byte{CmdDisconnect}
}

func (dapProtocol) encodeSetClock(hz uint32) []byte {
	cmd := make([]byte, 5)
	cmd[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(cmd[1:], hz)
	return cmd
}

func (dapProtocol) encodeJTAGSequence(seqs []JTAGSequence) []byte {
	cmd := []byte{CmdJTAGSequence, byte(len(seqs))}
	for _, seq := range seqs {
		cmd = append(cmd, seq.Info)
		tdi := make([]byte, seq.byteLen())
		copy(tdi, seq.TDI)
		cmd = append(cmd, tdi...)
	}
	return cmd
}

// decodeJTAGSequence returns the TDO bytes of every sequence that asked for
// capture, in order.
func (dapProtocol) decodeJTAGSequence(resp []byte, seqs []JTAGSequence) ([][]byte, error) {
	if err := checkStatus(resp, CmdJTAGSequence); err != nil {
		return nil, err
	}
	var out [][]byte
	off := 2
	for _, seq := range seqs {
		if !seq.CaptureTDO() {
			continue
		}
		n := seq.byteLen()
		if off+n > len(resp) {
			return nil, fmt.Errorf("cmsis-dap: TDO data truncated")
		}
		out = append(out, append([]byte(nil), resp[off:off+n]...))
		off += n
	}
	return out, nil
}
