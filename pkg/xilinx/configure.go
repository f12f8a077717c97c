package xilinx

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/bitfile"
	"github.com/OpenTraceLab/jtagft/pkg/device"
)

const (
	// initPolls bounds the wait for INIT after JPROG.
	initPolls = 10
	// startupClocks are spent in Run-Test/Idle after JSTART.
	startupClocks = 13
)

// Configure loads bs into the target FPGA through the JTAG configuration
// port and verifies the status register afterwards.
func (s *Session) Configure(bs *bitfile.Bitstream) (*Result, error) {
	fam := bs.Family
	res := &Result{}
	q := s.newSeq(fam, res)

	q.reset(3)
	q.idcode()
	q.printf("programming %s (%s, %d bytes)\n", bs.Device, fam.Name, bs.Size())

	q.ir(device.JPROG)
	for i := 0; q.err == nil; i++ {
		if i == initPolls {
			return res, fmt.Errorf("xilinx: INIT not set after %d polls, IR capture 0x%03x: %w",
				initPolls, res.Capture, ErrTimeout)
		}
		res.Capture = q.ir(device.CFGIN)
		if q.err != nil {
			break
		}
		if res.Capture&^fam.InitBit != fam.IRCapture {
			q.mismatch("IR capture 0x%03x after JPROG", res.Capture)
		}
		if res.Capture&fam.InitBit != 0 {
			break
		}
		if s.cfg.IgnoreMismatch {
			q.mismatch("INIT not set, IR capture 0x%03x", res.Capture)
			break
		}
	}
	if q.err != nil {
		return res, q.err
	}

	q.ir(device.CFGIN)
	if q.err != nil {
		return res, q.err
	}
	if err := s.e.ShiftDRStream(bs.Reader(), bs.Size(), s.progress()); err != nil {
		return res, fmt.Errorf("xilinx: configuration data: %w", err)
	}
	fmt.Fprintln(s.cfg.Out)

	q.ir(device.JSTART)
	if q.err == nil {
		q.err = s.e.RunTest(startupClocks)
	}

	s.checkStatus(q, fam.StatusMask, fam.StatusExpected, true)
	if q.err != nil {
		return res, q.err
	}
	q.printf("done.\n")
	return res, nil
}

// ReadStatus reads the configuration status register of an FPGA of family
// fam without reconfiguring it. Mismatches are always reported as errors.
func (s *Session) ReadStatus(fam device.FamilyInfo) (*Result, error) {
	if fam.PROM {
		return nil, fmt.Errorf("xilinx: %s has no configuration status register", fam.Name)
	}
	res := &Result{}
	q := s.newSeq(fam, res)

	q.reset(3)
	q.idcode()
	s.checkStatus(q, fam.ReadStatusMask, fam.ReadStatusExpected, false)
	return res, q.err
}

// checkStatus sends the read-status packet and compares the status register
// and the port error summary. lenient lets IgnoreMismatch apply.
func (s *Session) checkStatus(q *seq, mask, expected uint32, lenient bool) {
	fam, res := q.fam, q.res
	fail := q.mismatch
	if !lenient {
		fail = func(format string, args ...any) {
			if q.err == nil {
				q.err = fmt.Errorf("xilinx: "+format+": %w", append(args, ErrMismatch)...)
			}
		}
	}

	q.ir(device.CFGIN)
	if q.err == nil {
		if err := s.e.ShiftDRWords(fam.ReadStatus); err != nil {
			q.err = fmt.Errorf("xilinx: read status packet: %w", err)
		}
	}
	res.Capture = q.ir(device.CFGOUT)
	if q.err == nil && res.Capture&fam.DoneBit == 0 {
		fail("DONE not set, IR capture 0x%03x", res.Capture)
	}
	res.Status = q.dr(32, 0)
	if q.err != nil {
		return
	}
	q.printf("status = %08x (done %t)\n", res.Status, res.Capture&fam.DoneBit != 0)
	if res.Status&mask != expected {
		fail("status 0x%08x & 0x%08x = 0x%08x, want 0x%08x",
			res.Status, mask, res.Status&mask, expected)
	}
	if s.cfg.Errors == nil || q.err != nil {
		return
	}
	sum, err := s.cfg.Errors.ErrorSummary()
	if err != nil {
		q.err = fmt.Errorf("xilinx: error summary: %w", err)
		return
	}
	res.ErrorSummary = sum
	if sum != 0 {
		fail("port error summary 0x%x", sum)
	}
}

// IDCode reads the IDCODE register of a target of family fam and parks the
// port afterwards.
func (s *Session) IDCode(fam device.FamilyInfo) (uint32, error) {
	res := &Result{}
	q := s.newSeq(fam, res)
	q.reset(3)
	q.ir(device.IDCODE)
	id := q.dr(32, 0)
	if q.err != nil {
		return 0, q.err
	}
	glog.V(1).Infof("xilinx: %s idcode %08x", fam.Name, id)
	if s.cfg.Release != nil {
		if err := s.cfg.Release.Release(); err != nil {
			return id, fmt.Errorf("xilinx: release port: %w", err)
		}
	}
	return id, nil
}
