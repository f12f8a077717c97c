package xilinx

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/golang/glog"

	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/mcs"
	"github.com/OpenTraceLab/jtagft/pkg/shift"
)

const (
	blockSize   = 32
	addrStride  = 0x100000
	statusReady = 0x04 // XSC_OP_STATUS bit set when the ISC engine is idle
	programDone = 0x36

	programPolls = 10
	// erasePolls bounds both erase waits; a bulk erase of an XCF32P takes
	// well under a minute.
	erasePolls = 20000
)

func (q *seq) status(opts ...shift.ScanOption) uint32 {
	return q.dr(8, 0, opts...)
}

// statusPair reads the op status twice after a commit. A second read without
// the ready bit is only a warning.
func (q *seq) statusPair(step string, exit time.Duration) {
	q.status(shift.ExitDelay(exit))
	st := q.status(shift.ExitDelay(exit))
	if q.err == nil && st&statusReady == 0 {
		q.res.warn(fmt.Errorf("xilinx: %s: op status 0x%02x not ready", step, st))
	}
}

// waitErase polls the op status register until the erase engine reports
// ready, sleeping delay before every read. It returns the number of reads.
func (q *seq) waitErase(step string, delay time.Duration, opts ...shift.ScanOption) int {
	for i := 0; q.err == nil; i++ {
		if i == erasePolls {
			q.err = fmt.Errorf("xilinx: %s: op status not ready after %d polls: %w", step, erasePolls, ErrTimeout)
			break
		}
		q.sleep(delay)
		if st := q.status(opts...); st&statusReady != 0 {
			glog.V(1).Infof("xilinx: %s done after %d polls (0x%02x)", step, i+1, st)
			return i + 1
		}
	}
	return 0
}

func (s *Session) promSeq(res *Result) *seq {
	fam, _ := device.Info(device.XCFP)
	return s.newSeq(fam, res)
}

// identifyPROM resets the chain and checks that the target is an XCF..P.
func (q *seq) identifyPROM() {
	q.reset(3)
	id := q.idcode()
	if q.err != nil {
		return
	}
	p, ok := q.s.cfg.Registry.Match(id)
	switch {
	case !ok:
		q.mismatch("idcode %08x is not a known PROM", id)
	case p.Family != device.XCFP:
		q.mismatch("idcode %08x (%s) is not an XCF..P PROM", id, p.Name)
	}
}

func (q *seq) erase() {
	q.printf("erasing %s...\n", q.res.Part.Name)
	q.ir(device.ISPEN)
	q.dr(8, 0x03)
	q.ir(device.XSCDataRDPT)
	q.dr(16, 0)
	q.ir(device.XSCDataWRPT)
	q.dr(16, 0)
	q.bypass(false)
	q.ir(device.ISPEN)
	q.dr(8, 0xd0)
	q.ir(device.XSCUnlock)
	q.dr(24, 0x3f)
	q.ir(device.ISCErase)
	q.dr(24, 0x3f)
	q.ir(device.XSCOpStatus)
	if n := q.waitErase("erase", 10*time.Millisecond); n > 0 {
		q.printf("erase done (%d polls)\n", n)
	}
}

// ErasePROM erases an XCF..P PROM and reloads the FPGA from it.
func (s *Session) ErasePROM() (*Result, error) {
	res := &Result{}
	q := s.promSeq(res)
	q.identifyPROM()
	q.erase()
	q.ir(device.CONLD)
	q.reset(3)
	q.bypass(true)
	return res, q.err
}

// ProgramPROM erases an XCF..P PROM, writes img into it, then programs the
// configuration control bits and the DONE field.
func (s *Session) ProgramPROM(img *mcs.Image) (*Result, error) {
	res := &Result{}
	q := s.promSeq(res)
	q.identifyPROM()
	q.erase()

	q.bypass(false)
	q.ir(device.CONLD)
	q.ir(device.ISPEN)
	q.dr(8, 0xd0)
	q.reset(3)
	q.bypass(true)
	for i := 0; i < 2; i++ {
		q.ir(device.ISPEN)
		q.dr(8, 0x03)
		q.sleep(200 * time.Microsecond)
	}
	q.ir(device.XSCDataBTC)
	if btc := res.Part.BTC; btc != 0 {
		q.dr(32, btc)
	}
	q.ir(device.ISCProgram)
	q.ir(device.XSCOpStatus)
	q.sleep(100 * time.Microsecond)
	q.statusPair("btc", 0)
	if q.err != nil {
		return res, q.err
	}

	q.bypass(false)
	q.ir(device.ISPEN)
	q.dr(8, 0xd0)
	s.programBlocks(q, img.Data)

	q.reset(3)
	q.bypass(true)
	for i := 0; i < 3; i++ {
		q.ir(device.ISPEN)
		q.dr(8, 0x03)
		q.sleep(240 * time.Microsecond)
	}
	q.ir(device.XSCDataSUCR)
	q.dr(16, 0, shift.ExitDelay(240*time.Microsecond))
	q.ir(device.ISPEN)
	q.dr(8, 0x03)
	q.sleep(240 * time.Microsecond)
	q.ir(device.XSCUnlock)
	q.dr(24, 0x20)
	q.ir(device.ISCErase)
	q.dr(24, 0x20)
	q.ir(device.XSCOpStatus)
	q.waitErase("control erase", 2500*time.Microsecond, shift.ExitDelay(200*time.Microsecond))
	q.status(shift.ExitDelay(400 * time.Microsecond))

	q.ir(device.XSCDataSUCR)
	q.dr(16, 0xfffc)
	q.ir(device.ISCProgram)
	q.ir(device.XSCOpStatus)
	q.statusPair("sucr", 200*time.Microsecond)
	q.ir(device.XSCDataSUCR)
	q.dr(16, 0)
	q.ir(device.ISPEN)
	q.dr(8, 0x03)
	q.sleep(time.Millisecond)

	ccb, mode := uint32(0xffff), "serial"
	if s.cfg.Parallel {
		ccb, mode = 0xfff9, "parallel"
	}
	q.printf("setting %s mode\n", mode)
	q.ir(device.XSCDataCCB)
	q.dr(16, ccb)
	q.ir(device.ISCProgram)
	q.ir(device.XSCOpStatus)
	q.sleep(100 * time.Microsecond)
	q.statusPair("ccb", 200*time.Microsecond)

	q.ir(device.CONLD)
	q.sleep(200 * time.Microsecond)
	q.reset(3)
	q.ir(device.ISPEN)
	q.dr(8, 0x03)
	q.sleep(time.Millisecond)
	q.ir(device.XSCDataDone)
	q.dr(8, 0x00, shift.ExitDelay(300*time.Microsecond))
	q.ir(device.XSCDataDone)
	q.dr(8, 0xc0)
	q.ir(device.ISCProgram)
	q.ir(device.XSCOpStatus)
	q.sleep(100 * time.Microsecond)
	q.statusPair("done", 700*time.Microsecond)

	q.reset(8)
	q.ir(device.CONLD)
	q.reset(3)
	q.ir(device.BYPASS)
	q.bypass(false)
	q.dr(1, 0)
	q.bypass(true)
	if q.err != nil {
		return res, q.err
	}
	q.printf("done.\n")
	return res, nil
}

// programBlocks writes data in 32-byte blocks in fast mode. Bytes go out
// least significant bit first.
func (s *Session) programBlocks(q *seq, data []byte) {
	if q.err != nil {
		return
	}
	fast := s.e.SetFast(true)
	settle := s.e.SetIRSettle(0)
	defer func() {
		s.e.SetFast(fast)
		s.e.SetIRSettle(settle)
	}()

	progress := s.progress()
	buf := make([]byte, blockSize)
	for off := 0; off < len(data) && q.err == nil; off += blockSize {
		n := copy(buf, data[off:])
		for i := range buf[:n] {
			buf[i] = bits.Reverse8(buf[i])
		}
		for i := n; i < blockSize; i++ {
			buf[i] = 0xff
		}
		q.ir(device.ISCDataShift)
		if q.err == nil {
			if err := s.e.ShiftDRBytes(buf); err != nil {
				q.err = fmt.Errorf("xilinx: block 0x%06x: %w", off, err)
			}
		}
		if off%addrStride == 0 {
			q.ir(device.ISCAddrShift)
			q.dr(24, uint32(off))
		}
		q.ir(device.ISCProgram)

		var st uint32
		for i := 0; i < programPolls && q.err == nil; i++ {
			q.ir(device.XSCOpStatus)
			if st = q.status(); st == programDone {
				break
			}
		}
		if q.err == nil && st != programDone {
			q.res.warn(fmt.Errorf("xilinx: block 0x%06x: op status 0x%02x after %d polls", off, st, programPolls))
		}
		progress(int64(off+blockSize), int64(len(data)))
	}
	if q.err == nil {
		fmt.Fprintln(s.cfg.Out)
	}
}
