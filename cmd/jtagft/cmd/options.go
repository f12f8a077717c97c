package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/ftsw"
	"github.com/OpenTraceLab/jtagft/pkg/jtag"
	"github.com/OpenTraceLab/jtagft/pkg/shift"
	"github.com/OpenTraceLab/jtagft/pkg/xilinx"
)

// options collects the persistent flags shared by every command.
type options struct {
	verbose  int
	force    bool
	unit     int
	port     uint32
	backend  string
	chain    string
	head     string
	tail     string
	scan     bool
	fast     bool
	noBlock  bool
	parallel bool
	devmem   string
	base     int64
	simIDs   []string
	pins     []string
	dapHz    uint32
}

var opts options

var defaultSimIDs = []string{"0x05059093", "0x04008093", "0x05046093"}

func defaultUnit() int {
	if s := os.Getenv("FTSW_DEFAULT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return -1
}

func (o *options) register(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.CountVarP(&o.verbose, "verbose", "v", "verbose output, repeat for scan tracing")
	f.BoolVarP(&o.force, "force", "f", false, "ignore unexpected readbacks")
	f.IntVar(&o.unit, "unit", defaultUnit(), "FTSW unit id, also given as -<n> (default $FTSW_DEFAULT)")
	f.Uint32VarP(&o.port, "port", "p", 1, "FTSW JTAG port")
	f.StringVar(&o.backend, "backend", "ftsw", "JTAG backend (ftsw, sim, cmsisdap, gpio, ftdi, rpio)")
	f.StringVar(&o.chain, "chain", "", "chain from TDO to TDI with the target in brackets, e.g. xcf32p+[6slx45]+xcf04s")
	f.StringVar(&o.head, "head", "", "devices between the target and TDO, e.g. xcf32p+xcf04s")
	f.StringVar(&o.tail, "tail", "", "devices between TDI and the target")
	f.BoolVar(&o.scan, "scan", false, "find the target and its neighbours by scanning the chain")
	f.BoolVar(&o.fast, "fast", false, "busy-wait pacing for every edge")
	f.BoolVar(&o.noBlock, "no-block", false, "never use the firmware block shifter")
	f.BoolVar(&o.parallel, "parallel", false, "program XCF..P PROMs for parallel (SelectMAP) mode")
	f.StringVar(&o.devmem, "devmem", "", "map this device file instead of /dev/ftsw<n>")
	f.Int64Var(&o.base, "base", 0, "register window offset within --devmem")
	f.StringSliceVar(&o.simIDs, "sim-ids", nil, "sim: IDCODEs of the chain from TDO to TDI")
	f.StringSliceVar(&o.pins, "pins", []string{"11", "25", "10", "9"}, "gpio/rpio: TCK,TMS,TDI,TDO pins")
	f.Uint32Var(&o.dapHz, "dap-hz", 1000000, "cmsisdap: TCK frequency in Hz")
}

// backend is an opened JTAG port.
type backend struct {
	clk     jtag.Clocker
	errs    xilinx.ErrorSource
	release jtag.Releaser
	blocks  xilinx.BlockCounter
	close   func() error
}

func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func (o *options) openBackend(w io.Writer) (*backend, error) {
	switch o.backend {
	case "ftsw":
		if o.unit < 0 {
			return nil, fmt.Errorf("no FTSW unit given, use -<n> or set FTSW_DEFAULT")
		}
		var fopts []ftsw.Option
		if o.devmem != "" {
			fopts = append(fopts, ftsw.WithDevice(o.devmem), ftsw.WithBase(o.base))
		}
		u, err := ftsw.Open(o.unit, fopts...)
		if err != nil {
			return nil, err
		}
		clk, fw, err := ftsw.NewClock(u, u.Board(), o.unit, o.port, jtag.DefaultTiming)
		if err != nil {
			u.Close()
			return nil, err
		}
		if o.verbose > 0 {
			fmt.Fprintf(w, "FTSW#%03d firmware %s, port %d\n", o.unit, fw, o.port)
		}
		return &backend{clk: clk, errs: clk, release: clk, blocks: clk, close: u.Close}, nil

	case "sim", "simulator":
		return o.openSim()

	case "cmsisdap", "dap":
		clk, err := jtag.OpenDAPClock(jtag.VendorIDRaspberryPi, jtag.ProductIDCMSISDAP, o.dapHz)
		if err != nil {
			return nil, err
		}
		if o.verbose > 0 {
			info := clk.Info()
			fmt.Fprintf(w, "Connected to: %s %s (firmware %s)\n", info.Vendor, info.Model, info.Firmware)
		}
		return &backend{clk: clk, close: clk.Close}, nil

	case "gpio":
		if len(o.pins) != 4 {
			return nil, fmt.Errorf("--pins needs TCK,TMS,TDI,TDO")
		}
		clk, err := jtag.OpenGPIOClock(jtag.PinNames{TCK: o.pins[0], TMS: o.pins[1], TDI: o.pins[2], TDO: o.pins[3]}, jtag.DefaultTiming)
		if err != nil {
			return nil, err
		}
		return &backend{clk: clk, release: clk, close: clk.Release}, nil

	case "ftdi":
		clk, err := jtag.OpenFTDIClock(jtag.DefaultTiming)
		if err != nil {
			return nil, err
		}
		return &backend{clk: clk, release: clk, close: clk.Release}, nil

	case "rpio":
		nums, err := pinNumbers(o.pins)
		if err != nil {
			return nil, err
		}
		clk, err := jtag.OpenRPIOClock(nums, jtag.DefaultTiming)
		if err != nil {
			return nil, err
		}
		return &backend{clk: clk, release: clk.PinClock, close: clk.Release}, nil
	}
	return nil, fmt.Errorf("unknown backend %q (supported: ftsw, sim, cmsisdap, gpio, ftdi, rpio)", o.backend)
}

func pinNumbers(pins []string) (jtag.PinNumbers, error) {
	if len(pins) != 4 {
		return jtag.PinNumbers{}, fmt.Errorf("--pins needs TCK,TMS,TDI,TDO")
	}
	var n [4]int
	for i, p := range pins {
		v, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(p), "GPIO"))
		if err != nil {
			return jtag.PinNumbers{}, fmt.Errorf("pin %q is not a BCM number", p)
		}
		n[i] = v
	}
	return jtag.PinNumbers{TCK: n[0], TMS: n[1], TDI: n[2], TDO: n[3]}, nil
}

// openSim builds a simulated FTSW with two-port firmware and a chain of
// plain TAPs answering IDCODE.
func (o *options) openSim() (*backend, error) {
	ids := o.simIDs
	if len(ids) == 0 {
		ids = defaultSimIDs
	}
	reg := device.Default()
	devices := make([]*jtag.SimDevice, len(ids))
	for i, s := range ids {
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --sim-ids entry %q", s)
		}
		d := &jtag.SimDevice{Name: fmt.Sprintf("dev%d", i), IDCode: uint32(id), IRLength: 6, IDCodeOp: 0x09}
		if p, ok := reg.Match(uint32(id)); ok {
			fam := p.Info()
			d.Name = p.Name
			d.IRLength = fam.IRWidth
			d.IDCodeOp = uint64(fam.MustOpcode(device.IDCODE))
		}
		devices[i] = d
	}

	board := ftsw.DefaultBoard
	sim := jtag.NewChainSimulator(jtag.Layout2P, board.JTAGWrite, board.JTAGRead, devices...)
	ftsw.Seed(sim.Registers, board, ftsw.Firmware{ID: ftsw.FT2P, Version: 1, CPLDVersion: minSimCPLD})
	unit := o.unit
	if unit < 0 {
		unit = 0
	}
	clk, _, err := ftsw.NewClock(sim, board, unit, o.port, jtag.Timing{})
	if err != nil {
		return nil, err
	}
	glog.V(1).Infof("sim: chain of %d devices", len(devices))
	return &backend{clk: clk, errs: clk, release: clk, blocks: clk}, nil
}

const minSimCPLD = 46

// topology builds the chain around target from --chain, or from --head and
// --tail when no chain is given.
func (o *options) topology(reg *device.Registry, target chain.Device) (chain.Topology, error) {
	if o.scan {
		if o.chain != "" || o.head != "" || o.tail != "" {
			return chain.Topology{}, fmt.Errorf("--scan excludes --chain, --head and --tail")
		}
		return chain.New(target, nil, nil), nil
	}
	if o.chain != "" {
		if o.head != "" || o.tail != "" {
			return chain.Topology{}, fmt.Errorf("--chain excludes --head and --tail")
		}
		topo, err := chain.Parse(reg, o.chain)
		if err != nil {
			return chain.Topology{}, err
		}
		d, _ := topo.TargetDevice()
		if d.Family.Family != target.Family.Family {
			return chain.Topology{}, fmt.Errorf("chain target %s is a %s, want a %s", d.Name, d.Family.Name, target.Family.Name)
		}
		return topo, nil
	}
	head, err := chain.ParseList(reg, o.head)
	if err != nil {
		return chain.Topology{}, fmt.Errorf("--head: %w", err)
	}
	tail, err := chain.ParseList(reg, o.tail)
	if err != nil {
		return chain.Topology{}, fmt.Errorf("--tail: %w", err)
	}
	return chain.New(target, head, tail), nil
}

// session opens the backend and binds a session for target to it. The
// returned backend must be closed by the caller.
func (o *options) session(cmd *cobra.Command, reg *device.Registry, target chain.Device) (*xilinx.Session, *backend, error) {
	topo, err := o.topology(reg, target)
	if err != nil {
		return nil, nil, err
	}
	if err := topo.Validate(); err != nil {
		return nil, nil, err
	}
	out := cmd.OutOrStdout()
	b, err := o.openBackend(out)
	if err != nil {
		return nil, nil, err
	}
	if o.scan {
		if topo, err = scanTopology(b.clk, reg, target); err != nil {
			b.Close()
			return nil, nil, err
		}
	}
	if o.verbose > 0 {
		fmt.Fprintf(out, "chain %s: head %d bits/%d devices, tail %d bits/%d devices\n",
			topo, topo.HeadBits(), topo.HeadDevices(), topo.TailBits(), topo.TailDevices())
	}

	var eopts []shift.Option
	if o.noBlock {
		eopts = append(eopts, shift.WithoutBlock())
	}
	e := shift.New(b.clk, topo, eopts...)
	e.SetFast(o.fast)

	s := xilinx.NewSession(e, xilinx.Config{
		Registry:       reg,
		Errors:         b.errs,
		Release:        b.release,
		Blocks:         b.blocks,
		IgnoreMismatch: o.force,
		Parallel:       o.parallel,
		Out:            out,
	})
	return s, b, nil
}

// scanTopology reads the chain and targets its first device matching
// target, by part when one was named and by family otherwise.
func scanTopology(clk jtag.Clocker, reg *device.Registry, target chain.Device) (chain.Topology, error) {
	res, err := chain.Scan(clk, reg, chain.DefaultMaxDevices)
	if err != nil {
		return chain.Topology{}, err
	}
	for i, d := range res.Devices {
		if !d.Known {
			continue
		}
		if target.Part.Name != "" && d.Part.Name != target.Part.Name {
			continue
		}
		if d.Part.Info().Family != target.Family.Family {
			continue
		}
		return chain.FromScan(res, i)
	}
	return chain.Topology{}, fmt.Errorf("no %s in the scanned chain: %w", target.Name, xilinx.ErrMismatch)
}

// closeBackend closes b, keeping the first error.
func closeBackend(b *backend, err *error) {
	if cerr := b.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}
