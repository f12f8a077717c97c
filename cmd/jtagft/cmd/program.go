package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/bitfile"
	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/mcs"
	"github.com/OpenTraceLab/jtagft/pkg/xilinx"
)

var programCmd = &cobra.Command{
	Use:   "program <file.bit|file.mcs>",
	Short: "Configure an FPGA from a .bit file or program a PROM from a .mcs file",
	Long: `Configure the target FPGA directly from a .bit file, or erase and program the
target XCF..P PROM from a .mcs file. The file is validated completely before
the JTAG port is touched.

Examples:
  jtagft -3 -p1 --chain xcf32p+[6slx45] program top.bit
  jtagft -3 -p1 --tail 6slx45 program top.mcs
  jtagft -3 -p1 --parallel --tail 5vlx50t program top.mcs`,
	Args: cobra.ExactArgs(1),
	RunE: runProgram,
}

var eraseCmd = &cobra.Command{
	Use:   "erase",
	Short: "Erase the target XCF..P PROM",
	Args:  cobra.NoArgs,
	RunE:  runErase,
}

func init() {
	rootCmd.AddCommand(programCmd)
	rootCmd.AddCommand(eraseCmd)
}

func runProgram(cmd *cobra.Command, args []string) error {
	path := args[0]
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".bit":
		bs, err := bitfile.ParseFile(path)
		if err != nil {
			return err
		}
		return programBit(cmd, bs)
	case ".mcs":
		img, err := mcs.ParseFile(path)
		if err != nil {
			return err
		}
		return programMCS(cmd, img)
	default:
		return fmt.Errorf("%s: unknown file type %q, want .bit or .mcs", path, ext)
	}
}

func programBit(cmd *cobra.Command, bs *bitfile.Bitstream) (err error) {
	reg := device.Default()
	target := chain.Device{Name: bs.Device, Family: bs.Family}
	s, b, err := opts.session(cmd, reg, target)
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	res, err := s.Configure(bs)
	report(cmd, res)
	return err
}

func promTarget(reg *device.Registry) (chain.Device, error) {
	return chain.NewDevice(reg, "fp")
}

func programMCS(cmd *cobra.Command, img *mcs.Image) (err error) {
	reg := device.Default()
	target, err := promTarget(reg)
	if err != nil {
		return err
	}
	s, b, err := opts.session(cmd, reg, target)
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	res, err := s.ProgramPROM(img)
	report(cmd, res)
	return err
}

func runErase(cmd *cobra.Command, args []string) (err error) {
	reg := device.Default()
	target, err := promTarget(reg)
	if err != nil {
		return err
	}
	s, b, err := opts.session(cmd, reg, target)
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	res, err := s.ErasePROM()
	report(cmd, res)
	return err
}

// report lists the warnings an operation tolerated.
func report(cmd *cobra.Command, res *xilinx.Result) {
	if res == nil || len(res.Warnings) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d warning(s):\n", len(res.Warnings))
	for _, w := range res.Warnings {
		fmt.Fprintf(out, "  %s\n", w)
	}
}
