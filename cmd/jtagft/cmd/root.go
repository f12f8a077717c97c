package cmd

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jtagft [flags] [family|part]",
	Short: "Program Xilinx FPGAs and XCF PROMs over an FTSW JTAG port",
	Long: `jtagft drives the JTAG port of an FTSW board, or a USB or GPIO adapter, to
identify the devices of a chain, configure an FPGA from a .bit file and
program an XCF..P PROM from a .mcs file.

Examples:
  jtagft -3 -p1 6s                                  # read the IDCODE of a Spartan-6
  jtagft -3 -p1 chain                               # list the devices of the chain
  jtagft -3 -p1 --chain xcf32p+[6slx45] program top.bit
  jtagft -3 -p1 --chain [xcf32p]+6slx45 program top.mcs
  jtagft --backend sim chain                        # simulated chain`,
	Version:           "2.0.0",
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			return cmd.Help()
		}
		return runIDCode(cmd, args)
	},
}

// Execute runs the root command
func Execute() {
	rootCmd.SetArgs(rewriteUnitArgs(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	opts.register(rootCmd)
}

var unitArg = regexp.MustCompile(`^-([0-9]+)$`)

// rewriteUnitArgs turns the historical -<n> unit selector into --unit=<n>.
func rewriteUnitArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if a == "--" {
			copy(out[i:], args[i:])
			break
		}
		if m := unitArg.FindStringSubmatch(a); m != nil {
			a = "--unit=" + m[1]
		}
		out[i] = a
	}
	return out
}

// setupLogging routes glog to stderr and maps -v onto its verbosity.
func setupLogging(cmd *cobra.Command, args []string) error {
	if err := flag.Set("logtostderr", "true"); err != nil {
		return err
	}
	return flag.Set("v", strconv.Itoa(opts.verbose))
}
