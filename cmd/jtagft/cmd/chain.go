package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/device"
)

var maxDevices int

var chainCmd = &cobra.Command{
	Use:   "chain",
	Short: "List the devices of the JTAG chain",
	Long: `Reset the chain, read every IDCODE from the DR chain and match them against
the known parts. Devices are listed from TDO to TDI, which is the order
--chain expects.`,
	Args: cobra.NoArgs,
	RunE: runChain,
}

func init() {
	rootCmd.AddCommand(chainCmd)
	chainCmd.Flags().IntVar(&maxDevices, "max", chain.DefaultMaxDevices, "maximum chain length")
}

func runChain(cmd *cobra.Command, args []string) (err error) {
	b, err := opts.openBackend(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	res, err := chain.Scan(b.clk, device.Default(), maxDevices)
	if res != nil {
		printChain(cmd, res)
	}
	return err
}

func printChain(cmd *cobra.Command, res *chain.ScanResult) {
	out := cmd.OutOrStdout()
	names := make([]string, len(res.Devices))
	for i, d := range res.Devices {
		fmt.Fprintf(out, "%2d: %08x %s\n", d.Position, d.Raw, d.Name())
		names[i] = d.Name()
		if !d.Known {
			names[i] = "?"
		}
	}
	fmt.Fprintf(out, "%d device(s): %s\n", len(res.Devices), strings.Join(names, "+"))
}
