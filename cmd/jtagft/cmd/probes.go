package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/jtag"
)

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List USB JTAG adapters",
	Long: `Scan the host for USB JTAG adapters (CMSIS-DAP, FTDI) usable with
--backend cmsisdap or --backend ftdi.`,
	Args: cobra.NoArgs,
	RunE: runProbes,
}

func init() {
	rootCmd.AddCommand(probesCmd)
}

func runProbes(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	probes, err := jtag.EnumerateProbes(ctx)
	if err != nil {
		return fmt.Errorf("enumerate probes: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(probes) == 0 {
		fmt.Fprintln(out, "No probes found.")
		return nil
	}
	fmt.Fprintln(out, "Detected JTAG probes:")
	for _, p := range probes {
		fmt.Fprintf(out, "  - %s [%s] bus %d address %d\n", p.Label(), p.Kind, p.Bus, p.Address)
	}
	return nil
}
