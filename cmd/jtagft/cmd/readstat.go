package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/device"
)

var readstatCmd = &cobra.Command{
	Use:   "readstat <family|part>",
	Short: "Read the configuration status register of the target FPGA",
	Long: `Send the read-status configuration packet to the target FPGA and check the
returned status word. A device that is not configured fails the check even
with -f.`,
	Args: cobra.ExactArgs(1),
	RunE: runReadStat,
}

func init() {
	rootCmd.AddCommand(readstatCmd)
}

func runReadStat(cmd *cobra.Command, args []string) (err error) {
	reg := device.Default()
	target, err := chain.NewDevice(reg, args[0])
	if err != nil {
		return err
	}
	if target.Family.PROM {
		return fmt.Errorf("%s is a PROM, readstat needs an FPGA", target.Name)
	}
	s, b, err := opts.session(cmd, reg, target)
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	res, err := s.ReadStatus(target.Family)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s configured, status %08x\n", target.Family.Name, res.Status)
	return nil
}
