package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagft/pkg/chain"
	"github.com/OpenTraceLab/jtagft/pkg/device"
	"github.com/OpenTraceLab/jtagft/pkg/xilinx"
)

var idcodeCmd = &cobra.Command{
	Use:   "idcode <family|part>",
	Short: "Read the IDCODE of the target device",
	Long: `Read the IDCODE register of the target and match it against the known parts
of the given family. This is also what jtagft does when it is given a single
family or part name without a command.

Examples:
  jtagft -3 -p1 idcode 6s
  jtagft -3 -p1 --head xcf32p idcode xc5vlx50t`,
	Args: cobra.ExactArgs(1),
	RunE: runIDCode,
}

func init() {
	rootCmd.AddCommand(idcodeCmd)
}

func runIDCode(cmd *cobra.Command, args []string) (err error) {
	reg := device.Default()
	target, err := chain.NewDevice(reg, args[0])
	if err != nil {
		return err
	}
	s, b, err := opts.session(cmd, reg, target)
	if err != nil {
		return err
	}
	defer closeBackend(b, &err)

	id, err := s.IDCode(target.Family)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "idcode = %08x\n", id)
	p, ok := reg.Match(id)
	if ok && p.Family == target.Family.Family {
		fmt.Fprintf(out, "%s found\n", p.Name)
		return nil
	}
	err = fmt.Errorf("no %s device found (%s): %w", target.Family.Name, device.ParseIDCode(id), xilinx.ErrMismatch)
	if opts.force {
		fmt.Fprintln(out, err)
		return nil
	}
	return err
}
