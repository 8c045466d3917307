package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridwise/tariffsim/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without running the simulation",
	RunE:  runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tariffs, %d customers, %d timeslots\n",
		cfgPath, len(cfg.Tariffs), len(cfg.Customers), cfg.Simulation.Horizon)
	return nil
}
