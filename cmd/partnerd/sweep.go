package main

import (
	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run the closure sweep, timer warnings and delivery once, then exit",
	Long:  "sweep runs every background job a single time. It suits deployments that drive jobs from an external scheduler.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := wire(cmd.Context(), wireOptions{})
		if err != nil {
			return err
		}
		defer rt.close()

		rt.scheduler().RunOnce()
		return nil
	},
}
