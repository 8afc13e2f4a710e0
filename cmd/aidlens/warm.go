package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func warmCmd() *cobra.Command {
	var horizon int

	cmd := &cobra.Command{
		Use:   "warm",
		Short: "Precompute forecasts for every known entity into the caches",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			warmed, err := eng.Warm(cmd.Context(), horizon)
			if err != nil {
				return err
			}
			fmt.Printf("Warmed %d entity forecasts (horizon %d years)\n", warmed, horizon)
			return nil
		},
	}

	cmd.Flags().IntVarP(&horizon, "horizon", "n", 3, "Forecast horizon in years (1-5)")
	return cmd
}
