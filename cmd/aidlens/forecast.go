package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/aidlens/aidlens/internal/api"
)

func forecastCmd() *cobra.Command {
	var (
		entity  string
		sector  string
		horizon int
		model   string
		explain bool
	)

	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Compute one forecast and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, cleanup, err := buildEngine(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer cleanup()

			req := api.ForecastRequest{
				EntityKey:    entity,
				SectorFilter: sector,
				HorizonYears: horizon,
				Model:        api.ModelChoice(model),
			}

			result, err := eng.Forecast(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := map[string]any{"forecast": result}
			if explain {
				explanation, err := eng.Explain(cmd.Context(), req)
				if err != nil {
					return err
				}
				out["explanation"] = explanation
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVarP(&entity, "entity", "e", "", "Entity key (country name)")
	cmd.Flags().StringVarP(&sector, "sector", "s", "all", "Sector filter")
	cmd.Flags().IntVarP(&horizon, "horizon", "n", 3, "Forecast horizon in years (1-5)")
	cmd.Flags().StringVarP(&model, "model", "m", "hybrid", "Model: trend, feature-driven, or hybrid")
	cmd.Flags().BoolVar(&explain, "explain", false, "Include feature attribution")
	_ = cmd.MarkFlagRequired("entity")

	return cmd
}
