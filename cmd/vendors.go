package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/propply/compliance-cli/internal/model"
)

var (
	vendorsAddress string
	vendorsRadius  float64
	vendorsCounts  struct {
		hpd, dob, elevators, boilers, electrical int
	}
)

var vendorsCmd = &cobra.Command{
	Use:   "vendors",
	Short: "Find contractors for a property's violations",
}

var vendorsFindCmd = &cobra.Command{
	Use:   "find",
	Short: "Search contractors near an address by violation category",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		snap := model.ViolationSnapshot{
			HPDViolationsActive: vendorsCounts.hpd,
			DOBViolationsActive: vendorsCounts.dob,
			ElevatorDevices:     vendorsCounts.elevators,
			BoilerDevices:       vendorsCounts.boilers,
			ElectricalPermits:   vendorsCounts.electrical,
		}

		result, err := env.Matcher.FindWithRadius(ctx, vendorsAddress, snap, vendorsRadius)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(result), "encode result")
	},
}

func init() {
	vendorsFindCmd.Flags().StringVar(&vendorsAddress, "address", "", "property address (required)")
	vendorsFindCmd.Flags().Float64Var(&vendorsRadius, "radius", 0, "search radius in miles (default from config)")
	vendorsFindCmd.Flags().IntVar(&vendorsCounts.hpd, "hpd", 0, "active HPD violations")
	vendorsFindCmd.Flags().IntVar(&vendorsCounts.dob, "dob", 0, "active DOB violations")
	vendorsFindCmd.Flags().IntVar(&vendorsCounts.elevators, "elevators", 0, "elevator devices")
	vendorsFindCmd.Flags().IntVar(&vendorsCounts.boilers, "boilers", 0, "boiler devices")
	vendorsFindCmd.Flags().IntVar(&vendorsCounts.electrical, "electrical", 0, "electrical permits")
	_ = vendorsFindCmd.MarkFlagRequired("address")

	vendorsCmd.AddCommand(vendorsFindCmd)
	rootCmd.AddCommand(vendorsCmd)
}
