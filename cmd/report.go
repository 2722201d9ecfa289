package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propply/compliance-cli/internal/export"
	"github.com/propply/compliance-cli/internal/model"
)

var (
	reportAddress     string
	reportCity        string
	reportWithVendors bool
	exportID          string
	exportOut         string
	exportWithVendors bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate and export compliance reports",
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a compliance report for an address",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var svc reportGenerator
		switch strings.ToLower(reportCity) {
		case "", "nyc":
			svc = env.NYC
		case "philadelphia", "philly":
			svc = env.Philly
		default:
			return eris.Errorf("unsupported city %q", reportCity)
		}

		report, err := svc.Generate(ctx, reportAddress)
		if err != nil {
			return err
		}

		out := struct {
			*model.ComplianceReport
			Vendors *model.VendorSearchResult `json:"vendor_search,omitempty"`
		}{ComplianceReport: report}

		if reportWithVendors {
			vendors, err := env.Matcher.Find(ctx, reportAddress, report.Scores.Snapshot)
			if err != nil {
				zap.L().Warn("vendor search failed", zap.String("address", reportAddress), zap.Error(err))
			} else {
				out.Vendors = vendors
			}
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "encode report")
	},
}

var reportExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored report to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := newAppEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		report, err := env.Store.GetReport(ctx, exportID)
		if err != nil {
			return err
		}

		var vendors *model.VendorSearchResult
		if exportWithVendors {
			vendors, err = env.Matcher.Find(ctx, report.Address, report.Scores.Snapshot)
			if err != nil {
				zap.L().Warn("vendor search failed, exporting without vendors",
					zap.String("address", report.Address), zap.Error(err))
				vendors = nil
			}
		}

		if err := export.WriteReport(report, vendors, exportOut); err != nil {
			return err
		}
		zap.L().Info("report exported", zap.String("id", exportID), zap.String("path", exportOut))
		return nil
	},
}

func init() {
	reportGenerateCmd.Flags().StringVar(&reportAddress, "address", "", "property address (required)")
	reportGenerateCmd.Flags().StringVar(&reportCity, "city", "nyc", "city: nyc or philadelphia")
	reportGenerateCmd.Flags().BoolVar(&reportWithVendors, "vendors", false, "also run the contractor search")
	_ = reportGenerateCmd.MarkFlagRequired("address")

	reportExportCmd.Flags().StringVar(&exportID, "id", "", "report ID (required)")
	reportExportCmd.Flags().StringVar(&exportOut, "out", "report.xlsx", "output file path")
	reportExportCmd.Flags().BoolVar(&exportWithVendors, "vendors", false, "run the contractor search and add a vendors sheet")
	_ = reportExportCmd.MarkFlagRequired("id")

	reportCmd.AddCommand(reportGenerateCmd)
	reportCmd.AddCommand(reportExportCmd)
	rootCmd.AddCommand(reportCmd)
}
