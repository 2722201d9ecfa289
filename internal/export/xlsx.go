// Package export writes compliance reports to XLSX workbooks.
package export

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/propply/compliance-cli/internal/model"
)

// WriteReport writes a compliance report to an XLSX file at path. The
// workbook gets a summary sheet, one sheet per dataset, and a vendors
// sheet when vendor results are attached.
func WriteReport(report *model.ComplianceReport, vendors *model.VendorSearchResult, path string) error {
	f, err := BuildWorkbook(report, vendors)
	if err != nil {
		return err
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

// BuildWorkbook builds the XLSX workbook in memory so callers can stream
// it over HTTP instead of writing a file.
func BuildWorkbook(report *model.ComplianceReport, vendors *model.VendorSearchResult) (*xlsx.File, error) {
	f := xlsx.NewFile()

	if err := addSummarySheet(f, report); err != nil {
		return nil, err
	}

	// Stable sheet order regardless of map iteration.
	names := make([]string, 0, len(report.Data))
	for name := range report.Data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := addDatasetSheet(f, name, report.Data[name]); err != nil {
			return nil, err
		}
	}

	if vendors != nil && vendors.TotalVendors > 0 {
		if err := addVendorsSheet(f, vendors); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func addSummarySheet(f *xlsx.File, report *model.ComplianceReport) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	addKeyValueRow(sheet, "Report ID", report.ID)
	addKeyValueRow(sheet, "Address", report.Address)
	addKeyValueRow(sheet, "City", report.City)
	addKeyValueRow(sheet, "Generated At", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	if report.Property.BIN != "" {
		addKeyValueRow(sheet, "BIN", report.Property.BIN)
	}
	if report.Property.BBL != "" {
		addKeyValueRow(sheet, "BBL", report.Property.BBL)
	}

	sheet.AddRow()

	addScoreRow(sheet, "HPD Score", report.Scores.HPDScore)
	addScoreRow(sheet, "DOB Score", report.Scores.DOBScore)
	addScoreRow(sheet, "Overall Score", report.Scores.OverallScore)

	sheet.AddRow()

	counts := report.Scores.Snapshot
	addCountRow(sheet, "Active HPD Violations", counts.HPDViolationsActive)
	addCountRow(sheet, "Active DOB Violations", counts.DOBViolationsActive)
	addCountRow(sheet, "Elevator Devices", counts.ElevatorDevices)
	addCountRow(sheet, "Boiler Devices", counts.BoilerDevices)
	addCountRow(sheet, "Electrical Permits", counts.ElectricalPermits)

	if report.Summary != "" {
		sheet.AddRow()
		addKeyValueRow(sheet, "Summary", report.Summary)
	}
	return nil
}

func addDatasetSheet(f *xlsx.File, name string, rows []map[string]any) error {
	sheet, err := f.AddSheet(sheetName(name))
	if err != nil {
		return eris.Wrapf(err, "export: add sheet %s", name)
	}
	if len(rows) == 0 {
		return nil
	}

	// Column order: union of keys across rows, sorted for determinism.
	keySet := map[string]struct{}{}
	for _, row := range rows {
		for k := range row {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	header := sheet.AddRow()
	for _, k := range keys {
		header.AddCell().SetString(k)
	}

	for _, row := range rows {
		out := sheet.AddRow()
		for _, k := range keys {
			out.AddCell().SetString(cellString(row[k]))
		}
	}
	return nil
}

func addVendorsSheet(f *xlsx.File, result *model.VendorSearchResult) error {
	sheet, err := f.AddSheet("Vendors")
	if err != nil {
		return eris.Wrap(err, "export: add vendors sheet")
	}

	header := sheet.AddRow()
	for _, h := range []string{"Category", "Name", "Address", "Phone", "Website", "Rating", "Reviews", "Distance (mi)"} {
		header.AddCell().SetString(h)
	}

	categories := make([]string, 0, len(result.Vendors))
	for category := range result.Vendors {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	for _, category := range categories {
		for _, v := range result.Vendors[category] {
			row := sheet.AddRow()
			row.AddCell().SetString(category)
			row.AddCell().SetString(v.Name)
			row.AddCell().SetString(v.Address)
			row.AddCell().SetString(v.Phone)
			row.AddCell().SetString(v.Website)
			if v.Rating > 0 {
				row.AddCell().SetFloatWithFormat(v.Rating, "0.0")
			} else {
				row.AddCell().SetString("")
			}
			row.AddCell().SetInt(v.RatingCount)
			row.AddCell().SetFloatWithFormat(v.DistanceMiles, "0.0")
		}
	}
	return nil
}

func addKeyValueRow(sheet *xlsx.Sheet, key, value string) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetString(value)
}

func addScoreRow(sheet *xlsx.Sheet, key string, score float64) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetFloatWithFormat(score, "0.0")
}

func addCountRow(sheet *xlsx.Sheet, key string, n int) {
	row := sheet.AddRow()
	row.AddCell().SetString(key)
	row.AddCell().SetInt(n)
}

// sheetName maps a dataset key like "hpd_violations" to a sheet title,
// truncated to the 31-character workbook limit.
func sheetName(dataset string) string {
	if len(dataset) > 31 {
		return dataset[:31]
	}
	return dataset
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Socrata numbers arrive as float64 through the generic decoder.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
