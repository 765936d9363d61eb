package storage

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"licence-trends/models"
)

// Sheet names in the exported workbook.
const (
	SheetMonthly       = "Monthly"
	SheetYearly        = "Yearly"
	SheetStatusByYear  = "StatusByYear"
	SheetTypeByYear    = "TypeByYear"
	SheetCrisisImpact  = "CrisisImpact"
	SheetForecast      = "Forecast"
	SheetVulnerability = "Vulnerability"
)

// XLSXWriter exports the aggregate tables as one workbook, with a line chart
// of the monthly series.
type XLSXWriter struct {
	path string
}

// NewXLSXWriter prepares a writer for the given workbook path.
func NewXLSXWriter(path string) (*XLSXWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("xlsx: create output dir: %w", err)
	}
	return &XLSXWriter{path: path}, nil
}

// Write builds the workbook and saves it, replacing any previous file.
func (x *XLSXWriter) Write(_ context.Context, r *models.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"DDEBF7"}},
	})
	if err != nil {
		return fmt.Errorf("xlsx: header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetMonthly); err != nil {
		return fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	var monthly, yearly [][]any
	if ts := r.Series; ts != nil {
		for _, m := range ts.Monthly {
			monthly = append(monthly, []any{m.MonthStart.Format("2006-01"), m.Count})
		}
		for _, y := range ts.Yearly {
			yearly = append(yearly, []any{y.Year, y.Count})
		}
	}
	if err := x.fillSheet(f, SheetMonthly, header, []any{"month_start", "count"}, monthly); err != nil {
		return err
	}
	if len(monthly) > 0 {
		if err := f.AddChart(SheetMonthly, "D2", &excelize.Chart{
			Type: excelize.Line,
			Series: []excelize.ChartSeries{{
				Name:       fmt.Sprintf("%s!$B$1", SheetMonthly),
				Categories: fmt.Sprintf("%s!$A$2:$A$%d", SheetMonthly, len(monthly)+1),
				Values:     fmt.Sprintf("%s!$B$2:$B$%d", SheetMonthly, len(monthly)+1),
			}},
			Title:  []excelize.RichTextRun{{Text: "Business licences issued per month"}},
			Legend: excelize.ChartLegend{Position: "none"},
		}); err != nil {
			return fmt.Errorf("xlsx: monthly chart: %w", err)
		}
	}

	if err := x.newSheet(f, SheetYearly, header, []any{"year", "count"}, yearly); err != nil {
		return err
	}

	if ts := r.Series; ts != nil {
		tabs := []struct {
			name string
			ct   *models.CrossTab
		}{{SheetStatusByYear, ts.StatusByYear}, {SheetTypeByYear, ts.TypeByYear}}
		for _, tab := range tabs {
			name, ct := tab.name, tab.ct
			if ct == nil {
				continue
			}
			h := []any{"year"}
			for _, c := range ct.Columns {
				h = append(h, c)
			}
			var rows [][]any
			for _, y := range ct.Years {
				row := []any{y}
				for _, c := range ct.Columns {
					row = append(row, ct.Cell(y, c))
				}
				rows = append(rows, row)
			}
			if err := x.newSheet(f, name, header, h, rows); err != nil {
				return err
			}
		}
	}

	var impacts [][]any
	for _, m := range r.Impacts {
		impacts = append(impacts, []any{
			m.Crisis.Name, m.Crisis.Start.String(), m.Crisis.End.String(),
			m.BaselineYear, m.BaselineCount, m.CrisisCount,
			cellFloat(m.PointChange), cellFloat(m.MeanChange), cellFloat(m.CILower), cellFloat(m.CIUpper),
			m.Absolute,
		})
	}
	if err := x.newSheet(f, SheetCrisisImpact, header, []any{
		"crisis", "start", "end", "baseline_year", "baseline_count", "crisis_count",
		"point_change", "mean_change", "ci_lower", "ci_upper", "absolute",
	}, impacts); err != nil {
		return err
	}

	var forecasts [][]any
	for _, fc := range r.Forecasts {
		forecasts = append(forecasts, []any{fc.BusinessType, fc.Year,
			math.Round(fc.PredictedCount*100) / 100, math.Round(fc.CILower*100) / 100, math.Round(fc.CIUpper*100) / 100})
	}
	if err := x.newSheet(f, SheetForecast, header,
		[]any{"businesstype", "year", "predicted_count", "ci_lower", "ci_upper"}, forecasts); err != nil {
		return err
	}

	var vuln [][]any
	for _, v := range r.Vulnerability {
		vuln = append(vuln, []any{v.BusinessType, v.Count, v.Survived, v.SurvivalRate})
	}
	if err := x.newSheet(f, SheetVulnerability, header,
		[]any{"businesstype", "count", "survived", "survival_rate"}, vuln); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.SaveAs(x.path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", x.path, err)
	}
	return nil
}

// Close is a no-op; the workbook is saved inside Write.
func (x *XLSXWriter) Close() error { return nil }

func (x *XLSXWriter) newSheet(f *excelize.File, name string, style int, header []any, rows [][]any) error {
	if _, err := f.NewSheet(name); err != nil {
		return fmt.Errorf("xlsx: new sheet %s: %w", name, err)
	}
	return x.fillSheet(f, name, style, header, rows)
}

func (x *XLSXWriter) fillSheet(f *excelize.File, name string, style int, header []any, rows [][]any) error {
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("xlsx: %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return fmt.Errorf("xlsx: %s header range: %w", name, err)
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		return fmt.Errorf("xlsx: %s header style: %w", name, err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", name, i+2, err)
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return fmt.Errorf("xlsx: %s row %d: %w", name, i+2, err)
		}
	}
	return nil
}

// cellFloat leaves undefined values as empty cells.
func cellFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return math.Round(v*100) / 100
}
