package services

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"qctracker/internal/models"
)

const (
	ExportFilename    = "test_results.xlsx"
	ExportContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ExportColumns is the fixed header row of the spreadsheet export.
var ExportColumns = []string{
	"Device No",
	"Order ID",
	"Pop",
	"Scratch & Feinguide",
	"Buttons Hardness",
	"Button Going Inside",
	"Button ON/OFF",
	"Charging",
	"Test No",
	"Test Remark",
	"NDR",
	"Tester",
	"Created At (UTC)",
}

// ExportTable runs the filtered query and renders it as an .xlsx workbook.
// Unparseable date bounds are dropped without a warning.
func (s *QueryService) ExportTable(ctx context.Context, p models.FilterParams) ([]byte, error) {
	f, warnings := s.BuildFilter(p)
	if len(warnings) > 0 {
		s.logger.Debug().Int("ignored_bounds", len(warnings)).Msg("export ignoring malformed date filter")
	}

	rows, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return buildWorkbook(rows)
}

// ExportRow maps a record onto ExportColumns.
func ExportRow(r models.TestResult) []interface{} {
	return []interface{}{
		r.DeviceNo,
		r.OrderID,
		r.Pop,
		r.ScratchFeinguide,
		r.ButtonHardness,
		r.ButtonGoingInside,
		r.ButtonOnOff,
		r.Charging,
		r.TestNo,
		r.TestRemark,
		YesNo(r.NDR),
		r.TesterName,
		r.CreatedAt.UTC().Format(DateLayout),
	}
}

// YesNo renders a flag the way the export and the list pages show it.
func YesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func buildWorkbook(rows []models.TestResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)

	header := make([]interface{}, len(ExportColumns))
	for i, c := range ExportColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		values := ExportRow(r)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
