package coverage

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	coveredSheet   = "Covered"
	uncoveredSheet = "Uncovered"
)

// WriteXLSX renders the report as a two-sheet workbook, one sheet per
// coverage state.
func (r *Report) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	f.SetSheetName(f.GetSheetName(0), coveredSheet)
	if _, err := f.NewSheet(uncoveredSheet); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeSheet(f, coveredSheet, r.Covered, true); err != nil {
		return err
	}
	if err := writeSheet(f, uncoveredSheet, r.Uncovered, false); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, entries []DatabaseCoverage, withDashboards bool) error {
	header := []any{"Database ID", "Database", "Type"}
	if withDashboards {
		header = append(header, "Dashboards")
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header on %s: %w", sheet, err)
	}

	for i, entry := range entries {
		dbType := entry.Type
		if dbType == "" {
			dbType = "unknown"
		}
		row := []any{entry.DatabaseID, entry.DatabaseName, dbType}
		if withDashboards {
			row = append(row, strings.Join(entry.Dashboards, ", "))
		}
		cell := fmt.Sprintf("A%d", i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row on %s: %w", sheet, err)
		}
	}
	return nil
}
