package output

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/jxman/aws-ssm-data-fetcher/report"
)

const excelFile = "aws_regions_services.xlsx"

// Column widths track the longest cell, clamped to stay readable.
const (
	minColumnWidth = 10
	maxColumnWidth = 50
)

// Sheet styling colors.
const (
	headerFillColor      = "366092"
	headerFontColor      = "FFFFFF"
	availableFillColor   = "C6EFCE"
	unavailableFillColor = "FFC7CE"
)

// ExcelWriter renders the report as one workbook with a sheet per view:
// Regional Services, Service Matrix, Region Summary, Service Summary,
// Statistics, and Validation.
type ExcelWriter struct{}

// NewExcelWriter creates a new ExcelWriter instance
func NewExcelWriter() *ExcelWriter {
	return &ExcelWriter{}
}

func (w *ExcelWriter) Format() string { return "excel" }

// Write renders the workbook into dir.
func (w *ExcelWriter) Write(rep report.Report, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	sheets := []struct {
		name string
		rows [][]string
	}{
		{"Regional Services", regionalServiceRows(rep)},
		{"Service Matrix", serviceMatrixRows(rep)},
		{"Region Summary", regionSummaryRows(rep)},
		{"Service Summary", serviceSummaryRows(rep)},
		{"Statistics", statisticsRows(rep)},
		{"Validation", validationRows(rep)},
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheets[0].name); err != nil {
		return nil, fmt.Errorf("rename first sheet: %w", err)
	}
	for _, sheet := range sheets[1:] {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, fmt.Errorf("create sheet %s: %w", sheet.name, err)
		}
	}

	styles, err := newSheetStyles(f)
	if err != nil {
		return nil, err
	}
	for _, sheet := range sheets {
		if err := writeSheet(f, sheet.name, sheet.rows, styles); err != nil {
			return nil, err
		}
	}

	path := filepath.Join(dir, excelFile)
	if err := f.SaveAs(path); err != nil {
		return nil, fmt.Errorf("save %s: %w", path, err)
	}
	return []string{path}, nil
}

type sheetStyles struct {
	header      int
	available   int
	unavailable int
}

func newSheetStyles(f *excelize.File) (sheetStyles, error) {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: headerFontColor},
		Fill: excelize.Fill{Type: "pattern", Color: []string{headerFillColor}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("header style: %w", err)
	}
	available, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{availableFillColor}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("available style: %w", err)
	}
	unavailable, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{unavailableFillColor}, Pattern: 1},
	})
	if err != nil {
		return sheetStyles{}, fmt.Errorf("unavailable style: %w", err)
	}
	return sheetStyles{header: header, available: available, unavailable: unavailable}, nil
}

// writeSheet fills one sheet: values, header styling, matrix cell fills, a
// frozen header row, and content-sized columns.
func writeSheet(f *excelize.File, name string, rows [][]string, styles sheetStyles) error {
	for r, row := range rows {
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(name, cell, value); err != nil {
				return fmt.Errorf("set %s!%s: %w", name, cell, err)
			}
			if r == 0 {
				continue
			}
			switch value {
			case markAvailable:
				if err := f.SetCellStyle(name, cell, cell, styles.available); err != nil {
					return fmt.Errorf("style %s!%s: %w", name, cell, err)
				}
			case markUnavailable:
				if err := f.SetCellStyle(name, cell, cell, styles.unavailable); err != nil {
					return fmt.Errorf("style %s!%s: %w", name, cell, err)
				}
			}
		}
	}

	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil
	}

	lastHeader, err := excelize.CoordinatesToCellName(len(rows[0]), 1)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellStyle(name, "A1", lastHeader, styles.header); err != nil {
		return fmt.Errorf("style header of %s: %w", name, err)
	}

	if err := f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header of %s: %w", name, err)
	}

	for c := range rows[0] {
		col, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(name, col, col, columnWidth(rows, c)); err != nil {
			return fmt.Errorf("size column %s of %s: %w", col, name, err)
		}
	}
	return nil
}

func columnWidth(rows [][]string, col int) float64 {
	longest := 0
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		if n := utf8.RuneCountInString(row[col]); n > longest {
			longest = n
		}
	}
	width := float64(longest + 2)
	if width < minColumnWidth {
		return minColumnWidth
	}
	if width > maxColumnWidth {
		return maxColumnWidth
	}
	return width
}

var _ Writer = (*ExcelWriter)(nil)
