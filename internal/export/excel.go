package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"consultbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Консультации"

var columns = []struct {
	title string
	width float64
}{
	{"Дата", 12},
	{"Начало", 9},
	{"Конец", 9},
	{"Минут", 8},
	{"Имя", 25},
	{"Email", 30},
	{"Компания", 25},
	{"Сообщение", 50},
	{"Номер заявки", 38},
	{"Создана", 18},
}

// ExcelExporter выгружает заявки за период в xlsx.
type ExcelExporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExcelExporter(dir string, logger *zerolog.Logger) *ExcelExporter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &ExcelExporter{dir: dir, logger: logger}
}

// Export writes the workbook into the export directory and returns its path.
func (e *ExcelExporter) Export(consultations []*models.Consultation, from, to time.Time) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := Build(consultations, from, to)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(from, to))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(consultations)).Msg("Excel file created")
	return filePath, nil
}

// WriteTo streams the workbook, e.g. into an HTTP response.
func (e *ExcelExporter) WriteTo(w io.Writer, consultations []*models.Consultation, from, to time.Time) error {
	f, err := Build(consultations, from, to)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// FileName returns export_<from>_to_<to>.xlsx.
func FileName(from, to time.Time) string {
	return fmt.Sprintf("export_%s_to_%s.xlsx", from.Format(models.DateLayout), to.Format(models.DateLayout))
}

// Build fills a workbook: period title in row 1, headers in row 2, one row per consultation.
func Build(consultations []*models.Consultation, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(columns))

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Период: %s - %s",
		from.Format("02.01.2006"), to.Format("02.01.2006")))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, col := range columns {
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetCellValue(sheetName, name+"2", col.title)
		_ = f.SetColWidth(sheetName, name, name, col.width)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	wrapStyle, _ := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{WrapText: true, Vertical: "top"},
	})

	for i, c := range consultations {
		row := i + 3
		values := []interface{}{
			c.Date.Format("02.01.2006"),
			c.StartTime,
			c.EndTime,
			c.Duration,
			c.Name,
			c.Email,
			c.Company,
			c.Message,
			c.Reference,
			c.CreatedAt.Format("02.01.2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, row)
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("error writing row %d: %w", row, err)
		}
		msgCell, _ := excelize.CoordinatesToCellName(8, row)
		_ = f.SetCellStyle(sheetName, msgCell, msgCell, wrapStyle)
	}

	if len(consultations) > 0 {
		_ = f.SetPanes(sheetName, &excelize.Panes{
			Freeze:      true,
			YSplit:      2,
			TopLeftCell: "A3",
			ActivePane:  "bottomLeft",
		})
	}

	return f, nil
}
