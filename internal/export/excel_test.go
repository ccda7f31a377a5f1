package export

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"consultbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func sample() []*models.Consultation {
	created := time.Date(2026, time.October, 19, 9, 15, 0, 0, time.UTC)
	return []*models.Consultation{
		{
			Reference: "ref-1",
			Date:      time.Date(2026, time.October, 20, 0, 0, 0, 0, time.UTC),
			StartTime: "10:00",
			EndTime:   "10:30",
			Duration:  30,
			Name:      "Ann",
			Email:     "ann@example.com",
			Message:   "Intro call",
			CreatedAt: created,
		},
		{
			Reference: "ref-2",
			Date:      time.Date(2026, time.October, 21, 0, 0, 0, 0, time.UTC),
			StartTime: "14:00",
			EndTime:   "16:00",
			Duration:  120,
			Name:      "Bob",
			Email:     "bob@example.com",
			Company:   "Acme",
			Message:   "Audit",
			CreatedAt: created,
		},
	}
}

var (
	from = time.Date(2026, time.October, 19, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2026, time.October, 25, 0, 0, 0, 0, time.UTC)
)

func TestBuild(t *testing.T) {
	f, err := Build(sample(), from, to)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Equal(t, "Период: 19.10.2026 - 25.10.2026", title)

	header, _ := f.GetCellValue(sheetName, "F2")
	assert.Equal(t, "Email", header)

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"21.10.2026", "14:00", "16:00", "120", "Bob", "bob@example.com", "Acme", "Audit", "ref-2", "19.10.2026 09:15"}, rows[3])
}

func TestBuild_Empty(t *testing.T) {
	f, err := Build(nil, from, to)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := NewExcelExporter(dir, nil)

	path, err := e.Export(sample(), from, to)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "export_2026-10-19_to_2026-10-25.xlsx"), path)
	assert.FileExists(t, path)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	name, _ := f.GetCellValue(sheetName, "E3")
	assert.Equal(t, "Ann", name)
}

func TestWriteTo(t *testing.T) {
	e := NewExcelExporter(t.TempDir(), nil)

	var buf bytes.Buffer
	require.NoError(t, e.WriteTo(&buf, sample(), from, to))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	ref, _ := f.GetCellValue(sheetName, "I4")
	assert.Equal(t, "ref-2", ref)
}
