package excel

import (
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"medstat/domain/dataset"
	"medstat/internal/errors"
	"medstat/ports"

	"github.com/xuri/excelize/v2"
)

// File formats accepted by the reader
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// DataReader reads CSV and Excel workbooks into tables. Excel input is read
// from the first sheet of the workbook.
type DataReader struct {
	logger *slog.Logger
}

// NewDataReader creates a reader that handles both Excel and CSV uploads
func NewDataReader(logger *slog.Logger) ports.TableReader {
	if logger == nil {
		logger = slog.Default()
	}
	return &DataReader{logger: logger}
}

// FormatOf maps a filename to a supported format, or "" when unsupported
func FormatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV
	case ".xlsx", ".xlsm":
		return FormatXLSX
	default:
		return ""
	}
}

// Read parses r according to the extension of name
func (d *DataReader) Read(ctx context.Context, name string, r io.Reader) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := FormatOf(name)
	var (
		rows [][]string
		err  error
	)
	start := time.Now()
	switch format {
	case FormatCSV:
		rows, err = readCSV(r)
	case FormatXLSX:
		rows, err = readWorkbook(r)
	default:
		return nil, errors.ValidationError("unsupported file type, use CSV or Excel (.xlsx)")
	}
	if err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "failed to parse file %q", name))
	}
	if len(rows) == 0 {
		return nil, errors.Validationf("file %q has no header row", name)
	}

	table := processRows(rows)
	d.logger.Debug("table read",
		"format", format,
		"columns", len(table.Headers),
		"rows", len(table.Rows),
		"elapsed", time.Since(start))
	return table, nil
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	return reader.ReadAll()
}

func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ValidationError("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

// processRows turns the header row plus data rows into records. Short rows
// are padded with empty cells and cells beyond the header are dropped.
func processRows(rows [][]string) *dataset.Table {
	headerRow := rows[0]
	headers := make([]string, len(headerRow))
	for i, header := range headerRow {
		headers[i] = strings.TrimSpace(header)
	}

	dataRows := make([]dataset.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		record := make(dataset.Record, len(headers))
		for j, header := range headers {
			if j < len(row) {
				record[header] = strings.TrimSpace(row[j])
			} else {
				record[header] = ""
			}
		}
		dataRows = append(dataRows, record)
	}

	return &dataset.Table{Headers: headers, Rows: dataRows}
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
