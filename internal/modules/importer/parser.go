package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv.
var ErrUnsupportedFormat = errors.New("unsupported spreadsheet format")

// Row is one data row keyed by the header text of its column.
type Row struct {
	Number int               // 1-based, header excluded
	Cells  map[string]string // header -> raw cell text
}

// Sheet is a parsed spreadsheet.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// ParseWorkbook reads the first sheet of an xlsx file or a csv file. The
// first row is the header. Completely empty rows are dropped.
func ParseWorkbook(r io.Reader, filename string) (*Sheet, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return parseXLSX(r)
	case ".csv":
		return parseCSV(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}

func parseXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	// Raw values keep date cells as serial numbers instead of locale-formatted text
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return buildSheet(rows)
}

func parseCSV(r io.Reader) (*Sheet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return buildSheet(rows)
}

func buildSheet(rows [][]string) (*Sheet, error) {
	if len(rows) == 0 {
		return nil, errors.New("spreadsheet is empty")
	}

	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	sheet := &Sheet{Headers: headers}
	for i, raw := range rows[1:] {
		cells := make(map[string]string, len(headers))
		empty := true
		for col, h := range headers {
			if h == "" || col >= len(raw) {
				continue
			}
			v := strings.TrimSpace(raw[col])
			if v != "" {
				empty = false
			}
			cells[h] = v
		}
		if empty {
			continue
		}
		sheet.Rows = append(sheet.Rows, Row{Number: i + 1, Cells: cells})
	}
	return sheet, nil
}
