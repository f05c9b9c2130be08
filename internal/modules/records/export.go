package records

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/aristath/famledger/internal/domain"
)

var exportHeaders = []interface{}{"成員", "類型", "金額", "主類別", "子類別", "描述", "日期"}

// ExportXLSX renders records as a workbook. Expenses are written as negative
// amounts so the file can be imported again without a type column.
func ExportXLSX(records []domain.Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Records"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(sheet, "A1", &exportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		row := []interface{}{
			r.Member,
			string(r.Type),
			r.Signed(),
			r.MainCategory,
			r.SubCategory,
			r.Description,
			domain.DisplayDate(r.Date),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
