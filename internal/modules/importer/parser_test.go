package importer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseWorkbook_CSV(t *testing.T) {
	data := "\xef\xbb\xbf成員,金額,主類別,子類別,描述,日期\n" +
		"Dad,-120,food,現金,lunch,2025/9/21\n" +
		",,,,,\n" +
		"Mom,\"1,000\",salary,,,2025-09-01\n"

	sheet, err := ParseWorkbook(strings.NewReader(data), "import.CSV")
	require.NoError(t, err)
	assert.Equal(t, "成員", sheet.Headers[0])
	require.Len(t, sheet.Rows, 2)
	assert.Equal(t, 1, sheet.Rows[0].Number)
	assert.Equal(t, "Dad", sheet.Rows[0].Cells["成員"])
	assert.Equal(t, 3, sheet.Rows[1].Number)
	assert.Equal(t, "1,000", sheet.Rows[1].Cells["金額"])
}

func TestParseWorkbook_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"成員", "金額", "主類別", "子類別", "描述", "日期"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Dad", -120, "food", "現金", "lunch", 45921}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	parsed, err := ParseWorkbook(&buf, "records.xlsx")
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, "-120", parsed.Rows[0].Cells["金額"])

	candidates, rowErrors, err := ValidateRows(parsed, Rules{})
	require.NoError(t, err)
	assert.Empty(t, rowErrors)
	require.Len(t, candidates, 1)
	assert.Equal(t, "2025-09-21", candidates[0].Date)
}

func TestParseWorkbook_Unsupported(t *testing.T) {
	_, err := ParseWorkbook(strings.NewReader("x"), "notes.txt")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))

	_, err = ParseWorkbook(strings.NewReader(""), "empty.csv")
	assert.Error(t, err)
}
