package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/famledger/internal/domain"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"100", "100"},
		{"-100", "-100"},
		{"(1,234.50)", "-1234.5"},
		{"¥1,000", "1000"},
		{"￥ 88.8", "88.8"},
		{"$ -12", "-12"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}

	for _, bad := range []string{"", "0", "0.00", "abc", "(0)"} {
		_, err := ParseAmount(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseDateCell(t *testing.T) {
	got, err := ParseDateCell("45921")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-21", got)

	got, err = ParseDateCell("2025/9/21")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-21", got)

	got, err = ParseDateCell("2958465")
	require.NoError(t, err)
	assert.Equal(t, "9999-12-31", got)

	for _, bad := range []string{"", "100", "21.09.2025", "NaN", "Inf", "-Inf", "1e20", "3000000", "2958466"} {
		_, err := ParseDateCell(bad)
		assert.Error(t, err, bad)
	}
}

func chineseSheet(rows ...map[string]string) *Sheet {
	sheet := &Sheet{Headers: []string{"成員", "金額", "主類別", "子類別", "描述", "日期"}}
	for i, r := range rows {
		sheet.Rows = append(sheet.Rows, Row{Number: i + 1, Cells: r})
	}
	return sheet
}

func TestValidateRows(t *testing.T) {
	sheet := chineseSheet(
		map[string]string{"成員": "Dad", "金額": "-120", "主類別": "food", "子類別": "現金", "描述": "lunch", "日期": "2025/9/21"},
		map[string]string{"成員": "Mom", "金額": "3000", "主類別": "salary", "子類別": "信用卡", "日期": "45921"},
		map[string]string{"成員": "Kid", "金額": "0", "主類別": "", "子類別": "支票", "日期": "soon"},
	)
	rules := Rules{Members: []string{"Dad", "Mom"}, PaymentMethods: []string{"現金", "信用卡"}}

	candidates, rowErrors, err := ValidateRows(sheet, rules)
	require.NoError(t, err)
	require.Len(t, candidates, 2)

	assert.Equal(t, domain.Expense, candidates[0].Type)
	assert.Equal(t, 120.0, candidates[0].Amount)
	assert.Equal(t, "2025-09-21", candidates[0].Date)
	assert.Equal(t, "lunch", candidates[0].Description)

	assert.Equal(t, domain.Income, candidates[1].Type)
	assert.Equal(t, 3000.0, candidates[1].Amount)

	require.Len(t, rowErrors, 1)
	assert.Equal(t, 3, rowErrors[0].Row)
	assert.Len(t, rowErrors[0].Reasons, 5)
}

func TestValidateRows_TypeColumnOverridesSign(t *testing.T) {
	sheet := &Sheet{
		Headers: []string{"member", "amount", "mainCategory", "date", "type"},
		Rows: []Row{{Number: 1, Cells: map[string]string{
			"member": "Dad", "amount": "50", "mainCategory": "food", "date": "2025-01-01", "type": "expense",
		}}},
	}
	candidates, rowErrors, err := ValidateRows(sheet, Rules{})
	require.NoError(t, err)
	assert.Empty(t, rowErrors)
	require.Len(t, candidates, 1)
	assert.Equal(t, domain.Expense, candidates[0].Type)
	assert.Equal(t, 50.0, candidates[0].Amount)
}

func TestValidateRows_MissingHeaders(t *testing.T) {
	sheet := &Sheet{Headers: []string{"成員", "金額"}}
	_, _, err := ValidateRows(sheet, Rules{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingHeaders))
	assert.Contains(t, err.Error(), "mainCategory")
	assert.Contains(t, err.Error(), "date")
}
