package domain

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2025-09-21", "2025-09-21"},
		{"2025/9/21", "2025-09-21"},
		{"2025-9-1", "2025-09-01"},
		{"2025/09/01", "2025-09-01"},
		{" 2025/1/5 ", "2025-01-05"},
		{"2025-09-21T00:00:00.000Z", "2025-09-21"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeDate(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := NormalizeDate(got)
			require.NoError(t, err)
			assert.Equal(t, got, again, "idempotent")
		})
	}
}

func TestNormalizeDate_Equivalence(t *testing.T) {
	a, err := NormalizeDate("2025-09-21")
	require.NoError(t, err)
	b, err := NormalizeDate("2025/9/21")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeDate_Rejects(t *testing.T) {
	for _, in := range []string{"", "21/09/2025", "2025-02-30", "2025-13-01", "yesterday"} {
		_, err := NormalizeDate(in)
		assert.Error(t, err, in)
	}
}

func TestDisplayDate(t *testing.T) {
	assert.Equal(t, "2025/9/1", DisplayDate("2025-09-01"))
	assert.Equal(t, "garbage", DisplayDate("garbage"))
	assert.Equal(t, "2025-09", Month("2025-09-01"))
}

func TestNewRecordID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRecordID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
		assert.Contains(t, id, "_")
	}
}

func TestRecordValidate(t *testing.T) {
	valid := Record{ID: "1", Member: "Dad", Type: Expense, Amount: 10, MainCategory: "food", Date: "2025-09-21"}
	assert.NoError(t, valid.Validate(nil))
	assert.NoError(t, valid.Validate([]string{"Dad", "Mom"}))

	err := valid.Validate([]string{"Mom"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "member")

	bad := Record{Type: "gift", Amount: math.NaN(), Date: "2025-02-30"}
	err = bad.Validate(nil)
	require.True(t, errors.As(err, &verr))
	for _, f := range []string{"id", "member", "type", "amount", "mainCategory", "date"} {
		assert.Contains(t, verr.Fields, f)
	}
	assert.True(t, strings.HasPrefix(err.Error(), "invalid record: amount"))

	zero := valid
	zero.Amount = 0
	assert.Error(t, zero.Validate(nil))
}

func TestRecordNormalize(t *testing.T) {
	r := Record{Member: " Dad ", Type: "支出", Date: "2025/9/21", MainCategory: " food "}
	require.NoError(t, r.Normalize())
	assert.Equal(t, "Dad", r.Member)
	assert.Equal(t, Expense, r.Type)
	assert.Equal(t, "2025-09-21", r.Date)
	assert.Equal(t, "food", r.MainCategory)
	assert.Equal(t, -5.0, Record{Type: Expense, Amount: 5}.Signed())
}
