package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/famledger/internal/domain"
	testutil "github.com/aristath/famledger/internal/testing"
)

func TestCompute(t *testing.T) {
	s := Compute(testutil.NewRecordFixtures(), Options{CashTag: "現金"})

	assert.Equal(t, 4, s.Count)
	assert.Equal(t, 3000.0, s.TotalIncome)
	assert.Equal(t, 157.5, s.TotalExpense)
	assert.Equal(t, 2842.5, s.Balance)
	assert.Equal(t, -112.0, s.CashBalance)

	assert.Equal(t, Totals{Count: 2, Expense: 145.5, Balance: -145.5}, s.ByMember["Dad"])
	assert.Equal(t, Totals{Count: 2, Income: 3000, Expense: 12, Balance: 2988}, s.ByMember["Mom"])
	assert.Equal(t, 112.0, s.ByCategory["food"].Expense)
	assert.Equal(t, []string{"2025-09", "2025-08"}, s.Months)
	assert.Nil(t, s.Daily)
}

func TestCompute_DecimalSums(t *testing.T) {
	records := make([]domain.Record, 0, 10)
	for i := 0; i < 10; i++ {
		records = append(records, domain.Record{Member: "Dad", Type: domain.Expense, Amount: 0.1, MainCategory: "x", Date: "2025-01-01"})
	}

	s := Compute(records, Options{})
	assert.Equal(t, 1.0, s.TotalExpense)
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, Options{Month: "2025-02"})
	assert.Equal(t, 0, s.Count)
	assert.Empty(t, s.ByMember)
	require.NotNil(t, s.Daily)
	assert.Len(t, s.Daily.Days, 28)
	assert.Equal(t, 0.0, s.Daily.Mean)
}

func TestDaily(t *testing.T) {
	var records []domain.Record
	for day := 1; day <= 7; day++ {
		records = append(records, domain.Record{
			Member: "Mom", Type: domain.Expense, Amount: float64(day * 10), MainCategory: "food",
			Date: "2025-09-0" + string(rune('0'+day)),
		})
	}
	records = append(records,
		domain.Record{Member: "Mom", Type: domain.Income, Amount: 999, MainCategory: "salary", Date: "2025-09-03"},
		domain.Record{Member: "Mom", Type: domain.Expense, Amount: 5, MainCategory: "food", Date: "2025-10-01"},
	)

	series, err := Daily(records, "2025-09")
	require.NoError(t, err)
	require.Len(t, series.Days, 30)

	assert.Equal(t, "2025-09-01", series.Days[0].Date)
	assert.Equal(t, 30.0, series.Days[2].Expense, "income is excluded")
	assert.Nil(t, series.Days[5].SMA)
	require.NotNil(t, series.Days[6].SMA)
	assert.InDelta(t, 40.0, *series.Days[6].SMA, 1e-9)
	require.NotNil(t, series.Days[13].SMA)
	assert.InDelta(t, 0.0, *series.Days[13].SMA, 1e-9)

	assert.InDelta(t, 280.0/30.0, series.Mean, 1e-9)
	assert.Greater(t, series.StdDev, 0.0)
}

func TestDaily_InvalidMonth(t *testing.T) {
	_, err := Daily(nil, "September")
	assert.Error(t, err)
}
