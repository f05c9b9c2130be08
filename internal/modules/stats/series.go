package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/famledger/internal/domain"
)

// MovingAveragePeriod is the window of the daily expense moving average.
const MovingAveragePeriod = 7

// DailyPoint is one calendar day of a month.
type DailyPoint struct {
	Date    string   `json:"date"`
	Expense float64  `json:"expense"`
	SMA     *float64 `json:"sma,omitempty"` // nil until a full window is available
}

// DailySeries is the per-day expense of one month.
type DailySeries struct {
	Month  string       `json:"month"`
	Days   []DailyPoint `json:"days"`
	Mean   float64      `json:"mean"`
	StdDev float64      `json:"stdDev"`
}

// Daily builds the expense series for month (YYYY-MM). Days without
// expenses are zero.
func Daily(records []domain.Record, month string) (*DailySeries, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, fmt.Errorf("invalid month %q: %w", month, err)
	}
	days := start.AddDate(0, 1, 0).Sub(start).Hours() / 24

	sums := make([]decimal.Decimal, int(days))
	for _, r := range records {
		if r.Type != domain.Expense || domain.Month(r.Date) != month {
			continue
		}
		t, err := domain.ParseDate(r.Date)
		if err != nil {
			continue
		}
		sums[t.Day()-1] = sums[t.Day()-1].Add(decimal.NewFromFloat(r.Amount))
	}

	values := make([]float64, len(sums))
	for i, s := range sums {
		values[i] = s.InexactFloat64()
	}

	sma := movingAverage(values, MovingAveragePeriod)
	series := &DailySeries{
		Month: month,
		Days:  make([]DailyPoint, len(values)),
	}
	series.Mean, series.StdDev = meanStdDev(values)

	for i, v := range values {
		point := DailyPoint{
			Date:    start.AddDate(0, 0, i).Format("2006-01-02"),
			Expense: v,
		}
		if i >= MovingAveragePeriod-1 && !math.IsNaN(sma[i]) {
			avg := sma[i]
			point.SMA = &avg
		}
		series.Days[i] = point
	}
	return series, nil
}

// movingAverage returns the simple moving average aligned with values. The
// first period-1 entries carry no meaning.
func movingAverage(values []float64, period int) []float64 {
	if len(values) < period {
		return make([]float64, len(values))
	}
	return talib.Sma(values, period)
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	if len(values) == 1 {
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}
