// Package stats summarises a record set: totals, breakdowns and a daily
// expense series.
package stats

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/aristath/famledger/internal/domain"
)

// Options controls Compute.
type Options struct {
	// CashTag is the SubCategory that marks cash payments.
	CashTag string
	// Month (YYYY-MM) adds a daily expense series for that month.
	Month string
}

// Totals is a income/expense pair for one group.
type Totals struct {
	Count   int     `json:"count"`
	Income  float64 `json:"income"`
	Expense float64 `json:"expense"`
	Balance float64 `json:"balance"`
}

// Summary is the result of Compute.
type Summary struct {
	Count        int               `json:"count"`
	TotalIncome  float64           `json:"totalIncome"`
	TotalExpense float64           `json:"totalExpense"`
	Balance      float64           `json:"balance"`
	CashBalance  float64           `json:"cashBalance"`
	ByMember     map[string]Totals `json:"byMember"`
	ByCategory   map[string]Totals `json:"byCategory"`
	Months       []string          `json:"months"`
	Daily        *DailySeries      `json:"daily,omitempty"`
}

// accumulator sums in decimal so that many small amounts do not drift.
type accumulator struct {
	count   int
	income  decimal.Decimal
	expense decimal.Decimal
}

func (a *accumulator) add(r domain.Record) {
	a.count++
	amount := decimal.NewFromFloat(r.Amount)
	if r.Type == domain.Income {
		a.income = a.income.Add(amount)
	} else {
		a.expense = a.expense.Add(amount)
	}
}

func (a *accumulator) totals() Totals {
	return Totals{
		Count:   a.count,
		Income:  a.income.InexactFloat64(),
		Expense: a.expense.InexactFloat64(),
		Balance: a.income.Sub(a.expense).InexactFloat64(),
	}
}

// Compute summarises records. The caller filters them first.
func Compute(records []domain.Record, opts Options) Summary {
	var all, cash accumulator
	byMember := make(map[string]*accumulator)
	byCategory := make(map[string]*accumulator)
	months := make(map[string]bool)

	for _, r := range records {
		all.add(r)
		if opts.CashTag != "" && r.SubCategory == opts.CashTag {
			cash.add(r)
		}
		group(byMember, r.Member).add(r)
		group(byCategory, r.MainCategory).add(r)
		if m := domain.Month(r.Date); m != "" {
			months[m] = true
		}
	}

	overall := all.totals()
	summary := Summary{
		Count:        overall.Count,
		TotalIncome:  overall.Income,
		TotalExpense: overall.Expense,
		Balance:      overall.Balance,
		CashBalance:  cash.totals().Balance,
		ByMember:     flatten(byMember),
		ByCategory:   flatten(byCategory),
		Months:       sortedKeys(months),
	}

	if opts.Month != "" {
		if series, err := Daily(records, opts.Month); err == nil {
			summary.Daily = series
		}
	}
	return summary
}

func group(m map[string]*accumulator, key string) *accumulator {
	acc, ok := m[key]
	if !ok {
		acc = &accumulator{}
		m[key] = acc
	}
	return acc
}

func flatten(m map[string]*accumulator) map[string]Totals {
	out := make(map[string]Totals, len(m))
	for k, acc := range m {
		out[k] = acc.totals()
	}
	return out
}

// sortedKeys returns months newest first.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys
}
