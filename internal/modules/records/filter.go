package records

import (
	"sort"

	"github.com/aristath/famledger/internal/domain"
)

// Filter narrows a listing. Empty fields match everything.
type Filter struct {
	Member   string
	Type     domain.RecordType
	Month    string // YYYY-MM
	Category string // matches MainCategory
}

// Match reports whether r passes the filter.
func (f Filter) Match(r domain.Record) bool {
	if f.Member != "" && r.Member != f.Member {
		return false
	}
	if f.Type != "" && r.Type != f.Type {
		return false
	}
	if f.Month != "" && domain.Month(r.Date) != f.Month {
		return false
	}
	if f.Category != "" && r.MainCategory != f.Category {
		return false
	}
	return true
}

// Apply returns the matching records, newest date first.
func (f Filter) Apply(records []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	SortByDateDesc(out)
	return out
}

// SortByDateDesc orders records newest first, ties broken by id descending.
func SortByDateDesc(records []domain.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date > records[j].Date
		}
		return records[i].ID > records[j].ID
	})
}
