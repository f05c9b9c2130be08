package importer

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/aristath/famledger/internal/domain"
)

// Result partitions candidates. Every candidate lands in exactly one slice.
type Result struct {
	New        []Candidate `json:"new"`
	Duplicates []Candidate `json:"duplicates"`
}

// Reconcile flags a candidate as duplicate when an existing record has the
// same member, the same date and the same absolute amount. Categories and
// description are ignored, so distinct same-day purchases of equal value
// collapse into one; ReconcileStrict avoids that.
func Reconcile(candidates []Candidate, existing []domain.Record) Result {
	return partition(candidates, existing, looseKey)
}

// ReconcileStrict additionally requires equal main category, sub category
// and description.
func ReconcileStrict(candidates []Candidate, existing []domain.Record) Result {
	return partition(candidates, existing, strictKey)
}

type keyFunc func(member, date string, amount float64, main, sub, desc string) string

func partition(candidates []Candidate, existing []domain.Record, key keyFunc) Result {
	index := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		index[key(r.Member, r.Date, r.Amount, r.MainCategory, r.SubCategory, r.Description)] = struct{}{}
	}

	res := Result{
		New:        make([]Candidate, 0, len(candidates)),
		Duplicates: make([]Candidate, 0),
	}
	for _, c := range candidates {
		k := key(c.Member, c.Date, c.Amount, c.MainCategory, c.SubCategory, c.Description)
		if _, dup := index[k]; dup {
			c.Status = StatusDuplicate
			res.Duplicates = append(res.Duplicates, c)
		} else {
			c.Status = StatusNew
			res.New = append(res.New, c)
		}
	}
	return res
}

func looseKey(member, date string, amount float64, _, _, _ string) string {
	return strings.Join([]string{
		member,
		canonicalDate(date),
		strconv.FormatFloat(math.Abs(amount), 'f', -1, 64),
	}, "\x00")
}

func strictKey(member, date string, amount float64, main, sub, desc string) string {
	return strings.Join([]string{
		looseKey(member, date, amount, "", "", ""),
		main,
		sub,
		desc,
	}, "\x00")
}

func canonicalDate(s string) string {
	if d, err := domain.NormalizeDate(s); err == nil {
		return d
	}
	return strings.TrimSpace(s)
}

// Combined returns every candidate of r, newest date first.
func (r Result) Combined() []Candidate {
	all := make([]Candidate, 0, len(r.New)+len(r.Duplicates))
	all = append(all, r.New...)
	all = append(all, r.Duplicates...)
	sort.SliceStable(all, func(i, j int) bool {
		di, dj := canonicalDate(all[i].Date), canonicalDate(all[j].Date)
		if di != dj {
			return di > dj
		}
		return all[i].Row < all[j].Row
	})
	return all
}
