package reliability

import (
	"fmt"

	"github.com/aristath/famledger/internal/domain"
)

// IntegrityReport is the outcome of CheckIntegrity.
type IntegrityReport struct {
	Valid       bool     `json:"valid"`
	Issues      []string `json:"issues"`
	RecordCount int      `json:"recordCount"`
	UniqueIDs   int      `json:"uniqueIds"`
}

// CheckIntegrity looks for records that cannot be restored: missing
// identity fields, duplicate ids and non-positive amounts.
func CheckIntegrity(recs []domain.Record) IntegrityReport {
	issues := make([]string, 0)
	ids := make(map[string]bool, len(recs))

	for i, r := range recs {
		n := i + 1
		switch {
		case r.ID == "":
			issues = append(issues, fmt.Sprintf("record %d: missing id", n))
		case ids[r.ID]:
			issues = append(issues, fmt.Sprintf("record %d: duplicate id %s", n, r.ID))
		default:
			ids[r.ID] = true
		}
		if r.Member == "" {
			issues = append(issues, fmt.Sprintf("record %d: missing member", n))
		}
		if r.Date == "" {
			issues = append(issues, fmt.Sprintf("record %d: missing date", n))
		}
		if r.Amount <= 0 {
			issues = append(issues, fmt.Sprintf("record %d: amount must be positive", n))
		}
		if !r.Type.Valid() {
			issues = append(issues, fmt.Sprintf("record %d: missing or unknown type", n))
		}
	}

	return IntegrityReport{
		Valid:       len(issues) == 0,
		Issues:      issues,
		RecordCount: len(recs),
		UniqueIDs:   len(ids),
	}
}
