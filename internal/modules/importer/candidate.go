// Package importer turns spreadsheet rows into record candidates and
// classifies them against the existing record set.
package importer

import (
	"github.com/aristath/famledger/internal/domain"
)

// Candidate statuses after reconciliation.
const (
	StatusNew       = "new"
	StatusDuplicate = "duplicate"
)

// Candidate is a validated spreadsheet row that has no record id yet.
type Candidate struct {
	Row          int               `json:"row"` // 1-based data row
	Member       string            `json:"member"`
	Type         domain.RecordType `json:"type"`
	Amount       float64           `json:"amount"`
	MainCategory string            `json:"mainCategory"`
	SubCategory  string            `json:"subCategory"`
	Description  string            `json:"description"`
	Date         string            `json:"date"`
	Status       string            `json:"status,omitempty"`
}

// Record converts the candidate into a record without an id.
func (c Candidate) Record() domain.Record {
	return domain.Record{
		Member:       c.Member,
		Type:         c.Type,
		Amount:       c.Amount,
		MainCategory: c.MainCategory,
		SubCategory:  c.SubCategory,
		Description:  c.Description,
		Date:         c.Date,
	}
}
