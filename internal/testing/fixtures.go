package testing

import (
	"github.com/aristath/famledger/internal/domain"
)

// NewRecordFixtures returns a small, valid record set covering both types,
// two members and two months.
func NewRecordFixtures() []domain.Record {
	return []domain.Record{
		{ID: "1726900000000_a1", Member: "Dad", Type: domain.Expense, Amount: 100, MainCategory: "food", SubCategory: "現金", Description: "groceries", Date: "2025-09-21"},
		{ID: "1726900000000_a2", Member: "Mom", Type: domain.Income, Amount: 3000, MainCategory: "salary", SubCategory: "", Description: "", Date: "2025-09-01"},
		{ID: "1726900000000_a3", Member: "Dad", Type: domain.Expense, Amount: 45.5, MainCategory: "transport", SubCategory: "信用卡", Description: "train", Date: "2025-09-22"},
		{ID: "1726900000000_a4", Member: "Mom", Type: domain.Expense, Amount: 12, MainCategory: "food", SubCategory: "現金", Description: "coffee", Date: "2025-08-30"},
	}
}
