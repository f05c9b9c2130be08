// Package domain holds the household ledger's core types.
package domain

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordType is the direction of money for a record.
type RecordType string

const (
	Income  RecordType = "income"
	Expense RecordType = "expense"
)

// Valid reports whether t is a known record type.
func (t RecordType) Valid() bool {
	return t == Income || t == Expense
}

// ParseRecordType accepts the canonical names and the Chinese labels used in spreadsheets.
func ParseRecordType(s string) (RecordType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "income", "收入":
		return Income, true
	case "expense", "支出":
		return Expense, true
	}
	return "", false
}

// Record is one income or expense entry. Amount is always a positive
// magnitude; the direction lives in Type.
type Record struct {
	ID           string     `json:"id"`
	Member       string     `json:"member"`
	Type         RecordType `json:"type"`
	Amount       float64    `json:"amount"`
	MainCategory string     `json:"mainCategory"`
	SubCategory  string     `json:"subCategory"`
	Description  string     `json:"description"`
	Date         string     `json:"date"`
}

// NewRecordID returns a unique, roughly time-ordered record id.
func NewRecordID() string {
	u := uuid.New()
	return strconv.FormatInt(time.Now().UnixMilli(), 10) + "_" + hex.EncodeToString(u[:8])
}

// Signed returns the amount with income positive and expense negative.
func (r Record) Signed() float64 {
	if r.Type == Expense {
		return -r.Amount
	}
	return r.Amount
}

// Normalize canonicalises the fields that have more than one accepted spelling.
func (r *Record) Normalize() error {
	r.Member = strings.TrimSpace(r.Member)
	r.MainCategory = strings.TrimSpace(r.MainCategory)
	r.SubCategory = strings.TrimSpace(r.SubCategory)
	r.Description = strings.TrimSpace(r.Description)
	if t, ok := ParseRecordType(string(r.Type)); ok {
		r.Type = t
	}
	date, err := NormalizeDate(r.Date)
	if err != nil {
		return err
	}
	r.Date = date
	return nil
}

// ValidationError lists every problem found with a record.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid record: " + strings.Join(parts, ", ")
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = reason
}

// Validate checks the record invariants. members restricts Member when non-empty.
func (r Record) Validate(members []string) error {
	verr := &ValidationError{}

	if r.ID == "" {
		verr.add("id", "required")
	}
	if r.Member == "" {
		verr.add("member", "required")
	} else if len(members) > 0 && !contains(members, r.Member) {
		verr.add("member", fmt.Sprintf("unknown member %q", r.Member))
	}
	if !r.Type.Valid() {
		verr.add("type", fmt.Sprintf("must be %q or %q", Income, Expense))
	}
	if math.IsNaN(r.Amount) || math.IsInf(r.Amount, 0) || r.Amount <= 0 {
		verr.add("amount", "must be greater than zero")
	}
	if r.MainCategory == "" {
		verr.add("mainCategory", "required")
	}
	if _, err := NormalizeDate(r.Date); err != nil {
		verr.add("date", err.Error())
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
