package importer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/famledger/internal/domain"
)

// Canonical column keys.
const (
	colMember       = "member"
	colAmount       = "amount"
	colMainCategory = "mainCategory"
	colSubCategory  = "subCategory"
	colDescription  = "description"
	colDate         = "date"
	colType         = "type"
)

// headerAliases maps accepted header spellings to column keys.
var headerAliases = map[string]string{
	"成員": colMember, "成员": colMember, "member": colMember,
	"金額": colAmount, "金额": colAmount, "amount": colAmount,
	"主類別": colMainCategory, "主类别": colMainCategory, "maincategory": colMainCategory,
	"子類別": colSubCategory, "子类别": colSubCategory, "subcategory": colSubCategory,
	"描述": colDescription, "description": colDescription,
	"日期": colDate, "date": colDate,
	"類型": colType, "类型": colType, "type": colType,
}

var requiredColumns = []string{colMember, colAmount, colMainCategory, colDate}

// Excel serial numbers of 1970-01-01 and 9999-12-31.
const (
	excelUnixEpoch = 25569
	excelMaxSerial = 2958465
)

// ErrMissingHeaders is returned when required columns are absent.
var ErrMissingHeaders = errors.New("missing required columns")

// Rules constrain row validation. Empty lists accept any value.
type Rules struct {
	Members        []string
	PaymentMethods []string
}

// RowError lists why a row was rejected.
type RowError struct {
	Row     int      `json:"row"`
	Reasons []string `json:"reasons"`
}

// ValidateRows converts sheet rows into candidates. Invalid rows are
// reported, not dropped silently.
func ValidateRows(sheet *Sheet, rules Rules) ([]Candidate, []RowError, error) {
	columns := make(map[string]string) // column key -> header text
	for _, h := range sheet.Headers {
		if key, ok := headerAliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			columns[key] = h
		}
	}

	var missing []string
	for _, key := range requiredColumns {
		if _, ok := columns[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingHeaders, strings.Join(missing, ", "))
	}

	candidates := make([]Candidate, 0, len(sheet.Rows))
	rowErrors := make([]RowError, 0)
	for _, row := range sheet.Rows {
		get := func(key string) string {
			h, ok := columns[key]
			if !ok {
				return ""
			}
			return row.Cells[h]
		}

		c, reasons := validateRow(row.Number, get, rules)
		if len(reasons) > 0 {
			rowErrors = append(rowErrors, RowError{Row: row.Number, Reasons: reasons})
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, rowErrors, nil
}

func validateRow(number int, get func(string) string, rules Rules) (Candidate, []string) {
	var reasons []string
	c := Candidate{
		Row:          number,
		Member:       get(colMember),
		MainCategory: get(colMainCategory),
		SubCategory:  get(colSubCategory),
		Description:  get(colDescription),
	}

	if c.Member == "" {
		reasons = append(reasons, "member is required")
	} else if len(rules.Members) > 0 && !contains(rules.Members, c.Member) {
		reasons = append(reasons, fmt.Sprintf("unknown member %q", c.Member))
	}
	if c.MainCategory == "" {
		reasons = append(reasons, "main category is required")
	}
	if c.SubCategory != "" && len(rules.PaymentMethods) > 0 && !contains(rules.PaymentMethods, c.SubCategory) {
		reasons = append(reasons, fmt.Sprintf("sub category must be one of %s", strings.Join(rules.PaymentMethods, ", ")))
	}

	amount, err := ParseAmount(get(colAmount))
	if err != nil {
		reasons = append(reasons, err.Error())
	} else {
		c.Amount = amount.Abs().InexactFloat64()
		c.Type = domain.Income
		if amount.IsNegative() {
			c.Type = domain.Expense
		}
	}

	if raw := get(colType); raw != "" {
		t, ok := domain.ParseRecordType(raw)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("unknown type %q", raw))
		} else {
			c.Type = t
		}
	}

	date, err := ParseDateCell(get(colDate))
	if err != nil {
		reasons = append(reasons, err.Error())
	}
	c.Date = date

	return c, reasons
}

var amountCleaner = strings.NewReplacer("¥", "", "￥", "", "$", "", ",", "", "，", "", " ", "", "\u00a0", "")

// ParseAmount cleans currency symbols, thousands separators and accounting
// parentheses, and rejects zero.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, errors.New("amount is required")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountCleaner.Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	if negative {
		d = d.Abs().Neg()
	}
	if d.IsZero() {
		return decimal.Zero, fmt.Errorf("amount must not be zero")
	}
	return d, nil
}

// ParseDateCell accepts any supported date spelling or an Excel serial number.
func ParseDateCell(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.New("date is required")
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsNaN(serial) || serial <= excelUnixEpoch || serial > excelMaxSerial {
			return "", fmt.Errorf("invalid date %q", raw)
		}
		days := int64(serial) - excelUnixEpoch
		s = time.Unix(days*86400, 0).UTC().Format("2006-01-02")
	}

	date, err := domain.NormalizeDate(s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q", raw)
	}
	return date, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
