package sheet

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
)

// SheetDateLayout is how dates are written into the spreadsheet (dd.MM.yyyy).
const SheetDateLayout = "02.01.2006"

const (
	maxCommentLen = 500
	minAmount     = 0.01
)

// ExpenseInput is the JSON body of POST /api/expenses.
type ExpenseInput struct {
	Date     string     `json:"date"`
	Category string     `json:"category"`
	Amount   FlexString `json:"amount"`
	Comment  string     `json:"comment"`
	Author   string     `json:"author"`
}

// FlexString accepts either a JSON string or a bare JSON number.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = FlexString(b)
	return nil
}

// Expense is a validated row ready to append. ID is set by the gateway.
type Expense struct {
	ID       string
	Date     time.Time
	Category string
	Amount   float64
	Comment  string
	Author   string
}

// Row returns the cells in sheet column order: date, category, amount,
// comment, author, and the submission id when one is assigned.
func (e Expense) Row() []any {
	row := []any{
		e.Date.Format(SheetDateLayout),
		e.Category,
		strconv.FormatFloat(e.Amount, 'f', -1, 64),
		e.Comment,
		e.Author,
	}
	if e.ID != "" {
		row = append(row, e.ID)
	}
	return row
}

// Options are the choice lists for the expense form.
type Options struct {
	Categories []string `json:"categories"`
	Authors    []string `json:"authors"`
}

// ValidationError lists every field that failed.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range []string{"date", "category", "amount", "comment", "author"} {
		if msg, ok := e.Fields[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	return "invalid expense: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

// Validate checks in against the form rules. today is the caller's current
// date; dates after it are rejected.
func (in ExpenseInput) Validate(today time.Time) (Expense, error) {
	fields := map[string]string{}
	var out Expense

	if d, err := parseDate(in.Date, today.Location()); err != nil {
		fields["date"] = err.Error()
	} else if d.After(truncateDay(today)) {
		fields["date"] = "date cannot be in the future"
	} else {
		out.Date = d
	}

	out.Category = strings.TrimSpace(in.Category)
	if out.Category == "" {
		fields["category"] = "category is required"
	}

	if amt, err := parseAmount(string(in.Amount)); err != nil {
		fields["amount"] = err.Error()
	} else {
		out.Amount = amt
	}

	out.Comment = strings.TrimSpace(in.Comment)
	if utf8.RuneCountInString(out.Comment) > maxCommentLen {
		fields["comment"] = fmt.Sprintf("comment must be at most %d characters", maxCommentLen)
	}

	out.Author = strings.TrimSpace(in.Author)
	if out.Author == "" {
		fields["author"] = "author is required"
	}

	if len(fields) > 0 {
		return Expense{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

func parseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is required")
	}
	for _, layout := range []string{"2006-01-02", SheetDateLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return truncateDay(t.In(loc)), nil
		}
	}
	return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD or DD.MM.YYYY")
}

func parseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" {
		return 0, fmt.Errorf("amount is required")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("amount must be a number")
	}
	if v < minAmount {
		return 0, fmt.Errorf("amount must be at least %.2f", minAmount)
	}
	return v, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
