// Package sheet reads the form option lists from the expense spreadsheet and
// appends expense rows to it. Every call mints a fresh delegated token.
package sheet

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ovaphlow/pitchfork/service-expense-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-expense-go/internal/oauth"
	"github.com/ovaphlow/pitchfork/service-expense-go/pkg/utilities"
)

var (
	ErrNotConfigured = fmt.Errorf("%w: SPREADSHEET_ID is empty", apperr.ErrConfiguration)
	ErrSheetAPI      = fmt.Errorf("%w: spreadsheet api call failed", apperr.ErrUpstream)
)

const (
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	SpreadsheetID   string
	Endpoint        string
	CategoriesRange string
	AuthorsRange    string
	ExpensesRange   string
	// WriteID stores a snowflake submission id in the column after author.
	WriteID bool
	Minter  oauth.TokenMinter
	IDs     *utilities.IDGenerator
}

// Service is the sheet gateway.
type Service struct {
	spreadsheetID   string
	endpoint        string
	categoriesRange string
	authorsRange    string
	expensesRange   string
	writeID         bool
	minter          oauth.TokenMinter
	ids             *utilities.IDGenerator
}

func NewService(o ServiceOptions) *Service {
	if o.IDs == nil {
		o.IDs = utilities.NewIDGenerator(1)
	}
	return &Service{
		spreadsheetID:   strings.TrimSpace(o.SpreadsheetID),
		endpoint:        o.Endpoint,
		categoriesRange: o.CategoriesRange,
		authorsRange:    o.AuthorsRange,
		expensesRange:   o.ExpensesRange,
		writeID:         o.WriteID,
		minter:          o.Minter,
		ids:             o.IDs,
	}
}

// AppendResult describes a stored expense. ID is the value written to the
// id column and is empty when ids are disabled.
type AppendResult struct {
	ID           string `json:"id,omitempty"`
	UpdatedRange string `json:"updatedRange"`
}

// Options returns the category and author lists.
func (s *Service) Options(ctx context.Context) (*Options, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Spreadsheets.Values.BatchGet(s.spreadsheetID).
		Ranges(s.categoriesRange, s.authorsRange).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: batch get: %v", ErrSheetAPI, err)
	}
	out := &Options{Categories: []string{}, Authors: []string{}}
	if len(resp.ValueRanges) > 0 && resp.ValueRanges[0] != nil {
		out.Categories = firstColumn(resp.ValueRanges[0].Values)
	}
	if len(resp.ValueRanges) > 1 && resp.ValueRanges[1] != nil {
		out.Authors = firstColumn(resp.ValueRanges[1].Values)
	}
	return out, nil
}

// Append writes e as a new row below the existing data.
func (s *Service) Append(ctx context.Context, e Expense) (*AppendResult, error) {
	svc, err := s.client(ctx)
	if err != nil {
		return nil, err
	}
	if s.writeID {
		e.ID = s.ids.Next()
	}
	vr := &sheets.ValueRange{Values: [][]any{e.Row()}}
	resp, err := svc.Spreadsheets.Values.Append(s.spreadsheetID, s.expensesRange, vr).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("%w: append: %v", ErrSheetAPI, err)
	}
	res := &AppendResult{ID: e.ID}
	if resp.Updates != nil {
		res.UpdatedRange = resp.Updates.UpdatedRange
	}
	return res, nil
}

// client builds a Sheets client authorized with a freshly minted token.
func (s *Service) client(ctx context.Context) (*sheets.Service, error) {
	if s.spreadsheetID == "" {
		return nil, ErrNotConfigured
	}
	tok, err := s.minter.Mint(ctx)
	if err != nil {
		return nil, err
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok))),
	}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: new client: %v", ErrSheetAPI, err)
	}
	return svc, nil
}

// firstColumn flattens the first cell of each row, dropping blanks.
func firstColumn(rows [][]any) []string {
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
