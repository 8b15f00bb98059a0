// Package export renders ledger reports as CSV or XLSX spreadsheets.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

// Format is an output file format.
type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("unknown export format %q", s)
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Table is one sheet of a report. Cells are strings, money.Money or int64.
type Table struct {
	Name   string
	Header []string
	Widths []float64
	Rows   [][]any
}

// Names resolves member IDs to display names. Unknown IDs print as themselves.
type Names map[string]string

// NamesOf indexes members by ID.
func NamesOf(members []models.Member) Names {
	n := make(Names, len(members))
	for _, m := range members {
		n[m.ID] = m.Name
	}
	return n
}

func (n Names) of(id string) string {
	if name := n[id]; name != "" {
		return name
	}
	return id
}

const dateLayout = "2006-01-02"

// Expenses lays out expenses one per row, in the order given.
func Expenses(expenses []models.Expense, names Names) Table {
	t := Table{
		Name:   "Expenses",
		Header: []string{"ID", "Date", "Description", "Amount", "Currency", "Category", "Paid By", "Split", "State", "Created By", "Created At"},
		Widths: []float64{38, 12, 30, 12, 10, 16, 16, 12, 10, 16, 18},
	}
	for i := range expenses {
		e := &expenses[i]
		occurred := e.OccurredAt
		if occurred == 0 {
			occurred = e.CreatedAt
		}
		category := e.Category
		if category == "" {
			category = "Uncategorized"
		}
		t.Rows = append(t.Rows, []any{
			e.ID,
			time.Unix(occurred, 0).UTC().Format(dateLayout),
			e.Description,
			e.Total,
			e.Total.Currency,
			category,
			names.of(e.PayerID),
			string(e.Policy),
			string(e.State),
			names.of(e.CreatedBy),
			time.Unix(e.CreatedAt, 0).UTC().Format("2006-01-02 15:04"),
		})
	}
	return t
}

// Settlements lays out suggested transfers one per row.
func Settlements(transfers []calculator.Transfer, names Names) Table {
	t := Table{
		Name:   "Settlements",
		Header: []string{"From", "To", "Amount", "Currency"},
		Widths: []float64{20, 20, 14, 10},
	}
	for _, tr := range transfers {
		t.Rows = append(t.Rows, []any{names.of(tr.From), names.of(tr.To), tr.Amount, tr.Amount.Currency})
	}
	return t
}

// Write renders t to w in the given format.
func Write(w io.Writer, format Format, t Table) error {
	switch format {
	case CSV:
		return writeCSV(w, t)
	case XLSX:
		return writeXLSX(w, t)
	}
	return fmt.Errorf("unknown export format %q", format)
}

func writeCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = text(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, t Table) error {
	f := excelize.NewFile()
	defer f.Close()

	// A new workbook starts with "Sheet1"; rename it rather than add a second sheet.
	sheet := t.Name
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	for i, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
	}
	for r, row := range t.Rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value(v)); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}
	for i, width := range t.Widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// text formats a cell for CSV. Amounts keep their currency's minor digits.
func text(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case money.Money:
		exp, err := money.Exponent(c.Currency)
		if err != nil {
			return fmt.Sprint(c.Amount)
		}
		return c.Decimal().StringFixed(exp)
	}
	return fmt.Sprint(v)
}

// value converts a cell for the workbook, where amounts are numbers.
func value(v any) any {
	if m, ok := v.(money.Money); ok {
		return m.Decimal().InexactFloat64()
	}
	return v
}
