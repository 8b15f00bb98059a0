package export

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/mmynk/splitledger/internal/calculator"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

func sampleExpenses() []models.Expense {
	at := time.Date(2026, 2, 14, 19, 30, 0, 0, time.UTC).Unix()
	return []models.Expense{
		{
			ID:          "e2",
			PayerID:     "b",
			Total:       money.New(12345, "USD"),
			Description: "Dinner, with dessert",
			Policy:      models.SplitEqual,
			State:       models.StateApproved,
			CreatedBy:   "b",
			CreatedAt:   at,
			OccurredAt:  at,
		},
		{
			ID:          "e1",
			PayerID:     "zed",
			Total:       money.New(500, "USD"),
			Description: "Coffee",
			Category:    "food",
			Policy:      models.SplitExact,
			State:       models.StatePending,
			CreatedBy:   "a",
			CreatedAt:   at - 86400,
		},
	}
}

var names = NamesOf([]models.Member{{ID: "a", Name: "Alice"}, {ID: "b", Name: "Bea"}})

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, XLSX, f)
	assert.Contains(t, f.ContentType(), "spreadsheetml")
	assert.Contains(t, CSV.ContentType(), "text/csv")

	_, err = ParseFormat("pdf")
	assert.Error(t, err)
}

func TestExpensesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, Expenses(sampleExpenses(), names)))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Paid By", records[0][6])
	assert.Equal(t, []string{
		"e2", "2026-02-14", "Dinner, with dessert", "123.45", "USD", "Uncategorized",
		"Bea", "equal", "approved", "Bea", "2026-02-14 19:30",
	}, records[1])
	// Without an occurrence date the creation date is used; unknown members keep their id.
	assert.Equal(t, "2026-02-13", records[2][1])
	assert.Equal(t, "5.00", records[2][3])
	assert.Equal(t, "zed", records[2][6])
	assert.Equal(t, "Alice", records[2][9])
}

func TestSettlementsXLSX(t *testing.T) {
	transfers := []calculator.Transfer{
		{From: "b", To: "a", Amount: money.New(2550, "USD")},
		{From: "c", To: "a", Amount: money.New(100, "USD")},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, Settlements(transfers, names)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Settlements"}, f.GetSheetList())
	rows, err := f.GetRows("Settlements")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"From", "To", "Amount", "Currency"}, rows[0])
	assert.Equal(t, []string{"Bea", "Alice"}, rows[1][:2])
	assert.Equal(t, "USD", rows[1][3])
	amount, err := strconv.ParseFloat(rows[1][2], 64)
	require.NoError(t, err)
	assert.InDelta(t, 25.50, amount, 1e-9)
	assert.Equal(t, "c", rows[2][0])
}

func TestExpensesXLSXEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, Expenses(nil, nil)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Expenses")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ID", rows[0][0])
}

func TestWriteUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Write(&buf, Format("pdf"), Settlements(nil, nil)))
}
