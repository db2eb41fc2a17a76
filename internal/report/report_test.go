package report

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

func sampleDocument() prices.Document {
	return prices.Document{
		Title:      "Egg Price Report",
		WindowDays: 7,
		Sections: []prices.Section{
			{Group: "Nashville, TN", Status: prices.StatusOK, CurrentPrice: "2.20", AsOf: "2026-10-15 12:00:00", Change: "-0.10", WindowAverage: "2.30"},
			{Group: "Atlanta, GA", Status: prices.StatusInsufficientData, CurrentPrice: "3.46", AsOf: "2026-10-15 12:00:00"},
			{Group: "Knoxville & Co", Status: prices.StatusNoData},
		},
	}
}

func sampleDataset() prices.Dataset {
	return prices.Dataset{
		{Group: "Nashville, TN", LocationID: "1", Store: "Kroger", ItemCode: "0001111060903", Value: prices.Some(2.2), TimestampRaw: "2026-10-15 12:00:00"},
		{Group: "Knoxville & Co", LocationID: "N/A", Store: "N/A", ItemCode: "N/A", Value: prices.Absent(), TimestampRaw: "2026-10-15 12:00:00"},
	}
}

func TestWriteHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, sampleDocument()))
	page := buf.String()

	assert.Contains(t, page, "<title>Egg Price Report</title>")
	assert.Contains(t, page, "Current Price: $2.20")
	assert.Contains(t, page, "7-day change: -$0.10")
	assert.Contains(t, page, "(7-day avg: $2.30)")
	assert.Contains(t, page, `class="price-change down"`)
	assert.Contains(t, page, "Insufficient data for price trend")
	assert.Contains(t, page, "No data available")
	assert.Contains(t, page, "Knoxville &amp; Co", "group names are escaped")
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "$1.99", money("1.99"))
	assert.Equal(t, "+$0.00", money("+0.00"))
	assert.Equal(t, "-$0.25", money("-0.25"))
	assert.Equal(t, "", money(""))
}

func TestDirection(t *testing.T) {
	assert.Equal(t, "up", direction("+0.10"))
	assert.Equal(t, "down", direction("-0.01"))
	assert.Equal(t, "", direction("+0.00"))
}

func TestPublishersWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public")
	ctx := context.Background()
	doc, ds := sampleDocument(), sampleDataset()

	require.NoError(t, NewHTMLPublisher(dir).Publish(ctx, doc, ds))
	require.NoError(t, NewJSONPublisher(dir).Publish(ctx, doc, ds))
	require.NoError(t, NewXLSXPublisher(dir).Publish(ctx, doc, ds))

	html, err := os.ReadFile(filepath.Join(dir, HTMLFile))
	require.NoError(t, err)
	assert.Contains(t, string(html), "Nashville, TN")

	raw, err := os.ReadFile(filepath.Join(dir, JSONFile))
	require.NoError(t, err)
	var decoded prices.Document
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, doc, decoded)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestBuildWorkbook(t *testing.T) {
	data, err := BuildWorkbook(sampleDocument(), sampleDataset())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{reportSheet, historySheet}, f.GetSheetList())

	rows, err := f.GetRows(reportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "7-day Change", rows[0][4])
	assert.Equal(t, []string{"Nashville, TN", "ok", "2.20", "2026-10-15 12:00:00", "-0.10", "2.30"}, rows[1])

	history, err := f.GetRows(historySheet)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "2.2", history[1][4])
	assert.Equal(t, "", history[2][4], "absent value leaves the cell empty")
}
