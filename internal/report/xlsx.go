package report

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

const (
	// XLSXFile is the name the workbook is published under.
	XLSXFile     = "report.xlsx"
	reportSheet  = "Report"
	historySheet = "History"
)

// XLSXPublisher writes a workbook with the rendered report on one sheet and
// the full observation history on another.
type XLSXPublisher struct {
	dir string
}

func NewXLSXPublisher(dir string) *XLSXPublisher {
	return &XLSXPublisher{dir: dir}
}

func (p *XLSXPublisher) Publish(_ context.Context, doc prices.Document, ds prices.Dataset) error {
	data, err := BuildWorkbook(doc, ds)
	if err != nil {
		return fmt.Errorf("xlsx report: %w", err)
	}
	path := filepath.Join(p.dir, XLSXFile)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("xlsx report: %w", err)
	}
	log.Debug().Str("path", path).Int("rows", len(ds)).Msg("xlsx report published")
	return nil
}

// BuildWorkbook returns the encoded workbook.
func BuildWorkbook(doc prices.Document, ds prices.Dataset) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), reportSheet); err != nil {
		return nil, err
	}
	if err := setRow(f, reportSheet, 1, []interface{}{
		"Group", "Status", "Current Price", "As Of",
		fmt.Sprintf("%d-day Change", doc.WindowDays),
		fmt.Sprintf("%d-day Average", doc.WindowDays),
	}); err != nil {
		return nil, err
	}
	for i, s := range doc.Sections {
		row := []interface{}{s.Group, string(s.Status), s.CurrentPrice, s.AsOf, s.Change, s.WindowAverage}
		if err := setRow(f, reportSheet, i+2, row); err != nil {
			return nil, err
		}
	}

	if _, err := f.NewSheet(historySheet); err != nil {
		return nil, err
	}
	header := []interface{}{"Group", "Location ID", "Store", "Item Code", "Value", "Timestamp"}
	if err := setRow(f, historySheet, 1, header); err != nil {
		return nil, err
	}
	for i, o := range ds {
		var value interface{}
		if v, ok := o.Value.Get(); ok {
			value = v
		}
		row := []interface{}{o.Group, o.LocationID, o.Store, o.ItemCode, value, o.TimestampRaw}
		if err := setRow(f, historySheet, i+2, row); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
