// Package export renders crawled listings as an xlsx workbook.
package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"stayscraper/internal/core/listing"
)

const (
	SheetName   = "Listings"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	minWidth = 10
	maxWidth = 50
)

var Headers = []string{"No", "Title", "Price", "Address", "Rating/Reviews", "URL"}

// Filename is the download name for a workbook built at t.
func Filename(t time.Time) string {
	return "listings_" + t.Format("20060102_150405") + ".xlsx"
}

// Workbook lays the records out one per row under a styled, frozen
// header. An empty slice still yields the header row.
func Workbook(records []listing.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := fill(f, records); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// Bytes renders the workbook in memory.
func Bytes(records []listing.Record) ([]byte, error) {
	f, err := Workbook(records)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func fill(f *excelize.File, records []listing.Record) error {
	rows := make([][]interface{}, 0, len(records)+1)
	header := make([]interface{}, len(Headers))
	for i, h := range Headers {
		header[i] = h
	}
	rows = append(rows, header)
	for _, r := range records {
		rows = append(rows, []interface{}{r.No, r.Title, r.Price, r.Address, r.Rating, r.URL})
	}

	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetName, cell, &rows[i]); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	headerStyle, bodyStyle, err := styles(f)
	if err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(Headers))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", last+"1", headerStyle); err != nil {
		return err
	}
	if len(records) > 0 {
		if err := f.SetCellStyle(SheetName, "A2", last+strconv.Itoa(len(rows)), bodyStyle); err != nil {
			return err
		}
	}

	for col := range Headers {
		name, _ := excelize.ColumnNumberToName(col + 1)
		widest := 0
		for _, row := range rows {
			widest = max(widest, displayWidth(fmt.Sprint(row[col])))
		}
		if err := f.SetColWidth(SheetName, name, name, float64(ColumnWidth(widest))); err != nil {
			return err
		}
	}

	return f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func styles(f *excelize.File) (header, body int, err error) {
	borders := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	header, err = f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    borders,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("header style: %w", err)
	}
	body, err = f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Vertical: "center", WrapText: true},
		Border:    borders,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("body style: %w", err)
	}
	return header, body, nil
}

// ColumnWidth clamps the widest cell plus padding into [10, 50].
func ColumnWidth(widest int) int {
	return min(max(widest+2, minWidth), maxWidth)
}

// displayWidth counts non-ASCII runes twice; Hangul and currency signs
// render about two columns wide.
func displayWidth(s string) int {
	n := 0
	for _, r := range s {
		if r > 127 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
