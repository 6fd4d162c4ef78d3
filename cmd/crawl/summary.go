package main

import (
	"strconv"

	"github.com/pterm/pterm"

	"stayscraper/internal/core/export"
	"stayscraper/internal/core/listing"
)

const cellWidth = 40

// summary renders the first n records as table rows under the export
// headers. The URL column is left out.
func summary(records []listing.Record, n int) pterm.TableData {
	head := export.Headers[:len(export.Headers)-1]
	data := pterm.TableData{append([]string(nil), head...)}
	for i, r := range records {
		if i == n {
			break
		}
		data = append(data, []string{
			strconv.Itoa(r.No),
			clip(r.Title, cellWidth),
			clip(r.Price, cellWidth),
			clip(r.Address, cellWidth),
			clip(r.Rating, cellWidth),
		})
	}
	return data
}

func clip(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n-1]) + "…"
}
