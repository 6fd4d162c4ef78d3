package listing

import (
	"strconv"
	"strings"
)

// DetailPath marks a listing detail link, e.g. /rooms/12345?check_in=...
const DetailPath = "/rooms/"

// Record is one scraped listing. Text fields are never null; a missing
// value is the empty string.
type Record struct {
	No      int    `json:"no"`
	Title   string `json:"title"`
	Price   string `json:"price"`
	Address string `json:"address"`
	Rating  string `json:"rating"`
	URL     string `json:"url"`
	ID      string `json:"id,omitempty"`
}

// ID returns the path segment following marker in href, without query
// string or fragment. Empty when href does not contain the marker.
func ID(href, marker string) string {
	if marker == "" {
		marker = DetailPath
	}
	i := strings.Index(href, marker)
	if i < 0 {
		return ""
	}
	rest := href[i+len(marker):]
	if j := strings.IndexAny(rest, "?#"); j >= 0 {
		rest = rest[:j]
	}
	rest = strings.Trim(rest, "/")
	if j := strings.IndexByte(rest, '/'); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// Placeholder is the title used when none could be extracted.
func Placeholder(n int) string {
	return "Listing " + strconv.Itoa(n)
}

// Renumber assigns offset+1, offset+2, ... in slice order.
func Renumber(records []Record, offset int) {
	for i := range records {
		records[i].No = offset + i + 1
	}
}

// Clone returns an independent copy of records.
func Clone(records []Record) []Record {
	if records == nil {
		return nil
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out
}
