package mailinglist

import (
	"encoding/csv"
	"fmt"
	"io"
)

// UTF8BOM makes spreadsheet applications read the file as UTF-8, which
// Japanese column names and addresses need.
const UTF8BOM = "\ufeff"

// Header returns the union of entry keys in first-seen order.
func Header(entries []*Entry) []string {
	seen := map[string]struct{}{}
	var header []string
	for _, e := range entries {
		for _, k := range e.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			header = append(header, k)
		}
	}
	return header
}

// WriteCSV writes a header row and one row per entry. Missing columns are
// written as empty cells.
func WriteCSV(w io.Writer, entries []*Entry) error {
	header := Header(entries)
	cw := csv.NewWriter(w)

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("mailinglist: write header: %w", err)
	}
	record := make([]string, len(header))
	for i, e := range entries {
		for j, k := range header {
			record[j] = e.Get(k)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("mailinglist: write row %d: %w", i+1, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteResult writes r as CSV. A result without rows still gets a header
// of its projected columns.
func WriteResult(w io.Writer, r *Result) error {
	if len(r.Entries) > 0 {
		return WriteCSV(w, r.Entries)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns); err != nil {
		return fmt.Errorf("mailinglist: write header: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
