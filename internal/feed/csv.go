// Package feed acquires event rows from external sources: CSV files or
// URLs plus optional ICS subscriptions, with disk-backed HTTP caching
// and a cancel-then-restart refresh loop.
package feed

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"

	appLog "eventboard/internal/log"
)

// ParseCSV decodes a CSV payload into raw string rows keyed by the
// lowercased header names. The first line is the header; unknown columns
// are carried through untouched, short data lines simply leave trailing
// fields absent. Individual malformed lines are skipped rather than
// failing the whole payload.
func ParseCSV(data []byte) ([]map[string]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("feed: empty csv payload")
		}
		return nil, err
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = normalizeHeader(h)
	}

	var rows []map[string]string
	skipped := 0
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			skipped++
			continue
		}
		if isBlankLine(fields) {
			continue
		}
		row := make(map[string]string, len(cols))
		for i, f := range fields {
			if i >= len(cols) || cols[i] == "" {
				continue
			}
			row[cols[i]] = f
		}
		rows = append(rows, row)
	}

	if skipped > 0 {
		appLog.Debug("feed: skipped malformed csv lines", "count", skipped)
	}
	return rows, nil
}

// normalizeHeader lowercases and trims a header cell, stripping stray
// surrounding quotes left behind by hand-edited files.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.Trim(h, `"'`)
	h = strings.TrimPrefix(h, "\ufeff")
	return strings.ToLower(strings.TrimSpace(h))
}

func isBlankLine(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
