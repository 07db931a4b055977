package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ParseIdentifierColumn extracts the named column from a CSV stream. The
// first row is treated as the header; matching is case-insensitive. Blank
// cells are skipped, row order is preserved, duplicates are kept for the
// caller to deduplicate.
func ParseIdentifierColumn(r io.Reader, column string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrCSVEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}

	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), column) {
			col = i
			break
		}
	}
	if col == -1 {
		return nil, ErrCSVColumnNotFound
	}

	var ids []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				// tolerate ragged rows, skip the bad one
				continue
			}
			return nil, fmt.Errorf("csv: read row: %w", err)
		}
		if col >= len(record) {
			continue
		}
		id := strings.TrimSpace(record[col])
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
