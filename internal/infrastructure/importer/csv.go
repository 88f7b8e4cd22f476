package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"ModelRetrainer/internal/domain"
)

// CSV reads a comma separated export with a header row.
type CSV struct{}

// Name identifies the format inside the registry.
func (CSV) Name() string {
	return "csv"
}

// Import parses every data row into a record.
func (CSV) Import(ctx context.Context, r io.Reader, opts Options) ([]domain.Record, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("csv: missing header row")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row: %w", err)
		}
		rows = append(rows, row)
	}

	return buildRecords(header, rows, opts)
}
