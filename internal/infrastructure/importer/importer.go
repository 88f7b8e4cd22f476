// Package importer reads labeled records from tabular exports (CSV files,
// HTML tables) for bulk ingestion and model seeding.
package importer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"ModelRetrainer/internal/domain"
)

// DefaultLabelColumn is the target column of the study-hours dataset.
const DefaultLabelColumn = "score"

// Options select which columns become features and which one is the label.
type Options struct {
	// LabelColumn defaults to DefaultLabelColumn, or the last column when
	// no header matches it.
	LabelColumn string
	// FeatureColumns defaults to every non-label column, in table order.
	FeatureColumns []string
}

// Importer is a single format implementation (csv, html, ...).
type Importer interface {
	Name() string
	Import(ctx context.Context, r io.Reader, opts Options) ([]domain.Record, error)
}

// Registry keeps a mapping from format names to their implementations.
type Registry struct {
	importers map[string]Importer
}

// NewRegistry builds a registry with the built-in formats.
func NewRegistry() *Registry {
	r := &Registry{importers: map[string]Importer{}}
	r.Register(CSV{})
	r.Register(HTMLTable{})
	return r
}

// Register adds or replaces an importer.
func (r *Registry) Register(imp Importer) {
	if r.importers == nil {
		r.importers = map[string]Importer{}
	}
	r.importers[imp.Name()] = imp
}

// Resolve returns an importer by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Importer, error) {
	if imp, ok := r.importers[strings.ToLower(name)]; ok {
		return imp, nil
	}
	return nil, fmt.Errorf("importer %s is not registered", name)
}

// ResolveLocation picks an importer from a file name or URL extension.
func (r *Registry) ResolveLocation(location string) (Importer, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(stripQuery(location))), ".")
	switch ext {
	case "htm", "html":
		ext = "html"
	case "", "txt":
		ext = "csv"
	}
	return r.Resolve(ext)
}

func stripQuery(location string) string {
	if i := strings.IndexAny(location, "?#"); i >= 0 {
		return location[:i]
	}
	return location
}

// buildRecords maps a header and string rows onto records.
func buildRecords(header []string, rows [][]string, opts Options) ([]domain.Record, error) {
	if len(header) < 2 {
		return nil, fmt.Errorf("need at least one feature column and a label column, got %d columns", len(header))
	}

	index := make(map[string]int, len(header))
	for i, h := range header {
		index[normalize(h)] = i
	}

	labelIdx := len(header) - 1
	label := opts.LabelColumn
	if label == "" {
		label = DefaultLabelColumn
	}
	if i, ok := index[normalize(label)]; ok {
		labelIdx = i
	} else if opts.LabelColumn != "" {
		return nil, fmt.Errorf("label column %q not found", opts.LabelColumn)
	}

	var featureIdx []int
	if len(opts.FeatureColumns) > 0 {
		for _, name := range opts.FeatureColumns {
			i, ok := index[normalize(name)]
			if !ok {
				return nil, fmt.Errorf("feature column %q not found", name)
			}
			featureIdx = append(featureIdx, i)
		}
	} else {
		for i := range header {
			if i != labelIdx {
				featureIdx = append(featureIdx, i)
			}
		}
	}

	records := make([]domain.Record, 0, len(rows))
	for n, row := range rows {
		if isBlank(row) {
			continue
		}
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d: expected %d cells, got %d", n+1, len(header), len(row))
		}

		labelValue, err := parseCell(row[labelIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d column %s: %w", n+1, header[labelIdx], err)
		}

		features := make([]float64, len(featureIdx))
		for j, idx := range featureIdx {
			features[j], err = parseCell(row[idx])
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", n+1, header[idx], err)
			}
		}

		records = append(records, domain.Record{Features: features, Label: labelValue})
	}
	return records, nil
}

func parseCell(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", cell)
	}
	return v, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
