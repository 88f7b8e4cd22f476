package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"ModelRetrainer/internal/domain"
)

// HTMLTable reads the first <table> of an HTML export. The header comes from
// <th> cells, or from the first row when the table has none.
type HTMLTable struct {
	// Selector overrides the table lookup, e.g. "table#dataset".
	Selector string
}

// Name identifies the format inside the registry.
func (HTMLTable) Name() string {
	return "html"
}

// Import parses the table rows into records.
func (h HTMLTable) Import(ctx context.Context, r io.Reader, opts Options) ([]domain.Record, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	selector := h.Selector
	if selector == "" {
		selector = "table"
	}
	table := doc.Find(selector).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("html: no table matches %q", selector)
	}

	var (
		header []string
		rows   [][]string
	)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if th := tr.Find("th"); th.Length() > 0 && header == nil {
			header = cellTexts(th)
			return
		}
		if cells := tr.Find("td"); cells.Length() > 0 {
			rows = append(rows, cellTexts(cells))
		}
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if header == nil {
		if len(rows) == 0 {
			return nil, fmt.Errorf("html: table is empty")
		}
		header, rows = rows[0], rows[1:]
	}

	return buildRecords(header, rows, opts)
}

func cellTexts(sel *goquery.Selection) []string {
	out := make([]string, 0, sel.Length())
	sel.Each(func(_ int, cell *goquery.Selection) {
		out = append(out, strings.TrimSpace(cell.Text()))
	})
	return out
}
