package importer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"ModelRetrainer/internal/domain"
)

// Loader opens local files or http(s) URLs and runs the matching importer.
type Loader struct {
	registry *Registry
	client   *http.Client
}

// NewLoader wires the importer registry with an HTTP client. Nil arguments
// get the built-in formats and a client with a 20s timeout.
func NewLoader(registry *Registry, client *http.Client) *Loader {
	if registry == nil {
		registry = NewRegistry()
	}
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Loader{registry: registry, client: client}
}

// Load reads records from location. A non-empty format overrides detection
// by extension.
func (l *Loader) Load(ctx context.Context, location, format string, opts Options) ([]domain.Record, error) {
	var (
		imp Importer
		err error
	)
	if format != "" {
		imp, err = l.registry.Resolve(format)
	} else {
		imp, err = l.registry.ResolveLocation(location)
	}
	if err != nil {
		return nil, err
	}

	body, err := l.open(ctx, location)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	records, err := imp.Import(ctx, body, opts)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", location, err)
	}
	return records, nil
}

func (l *Loader) open(ctx context.Context, location string) (io.ReadCloser, error) {
	if !strings.HasPrefix(location, "http://") && !strings.HasPrefix(location, "https://") {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", location, err)
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "ModelRetrainer/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", location, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", location, resp.Status)
	}
	return resp.Body, nil
}
