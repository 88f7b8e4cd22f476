package importer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studyCSV = `hours_studied,score
1.0,52
2.5,61

4.0,70.5
`

func TestCSVImportUsesScoreAsLabel(t *testing.T) {
	t.Parallel()

	records, err := CSV{}.Import(context.Background(), strings.NewReader(studyCSV), Options{})
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, []float64{1.0}, records[0].Features)
	assert.Equal(t, 52.0, records[0].Label)
	assert.Equal(t, []float64{4.0}, records[2].Features)
	assert.Equal(t, 70.5, records[2].Label)
}

func TestCSVImportFallsBackToLastColumn(t *testing.T) {
	t.Parallel()

	input := "x1,x2,y\n1,2,3\n4,5,6\n"
	records, err := CSV{}.Import(context.Background(), strings.NewReader(input), Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []float64{4, 5}, records[1].Features)
	assert.Equal(t, 6.0, records[1].Label)
}

func TestCSVImportSelectsColumns(t *testing.T) {
	t.Parallel()

	input := "y,x1,x2\n3,1,2\n"
	records, err := CSV{}.Import(context.Background(), strings.NewReader(input), Options{
		LabelColumn:    "Y",
		FeatureColumns: []string{"x2"},
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float64{2}, records[0].Features)
	assert.Equal(t, 3.0, records[0].Label)
}

func TestCSVImportErrors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		input string
		opts  Options
		msg   string
	}{
		"empty":          {input: "", msg: "missing header"},
		"single column":  {input: "score\n1\n", msg: "at least one feature"},
		"not a number":   {input: "h,score\n1,abc\n", msg: "not a number"},
		"short row":      {input: "h,score\n1\n", msg: "expected 2 cells"},
		"missing label":  {input: "h,score\n1,2\n", opts: Options{LabelColumn: "target"}, msg: "label column"},
		"missing column": {input: "h,score\n1,2\n", opts: Options{FeatureColumns: []string{"q"}}, msg: "feature column"},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CSV{}.Import(context.Background(), strings.NewReader(tc.input), tc.opts)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
		})
	}
}

func TestHTMLTableImport(t *testing.T) {
	t.Parallel()

	html := `
	<html><body>
	  <table id="dataset">
	    <thead><tr><th>Hours Studied</th><th>Score</th></tr></thead>
	    <tbody>
	      <tr><td> 3 </td><td>64</td></tr>
	      <tr><td>5</td><td>80</td></tr>
	    </tbody>
	  </table>
	</body></html>`

	records, err := HTMLTable{}.Import(context.Background(), strings.NewReader(html), Options{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []float64{3}, records[0].Features)
	assert.Equal(t, 64.0, records[0].Label)
	assert.Equal(t, 80.0, records[1].Label)
}

func TestHTMLTableWithoutHeaderCells(t *testing.T) {
	t.Parallel()

	html := `<table><tr><td>a</td><td>b</td></tr><tr><td>1</td><td>2</td></tr></table>`
	records, err := HTMLTable{}.Import(context.Background(), strings.NewReader(html), Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []float64{1}, records[0].Features)
	assert.Equal(t, 2.0, records[0].Label)
}

func TestHTMLTableSelector(t *testing.T) {
	t.Parallel()

	html := `<table><tr><th>x</th><th>y</th></tr><tr><td>9</td><td>9</td></tr></table>
	<table class="data"><tr><th>x</th><th>y</th></tr><tr><td>1</td><td>2</td></tr></table>`

	records, err := HTMLTable{Selector: "table.data"}.Import(context.Background(), strings.NewReader(html), Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 2.0, records[0].Label)

	_, err = HTMLTable{Selector: "table#missing"}.Import(context.Background(), strings.NewReader(html), Options{})
	require.Error(t, err)
}

func TestRegistryResolveLocation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	for location, want := range map[string]string{
		"data.csv":                    "csv",
		"DATA.CSV":                    "csv",
		"export.html":                 "html",
		"export.htm":                  "html",
		"https://host/table.html?x=1": "html",
		"records":                     "csv",
	} {
		imp, err := reg.ResolveLocation(location)
		require.NoError(t, err, location)
		assert.Equal(t, want, imp.Name(), location)
	}

	_, err := reg.ResolveLocation("model.parquet")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestLoaderReadsFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "study.csv")
	require.NoError(t, os.WriteFile(path, []byte(studyCSV), 0o600))

	records, err := NewLoader(nil, nil).Load(context.Background(), path, "", Options{})
	require.NoError(t, err)
	assert.Len(t, records, 3)

	_, err = NewLoader(nil, nil).Load(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), "", Options{})
	require.Error(t, err)
}

func TestLoaderFetchesURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/export" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`<table><tr><th>h</th><th>score</th></tr><tr><td>2</td><td>58</td></tr></table>`))
	}))
	defer srv.Close()

	loader := NewLoader(nil, srv.Client())
	records, err := loader.Load(context.Background(), srv.URL+"/export", "html", Options{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 58.0, records[0].Label)

	_, err = loader.Load(context.Background(), srv.URL+"/missing", "html", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status")
}
