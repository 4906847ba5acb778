package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/sources"
	"github.com/uoloki/microsoft-dataextract/workbook"
)

type source struct {
	name     string
	bindings []sources.Binding
}

func (s *source) Name() string { return s.name }
func (s *source) Bindings() []sources.Binding { return s.bindings }
func (s *source) Close() error { return nil }

func dataset(columns []string, rows ...[]any) sources.Fetcher {
	return sources.FetcherFunc(func(ctx context.Context) (*domain.Dataset, error) {
		return &domain.Dataset{Columns: columns, Rows: rows}, nil
	})
}

func failing(err error) sources.Fetcher {
	return sources.FetcherFunc(func(ctx context.Context) (*domain.Dataset, error) {
		return nil, err
	})
}

type memory struct {
	files  map[string]workbook.Sheets
	writes []string
}

func (m *memory) Write(path string, sheets workbook.Sheets) error {
	if m.files == nil {
		m.files = map[string]workbook.Sheets{}
	}

	m.files[path] = sheets
	m.writes = append(m.writes, path)

	return nil
}

func (m *memory) Read(path string) (workbook.Sheets, error) {
	if sheets, ok := m.files[path]; ok {
		return sheets, nil
	}

	return nil, domain.ErrIOFailure("unable to open workbook '%s'", path)
}

type archive struct {
	uploaded []string
}

func (a *archive) Upload(ctx context.Context, path string) error {
	a.uploaded = append(a.uploaded, path)
	return nil
}

func logger(b *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func users() *source {
	return &source{
		name: "graph",
		bindings: []sources.Binding{
			{Sheet: "Users", Fetcher: dataset([]string{"Name", "Email"}, []any{"Alice", "a@x.com"})},
			{Sheet: "Groups", Fetcher: dataset([]string{"Group"}, []any{"Admins"})},
		},
	}
}

func TestAcquire(t *testing.T) {
	var log bytes.Buffer
	store := memory{}

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx", Source: users()}}, Strict, logger(&log))
	p.Store = &store

	require.NoError(t, p.Acquire(context.Background()))

	full := store.files["full.xlsx"]
	require.Equal(t, []string{"Users", "Groups"}, full.Names())

	data, _ := full.Get("Users")
	assert.Equal(t, []string{"Name", "Name_Y", "Email", "Email_Y"}, data.Columns)
	assert.Equal(t, [][]any{{"Alice", "Y", "a@x.com", "Y"}}, data.Rows)

	assert.Equal(t, WritingFull, p.State("graph"))
	assert.Equal(t, []string{"full.xlsx"}, store.writes)
	assert.Contains(t, log.String(), "to=ANNOTATING")
}

func TestFilter(t *testing.T) {
	var log bytes.Buffer

	store := memory{
		files: map[string]workbook.Sheets{
			"full.xlsx": {
				{Name: "Users", Data: &domain.Dataset{
					Columns: []string{"Name", "Name_Y", "Email", "Email_Y"},
					Rows:    [][]any{{"Alice", "Y", "a@x.com", nil}},
				}},
			},
		},
	}

	a := archive{}

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx"}}, Strict, logger(&log))
	p.Store = &store
	p.Archiver = &a

	require.NoError(t, p.Filter(context.Background()))

	data, ok := store.files["filtered.xlsx"].Get("Users")
	require.True(t, ok)
	assert.Equal(t, []string{"Name"}, data.Columns)
	assert.Equal(t, [][]any{{"Alice"}}, data.Rows)

	assert.Equal(t, Done, p.State("graph"))
	assert.Equal(t, []string{"full.xlsx", "filtered.xlsx"}, a.uploaded)
}

func TestRunWithFiles(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "all_metadata.xlsx")
	filtered := filepath.Join(dir, "filtered_metadata.xlsx")

	var log bytes.Buffer

	p := New([]Group{{Name: "graph", Full: full, Filtered: filtered, Source: users()}}, Strict, logger(&log))

	require.NoError(t, p.Run(context.Background()))

	sheets, err := workbook.Read(filtered)
	require.NoError(t, err)

	data, ok := sheets.Get("Users")
	require.True(t, ok)
	assert.Equal(t, []string{"Name", "Email"}, data.Columns)
	assert.Equal(t, [][]any{{"Alice", "a@x.com"}}, data.Rows)

	assert.Equal(t, Done, p.State("graph"))
}

func TestStrictPolicy(t *testing.T) {
	var log bytes.Buffer
	store := memory{}

	s := users()
	s.bindings = append(s.bindings, sources.Binding{Sheet: "Teams", Fetcher: failing(domain.ErrSourceUnavailable("HTTP 503"))})

	p := New([]Group{
		{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx", Source: s},
		{Name: "purview", Full: "purview.xlsx", Filtered: "filtered_purview.xlsx", Source: users()},
	}, Strict, logger(&log))
	p.Store = &store

	err := p.Run(context.Background())
	require.Error(t, err)

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, Acquiring, stage.Stage)
	assert.Equal(t, "graph", stage.Group)
	assert.Equal(t, "Teams", stage.Dataset)
	assert.Equal(t, domain.SourceUnavailable, domain.KindOf(err))

	assert.Equal(t, Failed, p.State("graph"))
	assert.Equal(t, Init, p.State("purview"))
	assert.Empty(t, store.writes)
	assert.Contains(t, log.String(), "stage=ACQUIRING")
	assert.Contains(t, log.String(), "kind=SourceUnavailable")
}

func TestSkipFailedPolicy(t *testing.T) {
	var log bytes.Buffer
	store := memory{}

	s := users()
	s.bindings = append([]sources.Binding{{Sheet: "Teams", Fetcher: failing(domain.ErrSourceQuery("HTTP 400"))}}, s.bindings...)

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx", Source: s}}, SkipFailed, logger(&log))
	p.Store = &store

	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, []string{"Users", "Groups"}, store.files["full.xlsx"].Names())
	assert.Contains(t, log.String(), "skipping dataset")
}

func TestSkipFailedPolicyDoesNotSkipOtherErrors(t *testing.T) {
	var log bytes.Buffer

	s := users()
	s.bindings = append(s.bindings, sources.Binding{Sheet: "Teams", Fetcher: failing(context.Canceled)})

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Source: s}}, SkipFailed, logger(&log))
	p.Store = &memory{}

	err := p.Acquire(context.Background())

	assert.ErrorIs(t, err, context.Canceled)
}

func TestAcquireOmitsEmptyDatasets(t *testing.T) {
	var log bytes.Buffer
	store := memory{}

	s := users()
	s.bindings = append(s.bindings, sources.Binding{Sheet: "Messages", Fetcher: dataset([]string{})})

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Source: s}}, Strict, logger(&log))
	p.Store = &store

	require.NoError(t, p.Acquire(context.Background()))

	assert.Equal(t, []string{"Users", "Groups"}, store.files["full.xlsx"].Names())
}

func TestAcquireWithNoDatasets(t *testing.T) {
	var log bytes.Buffer

	s := source{
		name:     "graph",
		bindings: []sources.Binding{{Sheet: "Messages", Fetcher: dataset([]string{})}},
	}

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Source: &s}}, Strict, logger(&log))
	p.Store = &memory{}

	err := p.Acquire(context.Background())

	assert.Equal(t, domain.MalformedInput, domain.KindOf(err))
}

func TestFilterWithMissingWorkbook(t *testing.T) {
	var log bytes.Buffer

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx"}}, Strict, logger(&log))
	p.Store = &memory{}

	err := p.Filter(context.Background())

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, ReadingFull, stage.Stage)
	assert.Equal(t, domain.IOFailure, domain.KindOf(err))
	assert.Equal(t, Failed, p.State("graph"))
}

func TestFilterWithMalformedMarkers(t *testing.T) {
	var log bytes.Buffer

	store := memory{
		files: map[string]workbook.Sheets{
			"full.xlsx": {
				{Name: "Users", Data: &domain.Dataset{Columns: []string{"Name", "_Y"}, Rows: [][]any{{"Alice", "Y"}}}},
			},
		},
	}

	p := New([]Group{{Name: "graph", Full: "full.xlsx", Filtered: "filtered.xlsx"}}, Strict, logger(&log))
	p.Store = &store

	err := p.Filter(context.Background())

	var stage *StageError
	require.True(t, errors.As(err, &stage))
	assert.Equal(t, Reducing, stage.Stage)
	assert.Equal(t, "Users", stage.Dataset)
	assert.Equal(t, domain.MalformedInput, domain.KindOf(err))
	assert.NotContains(t, store.files, "filtered.xlsx")
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("skip-failed")
	require.NoError(t, err)
	assert.Equal(t, SkipFailed, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Strict, p)

	_, err = ParsePolicy("retry")
	assert.Equal(t, domain.ConfigurationError, domain.KindOf(err))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "WRITING_FILTERED", WritingFiltered.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, WritingFull.Terminal())
}
