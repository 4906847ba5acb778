// Package pipeline runs the acquire, annotate, write, read, reduce and write stages for each
// configured source group.
//
// Acquisition ends with the full workbook on disk. The operator then edits the marker
// columns out-of-band and filtering picks the edited workbook up again, so Acquire and
// Filter are separate entry points; Run is both, back to back.
package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/markers"
	"github.com/uoloki/microsoft-dataextract/sources"
	"github.com/uoloki/microsoft-dataextract/workbook"
)

// Group is one source and its pair of workbooks.
type Group struct {
	Name     string
	Full     string
	Filtered string
	Source   sources.Source
}

// Store reads and writes workbooks.
type Store interface {
	Write(path string, sheets workbook.Sheets) error
	Read(path string) (workbook.Sheets, error)
}

// Archiver copies written workbooks somewhere safe.
type Archiver interface {
	Upload(ctx context.Context, path string) error
}

// Files is the xlsx file Store.
type Files struct{}

func (Files) Write(path string, sheets workbook.Sheets) error {
	return workbook.Write(path, sheets)
}

func (Files) Read(path string) (workbook.Sheets, error) {
	return workbook.Read(path)
}

type Pipeline struct {
	Groups   []Group
	Policy   Policy
	Store    Store
	Archiver Archiver
	Log      *slog.Logger

	states map[string]State
}

func New(groups []Group, policy Policy, log *slog.Logger) *Pipeline {
	return &Pipeline{
		Groups: groups,
		Policy: policy,
		Store:  Files{},
		Log:    log,
		states: map[string]State{},
	}
}

// State returns the current state of the named group.
func (p *Pipeline) State(group string) State {
	return p.states[group]
}

// Run acquires every group and then filters every group.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.Acquire(ctx); err != nil {
		return err
	}

	return p.Filter(ctx)
}

// Acquire fetches, annotates and writes the full workbook of every group, in order. The
// first failure stops the run.
func (p *Pipeline) Acquire(ctx context.Context) error {
	for _, g := range p.Groups {
		p.transition(g.Name, Init)

		if err := p.acquire(ctx, g); err != nil {
			return p.fail(err)
		}

		p.Log.Info("full workbook written, awaiting review", "group", g.Name, "file", g.Full)
	}

	return nil
}

// Filter reads, reduces and writes the filtered workbook of every group, in order. The
// first failure stops the run.
func (p *Pipeline) Filter(ctx context.Context) error {
	for _, g := range p.Groups {
		if err := p.filter(ctx, g); err != nil {
			return p.fail(err)
		}

		if p.Archiver != nil {
			for _, file := range []string{g.Full, g.Filtered} {
				if err := p.Archiver.Upload(ctx, file); err != nil {
					return p.fail(&StageError{Stage: WritingFiltered, Group: g.Name, Dataset: file, Err: err})
				}
			}
		}

		p.transition(g.Name, Done)
	}

	return nil
}

func (p *Pipeline) acquire(ctx context.Context, g Group) error {
	if g.Source == nil {
		return &StageError{Stage: Acquiring, Group: g.Name, Err: domain.ErrConfiguration("no source configured")}
	}

	// ... fetch
	p.transition(g.Name, Acquiring)

	acquired := workbook.Sheets{}
	for _, b := range g.Source.Bindings() {
		p.Log.Info("fetching", "group", g.Name, "dataset", b.Sheet)

		data, err := b.Fetcher.Fetch(ctx)
		if err != nil {
			if p.skip(err) {
				p.Log.Warn("skipping dataset", "group", g.Name, "dataset", b.Sheet, "kind", domain.KindOf(err), "error", err)
				continue
			}

			return &StageError{Stage: Acquiring, Group: g.Name, Dataset: b.Sheet, Err: err}
		}

		if len(data.Columns) == 0 {
			p.Log.Warn("no records, dataset omitted", "group", g.Name, "dataset", b.Sheet)
			continue
		}

		acquired = append(acquired, workbook.Sheet{Name: b.Sheet, Data: data})
	}

	if len(acquired) == 0 {
		return &StageError{Stage: Acquiring, Group: g.Name, Err: domain.ErrMalformedInput("no datasets acquired")}
	}

	// ... annotate
	p.transition(g.Name, Annotating)

	annotated := make(workbook.Sheets, 0, len(acquired))
	for _, sheet := range acquired {
		data, err := markers.Annotate(sheet.Data)
		if err != nil {
			return &StageError{Stage: Annotating, Group: g.Name, Dataset: sheet.Name, Err: err}
		}

		annotated = append(annotated, workbook.Sheet{Name: sheet.Name, Data: data})
	}

	// ... write
	p.transition(g.Name, WritingFull)

	if err := p.Store.Write(g.Full, annotated); err != nil {
		return &StageError{Stage: WritingFull, Group: g.Name, Dataset: g.Full, Err: err}
	}

	return nil
}

func (p *Pipeline) filter(ctx context.Context, g Group) error {
	if err := ctx.Err(); err != nil {
		return &StageError{Stage: ReadingFull, Group: g.Name, Err: err}
	}

	// ... read
	p.transition(g.Name, ReadingFull)

	full, err := p.Store.Read(g.Full)
	if err != nil {
		return &StageError{Stage: ReadingFull, Group: g.Name, Dataset: g.Full, Err: err}
	}

	// ... reduce
	p.transition(g.Name, Reducing)

	filtered := make(workbook.Sheets, 0, len(full))
	for _, sheet := range full {
		data, err := markers.Reduce(sheet.Data)
		if err != nil {
			return &StageError{Stage: Reducing, Group: g.Name, Dataset: sheet.Name, Err: err}
		}

		p.Log.Debug("reduced", "group", g.Name, "dataset", sheet.Name, "columns", len(data.Columns), "rows", len(data.Rows))

		filtered = append(filtered, workbook.Sheet{Name: sheet.Name, Data: data})
	}

	// ... write
	p.transition(g.Name, WritingFiltered)

	if err := p.Store.Write(g.Filtered, filtered); err != nil {
		return &StageError{Stage: WritingFiltered, Group: g.Name, Dataset: g.Filtered, Err: err}
	}

	p.Log.Info("filtered workbook written", "group", g.Name, "file", g.Filtered)

	return nil
}

func (p *Pipeline) skip(err error) bool {
	if p.Policy != SkipFailed {
		return false
	}

	switch domain.KindOf(err) {
	case domain.SourceUnavailable, domain.SourceQueryError:
		return true
	default:
		return false
	}
}

func (p *Pipeline) transition(group string, to State) {
	if p.states == nil {
		p.states = map[string]State{}
	}

	from := p.states[group]
	p.states[group] = to

	if from != to {
		p.Log.Info("state", "group", group, "from", from.String(), "to", to.String())
	}
}

func (p *Pipeline) fail(err error) error {
	var e *StageError
	if errors.As(err, &e) {
		p.transition(e.Group, Failed)
		p.Log.Error("stage failed",
			"stage", e.Stage.String(),
			"group", e.Group,
			"dataset", e.Dataset,
			"kind", domain.KindOf(err).String(),
			"error", e.Err)
	}

	return err
}
