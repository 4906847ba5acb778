package pipeline

import (
	"fmt"

	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
)

// State is the stage a group has reached.
type State int

const (
	Init State = iota
	Acquiring
	Annotating
	WritingFull
	ReadingFull
	Reducing
	WritingFiltered
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Acquiring:
		return "ACQUIRING"
	case Annotating:
		return "ANNOTATING"
	case WritingFull:
		return "WRITING_FULL"
	case ReadingFull:
		return "READING_FULL"
	case Reducing:
		return "REDUCING"
	case WritingFiltered:
		return "WRITING_FILTERED"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == Done || s == Failed
}

// Policy decides what happens when a source fails to produce a dataset.
type Policy int

const (
	// Strict aborts the run on the first source failure.
	Strict Policy = iota

	// SkipFailed logs the failure and omits the dataset from the workbook.
	SkipFailed
)

func (p Policy) String() string {
	if p == SkipFailed {
		return config.SkipFailed
	}

	return config.Strict
}

// ParsePolicy converts a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case config.Strict, "":
		return Strict, nil
	case config.SkipFailed:
		return SkipFailed, nil
	default:
		return Strict, domain.ErrConfiguration("invalid failure policy '%s'", s)
	}
}

// StageError is a failure annotated with the stage, group and dataset it occurred in.
type StageError struct {
	Stage   State
	Group   string
	Dataset string
	Err     error
}

func (e *StageError) Error() string {
	if e.Dataset != "" {
		return fmt.Sprintf("%s failed for %s '%s' (%v)", e.Stage, e.Group, e.Dataset, e.Err)
	}

	return fmt.Sprintf("%s failed for %s (%v)", e.Stage, e.Group, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
