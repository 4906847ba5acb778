// Package sources defines the contract between the pipeline and the metadata source
// adapters. An adapter yields one named dataset per binding; the pipeline owns annotation,
// workbook layout and failure policy.
package sources

import (
	"context"

	"github.com/uoloki/microsoft-dataextract/domain"
)

// Fetcher acquires a single dataset.
type Fetcher interface {
	Fetch(ctx context.Context) (*domain.Dataset, error)
}

// FetcherFunc adapts an ordinary function to a Fetcher.
type FetcherFunc func(ctx context.Context) (*domain.Dataset, error)

func (f FetcherFunc) Fetch(ctx context.Context) (*domain.Dataset, error) {
	return f(ctx)
}

// Binding associates a workbook sheet name with the fetcher that produces its dataset.
type Binding struct {
	Sheet   string
	Fetcher Fetcher
}

// Source is a configured adapter: a named, ordered list of bindings plus whatever
// connections the adapter holds.
type Source interface {
	Name() string
	Bindings() []Binding
	Close() error
}
