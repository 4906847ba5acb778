package commands

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/archive"
	"github.com/uoloki/microsoft-dataextract/config"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/pipeline"
	"github.com/uoloki/microsoft-dataextract/sources"
	"github.com/uoloki/microsoft-dataextract/sources/blockchain"
	"github.com/uoloki/microsoft-dataextract/sources/graph"
	"github.com/uoloki/microsoft-dataextract/sources/inventory"
	"github.com/uoloki/microsoft-dataextract/sources/purview"
)

const APP = "dataextract"

// Options are the settings shared by every command.
type Options struct {
	Config  string
	Workdir string
	Sources []string
	Debug   bool
}

// Command is a CLI command. NewCobra adapts it for the root command.
type Command interface {
	Name() string
	Description() string
	Usage() string
	Help() string
	Flags(flagset *pflag.FlagSet)
	Execute(ctx context.Context, options *Options) error
}

// NewCobra wraps a Command as a cobra subcommand.
func NewCobra(c Command, options *Options) *cobra.Command {
	cmd := cobra.Command{
		Use:   strings.TrimSpace(c.Name() + " " + c.Usage()),
		Short: c.Description(),
		Long:  c.Help(),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Execute(cmd.Context(), options)
		},
	}

	c.Flags(cmd.Flags())

	return &cmd
}

// sourceNames is the order in which sources are run.
var sourceNames = []string{config.Graph, config.Purview, config.Blockchain, config.Inventory}

type environment struct {
	config      *config.Config
	credentials *config.Credentials
	log         *slog.Logger
	closer      io.Closer
}

// setup loads the settings and credentials and opens the log file. The settings file is
// optional unless it was given explicitly.
func setup(options *Options) (*environment, error) {
	path := options.Config
	required := path != ""
	if path == "" {
		path = DEFAULT_CONFIG
	}

	workdir := options.Workdir
	if workdir == "" {
		workdir = DEFAULT_WORKDIR
	}

	cfg, err := config.Load(path, workdir, required)
	if err != nil {
		return nil, err
	}

	if options.Debug {
		cfg.Log.Level = "debug"
	}

	for _, s := range options.Sources {
		if !slices.Contains(sourceNames, s) {
			return nil, domain.ErrConfiguration("unknown source '%s' (expected one of %s)", s, strings.Join(sourceNames, ", "))
		}
	}

	log, closer, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	credentials, err := config.LoadCredentials(cfg.Path(cfg.Credentials))
	if err != nil {
		log.Error("configuration", "error", err)
		closer.Close()
		return nil, err
	}

	return &environment{
		config:      cfg,
		credentials: credentials,
		log:         log,
		closer:      closer,
	}, nil
}

func (e *environment) Close() error {
	return e.closer.Close()
}

// newLogger appends to the log file and echoes to stderr. Every record carries the run id.
func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	file := cfg.Path(cfg.Log.File)

	if err := os.MkdirAll(filepath.Dir(file), 0770); err != nil {
		return nil, nil, domain.ErrIOFailure("unable to create log directory (%w)", err)
	}

	f, err := os.OpenFile(file, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
	if err != nil {
		return nil, nil, domain.ErrIOFailure("unable to open log file '%s' (%w)", file, err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(f, os.Stderr), &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})

	return slog.New(handler).With("run", uuid.NewString()), f, nil
}

// selected returns the enabled sources, restricted to the --source list if there is one.
func (e *environment) selected(options *Options) []string {
	list := []string{}
	for _, name := range sourceNames {
		if len(options.Sources) > 0 && !slices.Contains(options.Sources, name) {
			continue
		}

		if e.config.Output(name).Enabled {
			list = append(list, name)
		}
	}

	return list
}

// groups builds a pipeline group for every selected source. Sources are only created
// (and their credentials checked) if withSources is set, since filtering never contacts
// a source.
func (e *environment) groups(ctx context.Context, options *Options, withSources bool) ([]pipeline.Group, error) {
	groups := []pipeline.Group{}

	for _, name := range e.selected(options) {
		output := e.config.Output(name)
		g := pipeline.Group{
			Name:     name,
			Full:     e.config.Path(output.Full),
			Filtered: e.config.Path(output.Filtered),
		}

		if withSources {
			source, err := e.source(ctx, name)
			if err != nil {
				closeAll(groups)
				return nil, err
			}

			g.Source = source
		}

		groups = append(groups, g)
	}

	if len(groups) == 0 {
		return nil, domain.ErrConfiguration("no sources enabled")
	}

	return groups, nil
}

func (e *environment) source(ctx context.Context, name string) (sources.Source, error) {
	switch name {
	case config.Graph:
		return graph.New(ctx, e.config.Graph, e.credentials, e.log)

	case config.Purview:
		return purview.New(e.config.Purview, e.credentials, e.log)

	case config.Blockchain:
		return blockchain.New(e.config.Blockchain, e.credentials, e.log)

	case config.Inventory:
		return inventory.New(e.credentials, e.log)

	default:
		return nil, domain.ErrConfiguration("unknown source '%s'", name)
	}
}

func (e *environment) archiver() (pipeline.Archiver, error) {
	if !e.config.Archive.Enabled {
		return nil, nil
	}

	return archive.New(e.config.Archive, e.credentials, e.log)
}

// newPipeline creates a pipeline over the groups with the configured policy and archive.
func (e *environment) newPipeline(groups []pipeline.Group) (*pipeline.Pipeline, error) {
	policy, err := pipeline.ParsePolicy(e.config.Policy)
	if err != nil {
		return nil, err
	}

	p := pipeline.New(groups, policy, e.log)

	if a, err := e.archiver(); err != nil {
		return nil, err
	} else if a != nil {
		p.Archiver = a
	}

	return p, nil
}

func closeAll(groups []pipeline.Group) {
	for _, g := range groups {
		if g.Source != nil {
			g.Source.Close()
		}
	}
}

// group returns the single group named by --source, or the only enabled group.
func (e *environment) group(options *Options) (pipeline.Group, error) {
	names := e.selected(options)
	if len(names) != 1 {
		return pipeline.Group{}, domain.ErrConfiguration("--source must select exactly one of %s", strings.Join(names, ", "))
	}

	output := e.config.Output(names[0])

	return pipeline.Group{
		Name:     names[0],
		Full:     e.config.Path(output.Full),
		Filtered: e.config.Path(output.Filtered),
	}, nil
}
