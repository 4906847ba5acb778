package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/pipeline"
)

var RunCmd = Run{
	policy: "",
}

// Run acquires every selected source and then filters every full workbook, without
// pausing for review.
type Run struct {
	policy string
}

func (cmd *Run) Name() string {
	return "run"
}

func (cmd *Run) Description() string {
	return "Acquires the metadata from every enabled source and writes the full and filtered workbooks"
}

func (cmd *Run) Usage() string {
	return "[--policy strict|skip-failed]"
}

func (cmd *Run) Help() string {
	return fmt.Sprintf(`Acquires the metadata from every enabled source, writes the annotated 'full' workbooks
and then reduces each full workbook to the columns marked 'Y' in its '_Y' columns. This is
the default command when %[1]s is run without arguments.

Examples:
  %[1]s run
  %[1]s --source graph --source inventory run --policy skip-failed`, APP)
}

func (cmd *Run) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.policy, "policy", cmd.policy, "Failure policy ('strict' or 'skip-failed'), overrides the settings file")
}

func (cmd *Run) Execute(ctx context.Context, options *Options) error {
	return execute(ctx, options, cmd.policy, true, (*pipeline.Pipeline).Run)
}

var AcquireCmd = Acquire{}

// Acquire writes the full workbooks and stops for review.
type Acquire struct {
	policy string
}

func (cmd *Acquire) Name() string {
	return "acquire"
}

func (cmd *Acquire) Description() string {
	return "Acquires the metadata from every enabled source and writes the annotated full workbooks"
}

func (cmd *Acquire) Usage() string {
	return "[--policy strict|skip-failed]"
}

func (cmd *Acquire) Help() string {
	return fmt.Sprintf(`Acquires the metadata from every enabled source and writes one 'full' workbook per source,
with a '_Y' marker column after every column. Clear the marker cells of the columns that
should not be kept and then run '%[1]s filter'.

Examples:
  %[1]s acquire
  %[1]s --source purview acquire`, APP)
}

func (cmd *Acquire) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.policy, "policy", cmd.policy, "Failure policy ('strict' or 'skip-failed'), overrides the settings file")
}

func (cmd *Acquire) Execute(ctx context.Context, options *Options) error {
	return execute(ctx, options, cmd.policy, true, (*pipeline.Pipeline).Acquire)
}

var FilterCmd = Filter{}

// Filter reduces the reviewed full workbooks.
type Filter struct {
}

func (cmd *Filter) Name() string {
	return "filter"
}

func (cmd *Filter) Description() string {
	return "Writes the filtered workbooks from the reviewed full workbooks"
}

func (cmd *Filter) Usage() string {
	return ""
}

func (cmd *Filter) Help() string {
	return fmt.Sprintf(`Reads the full workbook of every enabled source and writes a 'filtered' workbook holding
only the columns with at least one 'Y' in their marker column. The sources are not
contacted and no credentials are required.

Examples:
  %[1]s filter
  %[1]s --source blockchain filter`, APP)
}

func (cmd *Filter) Flags(flagset *pflag.FlagSet) {
}

func (cmd *Filter) Execute(ctx context.Context, options *Options) error {
	return execute(ctx, options, "", false, (*pipeline.Pipeline).Filter)
}

func execute(ctx context.Context, options *Options, policy string, withSources bool, f func(*pipeline.Pipeline, context.Context) error) error {
	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	if policy != "" {
		env.config.Policy = policy
	}

	groups, err := env.groups(ctx, options, withSources)
	if err != nil {
		env.log.Error("configuration", "error", err)
		return err
	}

	defer closeAll(groups)

	p, err := env.newPipeline(groups)
	if err != nil {
		env.log.Error("configuration", "error", err)
		return err
	}

	env.log.Info("started", "sources", len(groups), "policy", p.Policy.String())

	if err := f(p, ctx); err != nil {
		return err
	}

	env.log.Info("completed")

	return nil
}
