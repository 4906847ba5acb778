package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/workbook"
)

var PullCmd = Pull{}

// Pull replaces a full workbook with the reviewed Google Sheets spreadsheet.
type Pull struct {
	url         string
	credentials string
	tokens      string
	force       bool
}

func (cmd *Pull) Name() string {
	return "pull"
}

func (cmd *Pull) Description() string {
	return "Downloads a reviewed Google Sheets spreadsheet to a full workbook"
}

func (cmd *Pull) Usage() string {
	return "--url <url> [--force]"
}

func (cmd *Pull) Help() string {
	return fmt.Sprintf(`Downloads every worksheet of a reviewed Google Sheets spreadsheet and replaces the full
workbook of a single source. The download is skipped if the spreadsheet has not been
revised since it was last published or pulled, unless --force is set.

Examples:
  %[1]s --source graph pull --url "https://docs.google.com/spreadsheets/d/1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms"
  %[1]s --source graph filter`, APP)
}

func (cmd *Pull) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.url, "url", cmd.url, "Spreadsheet URL")
	flagset.StringVar(&cmd.credentials, "credentials", cmd.credentials, "Path for the Google 'credentials.json' file")
	flagset.StringVar(&cmd.tokens, "tokens", cmd.tokens, "Directory for the OAuth2 tokens and revision files")
	flagset.BoolVar(&cmd.force, "force", cmd.force, "Downloads the spreadsheet even if it is unchanged")
}

func (cmd *Pull) Execute(ctx context.Context, options *Options) error {
	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	g, err := env.group(options)
	if err != nil {
		return err
	}

	m := env.mirror(cmd.url, cmd.credentials, cmd.tokens)

	spreadsheet, err := m.spreadsheet(ctx)
	if err != nil {
		return err
	}

	revision, err := spreadsheet.Revision(ctx)
	if err != nil {
		return err
	}

	file := m.revision(spreadsheet.ID)
	if !cmd.force && loadRevision(file) == revision.ID {
		env.log.Info("spreadsheet unchanged", "spreadsheet", spreadsheet.ID, "revision", revision.ID)
		return nil
	}

	sheets, err := spreadsheet.Get(ctx)
	if err != nil {
		return err
	}

	if err := workbook.Write(g.Full, sheets); err != nil {
		return err
	}

	env.log.Info("pulled", "group", g.Name, "spreadsheet", spreadsheet.ID, "revision", revision.ID, "modified", revision.Modified, "file", g.Full)

	return saveRevision(file, revision.ID)
}
