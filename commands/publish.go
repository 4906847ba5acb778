package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/workbook"
)

var PublishCmd = Publish{}

// Publish uploads a full workbook to a Google Sheets spreadsheet for review.
type Publish struct {
	url         string
	credentials string
	tokens      string
}

func (cmd *Publish) Name() string {
	return "publish"
}

func (cmd *Publish) Description() string {
	return "Uploads a full workbook to a Google Sheets spreadsheet for review"
}

func (cmd *Publish) Usage() string {
	return "--url <url>"
}

func (cmd *Publish) Help() string {
	return fmt.Sprintf(`Uploads the full workbook of a single source to a Google Sheets spreadsheet, replacing the
contents of the worksheets with the same names. The reviewed spreadsheet is copied back with
'%[1]s pull'.

Examples:
  %[1]s --source graph publish --url "https://docs.google.com/spreadsheets/d/1BxiMVs0XRA5nFMdKvBdBZjgmUUqptlbs74OgvE2upms"`, APP)
}

func (cmd *Publish) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.url, "url", cmd.url, "Spreadsheet URL")
	flagset.StringVar(&cmd.credentials, "credentials", cmd.credentials, "Path for the Google 'credentials.json' file")
	flagset.StringVar(&cmd.tokens, "tokens", cmd.tokens, "Directory for the OAuth2 tokens and revision files")
}

func (cmd *Publish) Execute(ctx context.Context, options *Options) error {
	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	g, err := env.group(options)
	if err != nil {
		return err
	}

	sheets, err := workbook.Read(g.Full)
	if err != nil {
		return err
	}

	m := env.mirror(cmd.url, cmd.credentials, cmd.tokens)

	spreadsheet, err := m.spreadsheet(ctx)
	if err != nil {
		return err
	}

	if err := spreadsheet.Put(ctx, sheets); err != nil {
		return err
	}

	env.log.Info("published", "group", g.Name, "file", g.Full, "spreadsheet", spreadsheet.ID, "sheets", len(sheets))

	if revision, err := spreadsheet.Revision(ctx); err != nil {
		env.log.Warn("unable to retrieve spreadsheet revision", "spreadsheet", spreadsheet.ID, "error", err)
	} else if err := saveRevision(m.revision(spreadsheet.ID), revision.ID); err != nil {
		return err
	}

	return nil
}
