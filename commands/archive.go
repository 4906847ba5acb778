package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/archive"
	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/pipeline"
)

var ArchiveCmd = Archive{}

// Archive uploads the existing workbooks to Azure Blob Storage.
type Archive struct {
	container string
}

func (cmd *Archive) Name() string {
	return "archive"
}

func (cmd *Archive) Description() string {
	return "Uploads the full and filtered workbooks to Azure Blob Storage"
}

func (cmd *Archive) Usage() string {
	return "[--container <container>]"
}

func (cmd *Archive) Help() string {
	return fmt.Sprintf(`Uploads the full and filtered workbooks of the selected sources to the storage account
in the 'archive' section of the settings file, as '<prefix>/<yyyy-mm-dd>/<workbook>'. The
storage account key is read from the AZURE_STORAGE_ACCOUNT_KEY credential. Workbooks that
have not been written yet are skipped.

Examples:
  %[1]s archive
  %[1]s --source inventory archive --container audit`, APP)
}

func (cmd *Archive) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.container, "container", cmd.container, "Blob container, overrides the settings file")
}

func (cmd *Archive) Execute(ctx context.Context, options *Options) error {
	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	cfg := env.config.Archive
	if cmd.container != "" {
		cfg.Container = cmd.container
	}

	a, err := archive.New(cfg, env.credentials, env.log)
	if err != nil {
		return err
	}

	groups, err := env.groups(ctx, options, false)
	if err != nil {
		return err
	}

	return upload(ctx, a, groups, env)
}

func upload(ctx context.Context, a pipeline.Archiver, groups []pipeline.Group, env *environment) error {
	count := 0
	for _, g := range groups {
		for _, file := range []string{g.Full, g.Filtered} {
			if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
				env.log.Warn("workbook not found, skipped", "group", g.Name, "file", file)
				continue
			}

			if err := a.Upload(ctx, file); err != nil {
				return err
			}

			count++
		}
	}

	if count == 0 {
		return domain.ErrIOFailure("no workbooks to archive")
	}

	env.log.Info("archived", "workbooks", count)

	return nil
}
