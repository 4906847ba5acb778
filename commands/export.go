package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/uoloki/microsoft-dataextract/domain"
	"github.com/uoloki/microsoft-dataextract/workbook"
)

var ExportCmd = Export{}

// Export writes one sheet of a workbook to a TSV file.
type Export struct {
	sheet    string
	file     string
	filtered bool
}

func (cmd *Export) Name() string {
	return "export"
}

func (cmd *Export) Description() string {
	return "Exports a worksheet from a full or filtered workbook to a TSV file"
}

func (cmd *Export) Usage() string {
	return "--sheet <sheet> [--file <file>] [--filtered]"
}

func (cmd *Export) Help() string {
	return fmt.Sprintf(`Exports a single worksheet from the full (or, with --filtered, the filtered) workbook of a
single source to a tab separated file.

Examples:
  %[1]s --source graph export --sheet Users --filtered --file "users.tsv"`, APP)
}

func (cmd *Export) Flags(flagset *pflag.FlagSet) {
	flagset.StringVar(&cmd.sheet, "sheet", cmd.sheet, "Worksheet name")
	flagset.StringVar(&cmd.file, "file", cmd.file, "TSV file name. Defaults to '<sheet> - <yyyy-mm-ddTHHmmss>.tsv' in the working directory")
	flagset.BoolVar(&cmd.filtered, "filtered", cmd.filtered, "Exports from the filtered workbook")
}

func (cmd *Export) Execute(ctx context.Context, options *Options) error {
	if strings.TrimSpace(cmd.sheet) == "" {
		return domain.ErrConfiguration("--sheet is a required option")
	}

	env, err := setup(options)
	if err != nil {
		return err
	}

	defer env.Close()

	g, err := env.group(options)
	if err != nil {
		return err
	}

	path := g.Full
	if cmd.filtered {
		path = g.Filtered
	}

	sheets, err := workbook.Read(path)
	if err != nil {
		return err
	}

	data, ok := sheets.Get(cmd.sheet)
	if !ok {
		return domain.ErrConfiguration("no worksheet '%s' in %s (expected one of %s)", cmd.sheet, path, strings.Join(sheets.Names(), ", "))
	}

	file := cmd.file
	if file == "" {
		file = env.config.Path(fmt.Sprintf("%s - %s.tsv", cmd.sheet, time.Now().Format("2006-01-02T150405")))
	}

	if err := exportTSV(file, data); err != nil {
		return err
	}

	env.log.Info("exported", "group", g.Name, "sheet", cmd.sheet, "records", len(data.Rows), "file", file)

	return nil
}

func exportTSV(file string, data *domain.Dataset) error {
	tmp, err := os.CreateTemp(os.TempDir(), "dataextract-*.tsv")
	if err != nil {
		return domain.ErrIOFailure("unable to create temporary file (%w)", err)
	}

	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := workbook.WriteTSV(tmp, data); err != nil {
		return err
	}

	if err := tmp.Close(); err != nil {
		return domain.ErrIOFailure("error writing TSV file (%w)", err)
	}

	if err := os.MkdirAll(filepath.Dir(file), 0770); err != nil {
		return domain.ErrIOFailure("unable to create directory for '%s' (%w)", file, err)
	}

	if err := os.Rename(tmp.Name(), file); err != nil {
		return domain.ErrIOFailure("unable to write '%s' (%w)", file, err)
	}

	return nil
}
