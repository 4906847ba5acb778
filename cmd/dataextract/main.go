package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/uoloki/microsoft-dataextract/commands"
)

var cli = []commands.Command{
	&commands.RunCmd,
	&commands.AcquireCmd,
	&commands.FilterCmd,
	&commands.ExportCmd,
	&commands.PublishCmd,
	&commands.PullCmd,
	&commands.AuthoriseCmd,
	&commands.ArchiveCmd,
	&commands.VersionCmd,
}

var options = commands.Options{
	Debug: false,
}

func main() {
	root := cobra.Command{
		Use:           commands.APP,
		Short:         "Harvests Microsoft platform metadata into reviewable workbooks",
		Long:          "Acquires metadata from Microsoft Graph, Purview, Azure Blockchain and SCCM, writes an annotated workbook per source and reduces each reviewed workbook to the columns marked 'Y'.",
		Version:       commands.VERSION,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return commands.RunCmd.Execute(cmd.Context(), &options)
		},
	}

	root.PersistentFlags().StringVar(&options.Config, "config", options.Config, fmt.Sprintf("Settings file (default %s)", commands.DEFAULT_CONFIG))
	root.PersistentFlags().StringVar(&options.Workdir, "workdir", options.Workdir, fmt.Sprintf("Directory for workbooks, logs and tokens (default %s)", commands.DEFAULT_WORKDIR))
	root.PersistentFlags().StringSliceVar(&options.Sources, "source", options.Sources, "Restricts the run to the named sources (graph, purview, blockchain, inventory)")
	root.PersistentFlags().BoolVar(&options.Debug, "debug", options.Debug, "Enables debug logging")

	for _, c := range cli {
		root.AddCommand(commands.NewCobra(c, &options))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)

	if err := root.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	cancel()
}
