package terminal

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/commands"
	"github.com/de-tools/cloud-sentry/pkg/runtime/terminal/export"
)

// CLI represents the command-line interface
type CLI struct {
	logger   zerolog.Logger
	reporter *export.Reporter
	rootCmd  *cobra.Command
}

// Options contain configuration for the CLI
type Options struct {
	Logger zerolog.Logger
	Output io.Writer
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	cli := &CLI{
		logger:   opts.Logger,
		reporter: export.NewReporter(opts.Output),
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute() error {
	return cli.rootCmd.Execute()
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentry",
		Short: "Cloud compliance scanner and remediation tool",
	}

	cmd.AddCommand(commands.NewScanCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewScoreCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewFixCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewFindingsCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewAuditCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewReportCmd(cli.logger, cli.reporter))
	cmd.AddCommand(commands.NewControlsCmd(cli.reporter))

	return cmd
}
