package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version is overridden at build time with
// -ldflags "-X batch-runner/internal/cli.Version=<tag>".
var Version = "dev"

// Run executes the command line. SIGINT and SIGTERM cancel a running job.
func Run(args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(stdout, stderr)
	return root.Run(ctx, append([]string{root.Name}, args...))
}

func newRootCommand(stdout, stderr io.Writer) *cli.Command {
	return &cli.Command{
		Name:      "batch-runner",
		Usage:     "run batch export jobs through an external converter",
		Writer:    stdout,
		ErrWriter: stderr,
		Commands: []*cli.Command{
			exportCommand(),
			historyCommand(),
			{
				Name:  "version",
				Usage: "print the version",
				Action: func(_ context.Context, cmd *cli.Command) error {
					_, err := fmt.Fprintf(cmd.Root().Writer, "batch-runner %s\n", Version)
					return err
				},
			},
		},
	}
}
