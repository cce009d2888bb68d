// Package cli implements the rsort command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrMahile/rsort/pkg/dedup"
)

// Version is set at build time with -ldflags "-X".
var Version = "dev"

// Process exit codes.
const (
	ExitOK          = 0
	ExitUsage       = 1
	ExitInput       = 2
	ExitOutput      = 3
	ExitIO          = 4
	ExitInterrupted = 130
)

// Run executes the CLI with the given arguments and returns the exit code.
// SIGINT and SIGTERM cancel the run at the next line boundary.
func Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return ExitCode(err)
}

// ExitCode maps an error returned by a command to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, context.Canceled):
		return ExitInterrupted
	case errors.Is(err, dedup.ErrInputUnavailable):
		return ExitInput
	case errors.Is(err, dedup.ErrOutputUnwritable):
		return ExitOutput
	case errors.Is(err, dedup.ErrIO):
		return ExitIO
	default:
		return ExitUsage
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "rsort INPUT OUTPUT",
		Short: "Remove duplicate lines, ignoring case, keeping first occurrences",
		Long: `rsort streams INPUT in line-aligned chunks and writes every line whose
case-folded content has not been seen before to OUTPUT, in input order.

INPUT and OUTPUT are local paths or s3://bucket/key URIs.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDedup(cmd, opts, args[0], args[1])
		},
	}
	opts.register(root)
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rsort version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "rsort %s\n", Version)
		},
	}
}
