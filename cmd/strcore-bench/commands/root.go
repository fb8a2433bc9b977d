// Package commands implements the strcore-bench commands.
package commands

import (
	"context"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rawbytedev/strcore"
)

// CLI is the strcore-bench command tree.
type CLI struct {
	out     io.Writer
	logger  *zap.Logger
	rootCmd *cobra.Command
}

// New builds the command tree; reports go to out.
func New(out io.Writer) *CLI {
	rootCmd := &cobra.Command{
		Use:           "strcore-bench",
		Short:         "Exercise string cores under synthetic workloads",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log every category transition")
	rootCmd.SetOut(out)

	c := &CLI{out: out, logger: zap.NewNop(), rootCmd: rootCmd}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		verbose, err := cmd.Flags().GetBool("verbose")
		if err != nil {
			return err
		}
		return c.setupLogger(verbose)
	}
	rootCmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		_ = c.logger.Sync()
		strcore.SetLogger(nil)
	}

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newVersionCmd())
	return c
}

func (c *CLI) setupLogger(verbose bool) error {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if verbose {
		cfg.Level.SetLevel(zapcore.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	c.logger = l
	strcore.SetLogger(l.Named("strcore"))
	return nil
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}
