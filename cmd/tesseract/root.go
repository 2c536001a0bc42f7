// Package main is the tesseract server binary: a cobra command tree
// exposing "serve" and "validate-schema" over a shared config/logger
// setup, the same root/subcommand split the reference toolbox's own
// cli package uses.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tesseract-olap/tesseract/internal/config"
	"github.com/tesseract-olap/tesseract/internal/log"
)

// rootCommand holds the state every subcommand needs: the decoded
// config and the logger built from its log_format/log_level, set up
// once in PersistentPreRunE rather than duplicated per subcommand.
type rootCommand struct {
	*cobra.Command

	cfgFile string
	cfg     *config.Config
	logger  log.Logger
	out     io.Writer
}

func newRootCommand() *rootCommand {
	root := &rootCommand{out: os.Stdout}
	cmd := &cobra.Command{
		Use:           "tesseract",
		Short:         "tesseract serves multidimensional OLAP queries over a SQL warehouse",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(root.out)
	cmd.PersistentFlags().StringVar(&root.cfgFile, "config", "tesseract.yaml", "path to the server config file")

	cmd.PersistentPreRunE = func(c *cobra.Command, args []string) error {
		cfg, err := config.Load(root.cfgFile)
		if err != nil {
			return err
		}
		root.cfg = cfg

		logger, err := log.NewLogger(cfg.Server.LogFormat, cfg.Server.LogLevel, root.out, os.Stderr)
		if err != nil {
			return fmt.Errorf("configuring logger: %w", err)
		}
		root.logger = logger
		return nil
	}

	root.Command = cmd
	cmd.AddCommand(newServeCommand(root))
	cmd.AddCommand(newValidateSchemaCommand(root))
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
