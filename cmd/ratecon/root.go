package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/ratecon-intake/internal/app"
	"github.com/joseph-ayodele/ratecon-intake/internal/common"
	"github.com/joseph-ayodele/ratecon-intake/internal/profiles"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
)

// cli carries what every subcommand needs once flags are parsed.
type cli struct {
	cfgFile string
	v       *viper.Viper
	cfg     *common.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	root := &cobra.Command{
		Use:   "ratecon",
		Short: "Turn Rate Confirmation PDFs into dispatch summaries",
		Long: `ratecon reads Rate Confirmation PDFs, extracts broker, load number, rate, miles and
stops, and renders them as a short dispatch message.

Examples:
  ratecon extract rc.pdf
  ratecon batch --dir ./inbox --out report.xlsx
  ratecon template set --user 42 --file example.txt
  ratecon user grant-pro --user 42 --days 30`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is search in ., $HOME/.config/ratecon, /etc/ratecon)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output (equivalent to --log-level=debug)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("merge-policy", "", "extraction merge policy (deterministic-first, ai-first)")
	_ = c.v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))
	_ = c.v.BindPFlag("pipeline.merge_policy", root.PersistentFlags().Lookup("merge-policy"))

	root.AddCommand(
		newExtractCmd(c),
		newTextCmd(c),
		newBatchCmd(c),
		newTemplateCmd(c),
		newUserCmd(c),
		newDBCmd(c),
	)
	return root
}

func (c *cli) init(cmd *cobra.Command) error {
	cfg, err := common.NewLoader(c.v).Load(c.cfgFile)
	if err != nil {
		return err
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	c.cfg = cfg
	// Logs go to stderr; stdout carries command output.
	c.logger = common.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(c.logger)
	return nil
}

func (c *cli) stack() (*app.Stack, error) {
	return app.BuildStack(c.cfg, c.logger)
}

// withAccounts opens the user store for the duration of fn.
func (c *cli) withAccounts(ctx context.Context, fn func(*profiles.Service) error) error {
	db, err := app.OpenDatabase(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer db.Close(c.logger)

	var st *app.Stack
	if c.cfg.AIEnabled() {
		if st, err = c.stack(); err != nil {
			return err
		}
	}
	return fn(app.NewAccounts(db, c.cfg, st, c.logger))
}

func (c *cli) withDB(ctx context.Context, fn func(*repository.DB) error) error {
	db, err := app.OpenDatabase(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer db.Close(c.logger)
	return fn(db)
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
