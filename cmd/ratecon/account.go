package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ratecon-intake/internal/profiles"
	"github.com/joseph-ayodele/ratecon-intake/internal/render"
	"github.com/joseph-ayodele/ratecon-intake/internal/repository"
)

func newTemplateCmd(c *cli) *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Show, set or reset a user's summary template",
	}
	cmd.PersistentFlags().Int64Var(&userID, "user", 0, "Telegram user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the template in effect for the user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				tmpl, err := svc.Template(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if tmpl == "" {
					printf(cmd, "(default)\n%s\n", strings.TrimSpace(render.DefaultTemplate))
					return nil
				}
				printf(cmd, "%s\n", tmpl)
				return nil
			})
		},
	}

	var file string
	set := &cobra.Command{
		Use:   "set [EXAMPLE...]",
		Short: "Store a template built from an example summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			example := strings.Join(args, " ")
			if file != "" {
				b, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("read example: %w", err)
				}
				example = string(b)
			}
			if strings.TrimSpace(example) == "" {
				return errors.New("provide an example with --file or as arguments")
			}
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				tmpl, err := svc.SetTemplate(cmd.Context(), userID, example)
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", tmpl)
				return nil
			})
		},
	}
	set.Flags().StringVar(&file, "file", "", "read the example summary from a file")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Go back to the default template",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				if err := svc.ResetTemplate(cmd.Context(), userID); err != nil {
					return err
				}
				printf(cmd, "template reset\n")
				return nil
			})
		},
	}

	cmd.AddCommand(show, set, reset)
	return cmd
}

func newUserCmd(c *cli) *cobra.Command {
	var (
		userID   int64
		username string
		days     int
	)
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage registered users",
	}
	cmd.PersistentFlags().Int64Var(&userID, "user", 0, "Telegram user ID (required)")
	_ = cmd.MarkPersistentFlagRequired("user")

	register := &cobra.Command{
		Use:   "register",
		Short: "Create the user if missing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				u, err := svc.Register(cmd.Context(), userID, username)
				if err != nil {
					return err
				}
				printf(cmd, "user %d registered (%d free uses)\n", u.TelegramID, u.FreeUses)
				return nil
			})
		},
	}
	register.Flags().StringVar(&username, "username", "", "Telegram username")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the user's plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				st, err := svc.Status(cmd.Context(), userID)
				if err != nil {
					return err
				}
				printf(cmd, "%s\n", st.Text())
				return nil
			})
		},
	}

	grant := &cobra.Command{
		Use:   "grant-pro",
		Short: "Give the user Pro access for a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withAccounts(cmd.Context(), func(svc *profiles.Service) error {
				until, err := svc.GrantPro(cmd.Context(), userID, days)
				if err != nil {
					return err
				}
				printf(cmd, "user %d is Pro until %s\n", userID, until.Format("02.01.2006"))
				return nil
			})
		},
	}
	grant.Flags().IntVar(&days, "days", 30, "length of the Pro period")

	cmd.AddCommand(register, status, grant)
	return cmd
}

func newDBCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Open the database, apply the schema and ping it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withDB(cmd.Context(), func(db *repository.DB) error {
				if err := repository.HealthCheck(cmd.Context(), db, c.cfg.Database.DialTimeout, c.logger); err != nil {
					return err
				}
				printf(cmd, "ok (%s)\n", db.Dialect)
				return nil
			})
		},
	})
	return cmd
}
