package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newExtractCmd(c *cli) *cobra.Command {
	var (
		templateFile string
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "extract FILE.pdf",
		Short: "Extract one Rate Confirmation and print the rendered summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl := ""
			if templateFile != "" {
				b, err := os.ReadFile(templateFile)
				if err != nil {
					return fmt.Errorf("read template: %w", err)
				}
				tmpl = string(b)
			}
			st, err := c.stack()
			if err != nil {
				return err
			}
			out, err := st.Processor.Process(cmd.Context(), args[0], tmpl)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"record":     out.Record,
					"text":       out.Text,
					"method":     out.Method,
					"pages":      out.Pages,
					"layers":     out.Layers,
					"warnings":   out.Warnings,
					"elapsed_ms": out.Duration.Milliseconds(),
				})
			}
			printf(cmd, "%s\n", out.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&templateFile, "template-file", "", "render with this template instead of the default layout")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the record and run details as JSON")
	return cmd
}

// newTextCmd prints what text acquisition sees, for debugging OCR issues.
func newTextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "text FILE.pdf",
		Short: "Print the text layer (or OCR transcript) of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.stack()
			if err != nil {
				return err
			}
			res := st.OCR.Acquire(cmd.Context(), args[0])
			c.logger.Info("text acquired", "method", res.Method, "pages", res.Pages, "chars", len(res.Text), "duration_ms", res.Duration.Milliseconds())
			for _, w := range res.Warnings {
				c.logger.Warn("acquisition warning", "detail", w)
			}
			if strings.TrimSpace(res.Text) == "" {
				return fmt.Errorf("no text found in %s", args[0])
			}
			printf(cmd, "%s\n", res.Text)
			return nil
		},
	}
}
