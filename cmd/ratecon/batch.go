package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ratecon-intake/internal/export"
)

func newBatchCmd(c *cli) *cobra.Command {
	var (
		dir          string
		out          string
		workers      int
		templateFile string
		watch        bool
		includeDots  bool
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Extract every PDF of a directory into an XLSX report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				return errors.New("--dir is required")
			}
			if out == "" {
				out = filepath.Join(filepath.Dir(filepath.Clean(dir)), "ratecons.xlsx")
			}
			if workers <= 0 {
				workers = c.cfg.Pipeline.BatchWorkers
			}
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
			runner := export.NewRunner(st.Processor, workers, tmpl, c.logger)
			ctx := cmd.Context()

			paths, stats, err := export.ScanDir(ctx, dir, !includeDots)
			if err != nil {
				return err
			}
			c.logger.Info("scan complete", "dir", dir, "scanned", stats.Scanned, "matched", stats.Matched, "failed", stats.Failed)

			items, sum := runner.Run(ctx, paths)
			if err := writeReport(out, items); err != nil {
				return err
			}
			printf(cmd, "processed %d, failed %d in %s -> %s\n", sum.Processed, sum.Failed, sum.Elapsed.Round(time.Millisecond), out)

			if !watch {
				return nil
			}
			return watchDir(ctx, c, runner, dir, out, items)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory with Rate Confirmation PDFs (required)")
	cmd.Flags().StringVar(&out, "out", "", "output XLSX path (default: ratecons.xlsx next to --dir)")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel documents (default pipeline.batch_workers)")
	cmd.Flags().StringVar(&templateFile, "template-file", "", "template used for the rendered text")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep running and process PDFs as they appear")
	cmd.Flags().BoolVar(&includeDots, "include-hidden", false, "also process hidden files and directories")
	return cmd
}

// watchDir processes new PDFs until ctx ends, rewriting the report after each one.
func watchDir(ctx context.Context, c *cli, runner *export.Runner, dir, out string, items []export.Item) error {
	events, errs, err := export.Watch(ctx, export.WatchConfig{Roots: []string{dir}, Debounce: 500 * time.Millisecond}, c.logger)
	if err != nil {
		return err
	}
	c.logger.Info("watching for new documents", "dir", dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-errs:
			if ok {
				c.logger.Warn("watch error", "error", err)
			}
		case p, ok := <-events:
			if !ok {
				return nil
			}
			got, _ := runner.Run(ctx, []string{p})
			items = append(items, got...)
			if err := writeReport(out, items); err != nil {
				c.logger.Error("report not written", "out", out, "error", err)
			}
		}
	}
}

func writeReport(out string, items []export.Item) error {
	data, err := export.ReportXLSX(items)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
