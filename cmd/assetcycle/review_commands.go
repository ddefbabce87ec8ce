package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"assetcycle/internal/changes"
	"assetcycle/internal/review"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Exchange change requests with reviewers through a workbook",
	}
	cmd.AddCommand(newReviewExportCommand(ctx))
	cmd.AddCommand(newReviewImportCommand(ctx))
	return cmd
}

func newReviewExportCommand(ctx *commandContext) *cobra.Command {
	var path string
	var all bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write change requests to the review workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target, err := workbookTarget(path, cfg.WorkbookPath())
			if err != nil {
				return err
			}
			store, err := ctx.changeStore()
			if err != nil {
				return err
			}
			filter := changes.ListFilter{}
			if !all {
				filter.Statuses = []changes.Status{changes.StatusPending}
			}
			list, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if err := review.Export(target, cfg.Review.SheetName, list); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d change(s) to %s\n", len(list), target)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Workbook path (defaults to the configured review dir)")
	cmd.Flags().BoolVar(&all, "all", false, "Export every change, not only PENDING ones")
	return cmd
}

func newReviewImportCommand(ctx *commandContext) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply reviewer decisions from the review workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			target, err := workbookTarget(path, cfg.WorkbookPath())
			if err != nil {
				return err
			}
			store, err := ctx.changeStore()
			if err != nil {
				return err
			}
			result, err := review.Import(cmd.Context(), store, target, cfg.Review.SheetName)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Approved %d, rejected %d, unchanged %d, ignored %d\n",
				result.Approved, result.Rejected, result.Unchanged, result.Ignored)
			for _, rowErr := range result.Errors {
				fmt.Fprintf(out, "  %s\n", rowErr.Error())
			}
			if len(result.Errors) > 0 {
				return fmt.Errorf("%d row(s) could not be applied", len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "Workbook path (defaults to the configured review dir)")
	return cmd
}

func workbookTarget(flag, fallback string) (string, error) {
	if strings.TrimSpace(flag) == "" {
		return fallback, nil
	}
	return expandPath(flag)
}
