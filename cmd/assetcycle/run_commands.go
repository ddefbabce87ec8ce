package main

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"assetcycle/internal/workflow"
)

func newAnalyzeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Classify live assets, store proposals, and apply AUTO changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			summary, err := runner.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, summary)
			}
			printAnalysis(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newExecuteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "execute",
		Short: "Execute approved and pending AUTO changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			summary, err := runner.Execute(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, summary)
			}
			printExecution(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Analyze, then sweep every executable change",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := ctx.runner()
			if err != nil {
				return err
			}
			analysis, err := runner.Analyze(cmd.Context())
			if err != nil {
				return err
			}
			execution, err := runner.Execute(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, struct {
					Analysis  workflow.AnalysisSummary  `json:"analysis"`
					Execution workflow.ExecutionSummary `json:"execution"`
				}{analysis, execution})
			}
			out := cmd.OutOrStdout()
			printAnalysis(out, analysis)
			fmt.Fprintln(out)
			printExecution(out, execution)
			return nil
		},
	}
}

func printAnalysis(out io.Writer, s workflow.AnalysisSummary) {
	fmt.Fprintf(out, "Run %s\n", s.RunID)
	if s.NoActionNeeded() && s.Execution.Attempted == 0 {
		fmt.Fprintf(out, "%d campaign(s) analyzed: no action needed\n", s.Analyzed)
		return
	}
	rows := [][]string{
		{"Campaigns analyzed", fmt.Sprintf("%d/%d", s.Analyzed, s.Campaigns)},
		{"Proposed", strconv.Itoa(s.Proposed)},
		{"AUTO", strconv.Itoa(s.Auto)},
		{"Pending approval", strconv.Itoa(s.Pending)},
		{"Skipped", strconv.Itoa(s.Skipped)},
		{"Already open", strconv.Itoa(s.Duplicates)},
		{"Label anomalies", strconv.Itoa(s.Anomalies)},
	}
	fmt.Fprintln(out, renderTable([]string{"Analysis", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(s.Failures) > 0 {
		failures := make([][]string, 0, len(s.Failures))
		for _, f := range s.Failures {
			failures = append(failures, []string{f.CampaignID, f.Message, f.Hint})
		}
		fmt.Fprintln(out, renderTable([]string{"Campaign", "Error", "Next step"}, failures, nil))
	}
	if s.Execution.Attempted > 0 || s.Execution.Interrupted {
		printExecution(out, s.Execution)
	}
}

func printExecution(out io.Writer, s workflow.ExecutionSummary) {
	if s.Attempted == 0 && !s.Interrupted {
		fmt.Fprintln(out, "No executable changes: no action needed")
		return
	}
	rows := [][]string{
		{"Attempted", strconv.Itoa(s.Attempted)},
		{"Executed", strconv.Itoa(s.Executed)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Partial replace", strconv.Itoa(s.Partial)},
		{"Duration", s.Duration.Round(time.Second).String()},
	}
	if s.Interrupted {
		rows = append(rows, []string{"Left for next sweep", strconv.Itoa(s.Remaining)})
	}
	fmt.Fprintln(out, renderTable([]string{"Execution", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(s.Errors) > 0 {
		errs := make([][]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			errs = append(errs, []string{strconv.FormatInt(e.ChangeID, 10), e.CampaignID, string(e.Outcome), e.Message})
		}
		fmt.Fprintln(out, renderTable([]string{"Change", "Campaign", "Outcome", "Message"}, errs, []columnAlignment{alignRight}))
	}
	if s.Partial > 0 {
		fmt.Fprintln(out, "PARTIAL REPLACE: some ads hold both the old and the new asset; remove the old one by hand or queue a REMOVE.")
	}
	if s.Interrupted {
		fmt.Fprintln(out, "Run budget exhausted; run `assetcycle execute` again to continue.")
	}
}
