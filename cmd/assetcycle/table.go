package main

import (
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"

	"assetcycle/internal/changes"
	"assetcycle/internal/creative"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
			WidthMax:    60,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorStatus(status changes.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case changes.StatusExecuted:
		return text.FgGreen.Sprint(status)
	case changes.StatusFailed:
		return text.FgRed.Sprint(status)
	case changes.StatusApproved:
		return text.FgCyan.Sprint(status)
	case changes.StatusPending:
		return text.FgYellow.Sprint(status)
	default:
		return string(status)
	}
}

func colorOutcome(outcome changes.Outcome, colorize bool) string {
	if !colorize || outcome == "" {
		return string(outcome)
	}
	switch outcome {
	case changes.OutcomeOK:
		return text.FgGreen.Sprint(outcome)
	case changes.OutcomePartialReplace:
		return text.Colors{text.FgRed, text.Bold}.Sprint(outcome)
	default:
		return text.FgRed.Sprint(outcome)
	}
}

func colorLabel(label creative.Label, colorize bool) string {
	if !colorize {
		return string(label)
	}
	switch label {
	case creative.LabelBest:
		return text.FgGreen.Sprint(label)
	case creative.LabelLow:
		return text.FgRed.Sprint(label)
	default:
		return string(label)
	}
}
