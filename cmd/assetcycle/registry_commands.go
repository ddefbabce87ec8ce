package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"assetcycle/internal/creative"
	"assetcycle/internal/registry"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the creative asset registry",
	}
	cmd.AddCommand(newRegistryListCommand(ctx))
	cmd.AddCommand(newRegistryShowCommand(ctx))
	cmd.AddCommand(newRegistryProtectCommand(ctx))
	cmd.AddCommand(newRegistryUnprotectCommand(ctx))
	cmd.AddCommand(newRegistryArchiveCommand(ctx))
	return cmd
}

func newRegistryListCommand(ctx *commandContext) *cobra.Command {
	var typeFlag, statusFlag string
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := registry.Filter{IncludeArchived: all}
			if strings.TrimSpace(typeFlag) != "" {
				t, err := creative.ParseAssetType(typeFlag)
				if err != nil {
					return err
				}
				filter.Type = t
			}
			if strings.TrimSpace(statusFlag) != "" {
				s, err := creative.ParseAssetStatus(statusFlag)
				if err != nil {
					return err
				}
				filter.Status = s
			}
			reg, err := ctx.registryStore()
			if err != nil {
				return err
			}
			assets, err := reg.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, assets)
			}
			out := cmd.OutOrStdout()
			if len(assets) == 0 {
				fmt.Fprintln(out, "No registry assets")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(assets))
			for _, a := range assets {
				status := string(a.Status)
				if a.Archived {
					status += " (archived)"
				}
				rows = append(rows, []string{
					a.ID,
					string(a.Type),
					string(a.SourceType),
					a.Concept,
					status,
					colorLabel(a.BestPerformance, colorize),
					colorLabel(a.CurrentPerformance, colorize),
					strconv.Itoa(a.TimesActivated),
					strconv.FormatInt(a.TotalImpressions, 10),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Asset", "Type", "Source", "Concept", "Status", "Best", "Current", "Activations", "Impressions"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", "", "Filter by asset type")
	cmd.Flags().StringVar(&statusFlag, "status", "", "Filter by ACTIVE or PAUSED")
	cmd.Flags().BoolVar(&all, "all", false, "Include archived assets")
	return cmd
}

func newRegistryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <asset-id>",
		Short: "Show one registry asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireArg(args, "asset id")
			if err != nil {
				return err
			}
			reg, err := ctx.registryStore()
			if err != nil {
				return err
			}
			a, err := reg.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a == nil {
				return fmt.Errorf("asset %s: %w", id, registry.ErrNotFound)
			}
			protected, err := reg.IsProtected(cmd.Context(), a)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, struct {
					*registry.Asset
					Protected bool `json:"protected"`
				}{a, protected})
			}
			rows := [][]string{
				{"ID", a.ID},
				{"Type", string(a.Type)},
				{"Source", string(a.SourceType)},
				{"Source id", a.SourceID},
				{"Concept", a.Concept},
				{"Name", a.Name},
				{"Text", a.Text},
				{"Status", string(a.Status)},
				{"Pause reason", a.PauseReason},
				{"Best", string(a.BestPerformance)},
				{"Current", string(a.CurrentPerformance)},
				{"Activations", strconv.Itoa(a.TimesActivated)},
				{"Impressions", strconv.FormatInt(a.TotalImpressions, 10)},
				{"Protected", strconv.FormatBool(protected)},
				{"Archived", strconv.FormatBool(a.Archived)},
				{"First seen", a.FirstSeenAt.Format("2006-01-02 15:04:05")},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}

func newRegistryProtectCommand(ctx *commandContext) *cobra.Command {
	var kind, reason string
	cmd := &cobra.Command{
		Use:   "protect <value>",
		Short: "Exclude a concept or source id from replacement searches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := requireArg(args, "value")
			if err != nil {
				return err
			}
			k, err := registry.ParseProtectionKind(kind)
			if err != nil {
				return err
			}
			reg, err := ctx.registryStore()
			if err != nil {
				return err
			}
			if err := reg.Protect(cmd.Context(), k, value, strings.TrimSpace(reason)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Protected %s %q\n", k, value)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(registry.ProtectConcept), "What to match: concept or source")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the creative is protected")
	return cmd
}

func newRegistryUnprotectCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "unprotect <value>",
		Short: "Remove a protection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := requireArg(args, "value")
			if err != nil {
				return err
			}
			k, err := registry.ParseProtectionKind(kind)
			if err != nil {
				return err
			}
			reg, err := ctx.registryStore()
			if err != nil {
				return err
			}
			removed, err := reg.Unprotect(cmd.Context(), k, value)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s protection for %q\n", k, value)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unprotected %s %q\n", k, value)
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(registry.ProtectConcept), "What to match: concept or source")
	return cmd
}

func newRegistryArchiveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <asset-id>",
		Short: "Hide an asset from listings and replacement searches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := requireArg(args, "asset id")
			if err != nil {
				return err
			}
			reg, err := ctx.registryStore()
			if err != nil {
				return err
			}
			if err := reg.Archive(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", id)
			return nil
		},
	}
}
