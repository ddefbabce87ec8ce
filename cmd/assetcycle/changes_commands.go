package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"assetcycle/internal/changes"
	"assetcycle/internal/creative"
	"assetcycle/internal/registry"
)

func newChangesCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "changes",
		Aliases: []string{"change"},
		Short:   "Inspect, review and queue change requests",
	}
	cmd.AddCommand(newChangesListCommand(ctx))
	cmd.AddCommand(newChangesShowCommand(ctx))
	cmd.AddCommand(newChangesReviewCommand(ctx, "approve", changes.StatusApproved))
	cmd.AddCommand(newChangesReviewCommand(ctx, "reject", changes.StatusRejected))
	cmd.AddCommand(newChangesAddCommand(ctx))
	cmd.AddCommand(newChangesReactivateCommand(ctx))
	return cmd
}

func newChangesListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var campaign string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List change requests, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.changeStore()
			if err != nil {
				return err
			}
			filter := changes.ListFilter{CampaignID: strings.TrimSpace(campaign), Limit: limit}
			for _, raw := range statusFlags {
				status, err := changes.ParseStatus(raw)
				if err != nil {
					return err
				}
				filter.Statuses = append(filter.Statuses, status)
			}
			list, err := store.List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, list)
			}
			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No change requests")
				return nil
			}
			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(list))
			for _, c := range list {
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10),
					c.CampaignID,
					string(c.AssetType),
					string(c.Action),
					string(c.ApprovalMode),
					colorStatus(c.Status, colorize),
					colorOutcome(c.Outcome, colorize),
					c.Reason,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Campaign", "Type", "Action", "Approval", "Status", "Outcome", "Reason"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&campaign, "campaign", "", "Filter by campaign id")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum rows to show")
	return cmd
}

func newChangesShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one change request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChangeID(args)
			if err != nil {
				return err
			}
			store, err := ctx.changeStore()
			if err != nil {
				return err
			}
			c, err := store.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if c == nil {
				return fmt.Errorf("change %d: %w", id, changes.ErrNotFound)
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, c)
			}
			printChange(cmd, c)
			return nil
		},
	}
}

func printChange(cmd *cobra.Command, c *changes.Change) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	rows := [][]string{
		{"ID", strconv.FormatInt(c.ID, 10)},
		{"Run", c.RunID},
		{"Campaign", c.CampaignID},
		{"Ad group", c.AdGroupID},
		{"Ad", c.AdID},
		{"Type", string(c.AssetType)},
		{"Action", string(c.Action)},
		{"Current asset", c.CurrentAssetID},
		{"New asset", c.NewAsset.Describe()},
		{"Approval", string(c.ApprovalMode)},
		{"Status", colorStatus(c.Status, colorize)},
		{"Outcome", colorOutcome(c.Outcome, colorize)},
		{"Label", colorLabel(c.Label, colorize)},
		{"Impressions", strconv.FormatInt(c.Impressions, 10)},
		{"Reason", c.Reason},
		{"Reviewer note", c.ReviewerNote},
		{"Result", c.ResultMessage},
		{"Added asset", c.AddedAssetID},
		{"Created", c.CreatedAt.Format("2006-01-02 15:04:05")},
	}
	if c.ExecutedAt != nil {
		rows = append(rows, []string{"Executed", c.ExecutedAt.Format("2006-01-02 15:04:05")})
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	if len(c.Snapshot) > 0 {
		refs := make([]string, 0, len(c.Snapshot))
		for _, ref := range c.Snapshot {
			refs = append(refs, ref.String())
		}
		fmt.Fprintf(out, "Snapshot at proposal: %s\n", strings.Join(refs, ", "))
	}
}

func newChangesReviewCommand(ctx *commandContext, verb string, decision changes.Status) *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   verb + " <id>",
		Short: fmt.Sprintf("Mark a PENDING change %s", decision),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChangeID(args)
			if err != nil {
				return err
			}
			store, err := ctx.changeStore()
			if err != nil {
				return err
			}
			c, err := store.Review(cmd.Context(), id, decision, strings.TrimSpace(note))
			if err != nil {
				if errors.Is(err, changes.ErrInvalidTransition) {
					return fmt.Errorf("change %d is no longer PENDING: %w", id, err)
				}
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Change %d %s\n", c.ID, c.Status)
			return nil
		},
	}
	cmd.Flags().StringVarP(&note, "note", "n", "", "Reviewer note stored with the decision")
	return cmd
}

type addOptions struct {
	campaign  string
	adGroup   string
	assetType string
	replace   string
	assetID   string
	youtube   string
	imageURL  string
	text      string
	name      string
	concept   string
	reason    string
	auto      bool
}

func newChangesAddCommand(ctx *commandContext) *cobra.Command {
	var opts addOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Queue a manual ADD or REPLACE change",
		Long: "Queue a change that links a registry asset (--asset) or a new external creative " +
			"(--youtube, --image-url or --text) to the app ad of one ad group. " +
			"With --replace the named asset is unlinked once the new one is in place.",
		RunE: func(cmd *cobra.Command, args []string) error {
			assetType, err := creative.ParseAssetType(opts.assetType)
			if err != nil {
				return err
			}
			source, err := opts.source(cmd, ctx, assetType)
			if err != nil {
				return err
			}
			action := changes.ActionAdd
			if strings.TrimSpace(opts.replace) != "" {
				action = changes.ActionReplace
			}
			reason := strings.TrimSpace(opts.reason)
			if reason == "" {
				reason = "manual request"
			}
			return queueManualChange(cmd, ctx, &changes.Change{
				CampaignID:     strings.TrimSpace(opts.campaign),
				AdGroupID:      strings.TrimSpace(opts.adGroup),
				AssetType:      assetType,
				Action:         action,
				CurrentAssetID: strings.TrimSpace(opts.replace),
				NewAsset:       source,
				ApprovalMode:   approvalFor(opts.auto),
				Reason:         reason,
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.campaign, "campaign", "", "Campaign id")
	flags.StringVar(&opts.adGroup, "ad-group", "", "Ad group id")
	flags.StringVar(&opts.assetType, "type", "", "Asset type (VIDEO, IMAGE, HEADLINE, DESCRIPTION)")
	flags.StringVar(&opts.replace, "replace", "", "Asset to unlink after the new one is linked")
	flags.StringVar(&opts.assetID, "asset", "", "Registry asset id to reuse")
	flags.StringVar(&opts.youtube, "youtube", "", "YouTube video id for a new VIDEO asset")
	flags.StringVar(&opts.imageURL, "image-url", "", "Image URL for a new IMAGE asset")
	flags.StringVar(&opts.text, "text", "", "Text for a new HEADLINE or DESCRIPTION asset")
	flags.StringVar(&opts.name, "name", "", "Display name for a new asset")
	flags.StringVar(&opts.concept, "concept", "", "Creative concept tag")
	flags.StringVar(&opts.reason, "reason", "", "Reason recorded with the change")
	flags.BoolVar(&opts.auto, "auto", false, "Skip review and execute on the next sweep")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("ad-group")
	_ = cmd.MarkFlagRequired("type")
	cmd.MarkFlagsMutuallyExclusive("asset", "youtube", "image-url", "text")
	cmd.MarkFlagsOneRequired("asset", "youtube", "image-url", "text")
	return cmd
}

func (o addOptions) source(cmd *cobra.Command, ctx *commandContext, t creative.AssetType) (*changes.Source, error) {
	if id := strings.TrimSpace(o.assetID); id != "" {
		reg, err := ctx.registryStore()
		if err != nil {
			return nil, err
		}
		asset, err := reg.Get(cmd.Context(), id)
		if err != nil {
			return nil, err
		}
		if asset == nil {
			return nil, fmt.Errorf("asset %s: %w", id, registry.ErrNotFound)
		}
		if asset.Type != t {
			return nil, fmt.Errorf("asset %s is %s, not %s", id, asset.Type, t)
		}
		return &changes.Source{Kind: changes.SourceRegistryReuse, ID: id}, nil
	}
	return &changes.Source{
		Kind: changes.SourceExternal,
		Payload: &creative.Payload{
			Name:           strings.TrimSpace(o.name),
			YouTubeVideoID: strings.TrimSpace(o.youtube),
			ImageURL:       strings.TrimSpace(o.imageURL),
			Text:           strings.TrimSpace(o.text),
			Concept:        strings.TrimSpace(o.concept),
		},
	}, nil
}

func newChangesReactivateCommand(ctx *commandContext) *cobra.Command {
	var campaign, adGroup, reason string
	var auto bool
	cmd := &cobra.Command{
		Use:   "reactivate <asset-id>",
		Short: "Queue a change that relinks a paused registry asset",
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
			asset, err := reg.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asset == nil {
				return fmt.Errorf("asset %s: %w", id, registry.ErrNotFound)
			}
			if asset.Status != creative.StatusPaused {
				return fmt.Errorf("asset %s is %s; only PAUSED assets can be reactivated", id, asset.Status)
			}
			if strings.TrimSpace(reason) == "" {
				reason = fmt.Sprintf("reactivate %s asset (best %s)", asset.Type, asset.BestPerformance)
			}
			return queueManualChange(cmd, ctx, &changes.Change{
				CampaignID:   strings.TrimSpace(campaign),
				AdGroupID:    strings.TrimSpace(adGroup),
				AssetType:    asset.Type,
				Action:       changes.ActionReactivate,
				NewAsset:     &changes.Source{Kind: changes.SourceRegistryReuse, ID: asset.ID},
				ApprovalMode: approvalFor(auto),
				Reason:       strings.TrimSpace(reason),
				Label:        asset.BestPerformance,
				Impressions:  asset.TotalImpressions,
			})
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "Campaign id")
	cmd.Flags().StringVar(&adGroup, "ad-group", "", "Ad group id")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason recorded with the change")
	cmd.Flags().BoolVar(&auto, "auto", false, "Skip review and execute on the next sweep")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("ad-group")
	return cmd
}

// queueManualChange resolves the ad for the change's ad group, snapshots its
// current collection and appends the change.
func queueManualChange(cmd *cobra.Command, ctx *commandContext, c *changes.Change) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.CampaignByID(c.CampaignID); !ok {
		return fmt.Errorf("campaign %s is not configured", c.CampaignID)
	}
	client, err := ctx.platformAPI()
	if err != nil {
		return err
	}
	collection, err := client.GetAdAssetCollection(cmd.Context(), c.CampaignID, c.AdGroupID)
	if err != nil {
		return fmt.Errorf("read ad for ad group %s: %w", c.AdGroupID, err)
	}
	c.AdID = collection.AdID
	c.Snapshot = collection.Refs(c.AssetType)

	store, err := ctx.changeStore()
	if err != nil {
		return err
	}
	for _, assetID := range []string{c.CurrentAssetID, c.NewAssetID()} {
		if assetID == "" {
			continue
		}
		open, err := store.HasOpen(cmd.Context(), c.AdID, assetID)
		if err != nil {
			return err
		}
		if open {
			return fmt.Errorf("asset %s already has an open change on this ad", assetID)
		}
	}
	if err := store.Append(cmd.Context(), c); err != nil {
		return err
	}
	if ctx.jsonOutput {
		return writeJSON(cmd, c)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued change %d (%s %s, %s)\n", c.ID, c.Action, c.AssetType, c.ApprovalMode)
	return nil
}

func approvalFor(auto bool) changes.ApprovalMode {
	if auto {
		return changes.ApprovalAuto
	}
	return changes.ApprovalPending
}

func parseChangeID(args []string) (int64, error) {
	raw, err := requireArg(args, "change id")
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid change id %q", raw)
	}
	return id, nil
}
