package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-reconcile/internal/model"
	"github.com/sells-group/provider-reconcile/internal/store"
)

var reviewCmd = &cobra.Command{
	Use:     "review",
	GroupID: groupReconcile,
	Short:   "Work the manual review queue",
	Long:    "Commands for listing review items and approving, overriding, or rejecting suggested values.",
}

// -- review list --

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List review items",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		status, _ := cmd.Flags().GetString("status")
		providerID, _ := cmd.Flags().GetInt64("provider")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.ReviewFilter{
			Status:     model.ReviewStatus(status),
			ProviderID: providerID,
			Limit:      limit,
		}
		if err := validateReviewStatus(filter.Status); err != nil {
			return err
		}

		st, err := openStore(ctx, "review")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		items, err := st.ListReviewItems(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "review list")
		}
		if len(items) == 0 {
			fmt.Fprintln(os.Stderr, "No review items found.")
			return nil
		}
		formatReviewList(os.Stdout, items)
		return nil
	},
}

func validateReviewStatus(s model.ReviewStatus) error {
	switch s {
	case "", model.ReviewPending, model.ReviewApproved, model.ReviewOverridden, model.ReviewRejected:
		return nil
	default:
		return eris.Errorf("invalid review status %q", s)
	}
}

func formatReviewList(w io.Writer, items []model.ManualReviewItem) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROVIDER\tFIELD\tCURRENT\tSUGGESTED\tSTATUS\tREASON\tCREATED")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			it.ID,
			it.ProviderID,
			it.FieldName,
			dash(it.CurrentValue),
			dash(it.SuggestedValue),
			it.Status,
			dash(it.Reason),
			it.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = tw.Flush()
}

// -- review approve|override|reject --

func newResolveCmd(action model.ReviewAction, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   string(action) + " <item-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return eris.Errorf("invalid review item id %q", args[0])
			}
			value, _ := cmd.Flags().GetString("value")

			env, err := initApp(ctx, "review")
			if err != nil {
				return err
			}
			defer env.Close()

			res, err := env.Engine.ResolveReview(ctx, id, action, value)
			if err != nil {
				return eris.Wrapf(err, "review %s", action)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	if action == model.ReviewActionOverride {
		c.Flags().String("value", "", "replacement value (required)")
		_ = c.MarkFlagRequired("value")
	}
	return c
}

var (
	reviewApproveCmd  = newResolveCmd(model.ReviewActionApprove, "Apply the suggested value")
	reviewOverrideCmd = newResolveCmd(model.ReviewActionOverride, "Apply a reviewer-supplied value")
	reviewRejectCmd   = newResolveCmd(model.ReviewActionReject, "Keep the current value")
)

func init() {
	reviewListCmd.Flags().String("status", string(model.ReviewPending), "filter by status (empty for all)")
	reviewListCmd.Flags().Int64("provider", 0, "filter by provider id")
	reviewListCmd.Flags().Int("limit", 100, "max items to show")

	reviewCmd.AddCommand(reviewListCmd, reviewApproveCmd, reviewOverrideCmd, reviewRejectCmd)
	rootCmd.AddCommand(reviewCmd)
}
