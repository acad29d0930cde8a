package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newMediaCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "media",
		Short: "Inspect and manage the indexed library",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newMediaListCommand(ctx))
	cmd.AddCommand(newMediaExcludeCommand(ctx))
	cmd.AddCommand(newMediaPriorityCommand(ctx))
	cmd.AddCommand(newMediaThresholdCommand(ctx))
	return cmd
}

func newMediaListCommand(ctx *commandContext) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List indexed media with translation state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			items, err := client.ListMedia(cmd.Context(), kind)
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				flags := ""
				if item.Excluded {
					flags += "excluded "
				}
				if item.Priority {
					flags += "priority"
				}
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					item.Kind,
					item.Title,
					item.TranslationState,
					flags,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Title", "State", "Flags"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
			))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by kind (movie or episode)")
	return cmd
}

func newMediaExcludeCommand(ctx *commandContext) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "exclude <kind> <id>",
		Short: "Exclude media from automated translation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[1])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetExclusion(cmd.Context(), args[0], id, !clear); err != nil {
				return err
			}
			if clear {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d included again\n", args[0], id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d excluded\n", args[0], id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the exclusion instead")
	return cmd
}

func newMediaPriorityCommand(ctx *commandContext) *cobra.Command {
	var clear bool
	cmd := &cobra.Command{
		Use:   "priority <kind> <id>",
		Short: "Flag media as priority for worker scheduling",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[1])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.SetPriority(cmd.Context(), args[0], id, !clear); err != nil {
				return err
			}
			if clear {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d priority cleared\n", args[0], id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d flagged priority\n", args[0], id)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the priority flag instead")
	return cmd
}

func newMediaThresholdCommand(ctx *commandContext) *cobra.Command {
	var hours int
	var clear bool
	cmd := &cobra.Command{
		Use:   "threshold <kind> <id>",
		Short: "Override the age threshold for one media entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[1])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			var value *int
			if !clear {
				if hours < 0 {
					return fmt.Errorf("hours must not be negative")
				}
				value = &hours
			}
			if err := client.SetAgeThreshold(cmd.Context(), args[0], id, value); err != nil {
				return err
			}
			if clear {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d threshold cleared\n", args[0], id)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %d threshold set to %d hours\n", args[0], id, hours)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 0, "Age threshold in hours")
	cmd.Flags().BoolVar(&clear, "clear", false, "Remove the override instead")
	return cmd
}
