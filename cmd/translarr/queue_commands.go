package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"translarr/internal/api"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the translation queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newQueueListCommand(ctx))
	cmd.AddCommand(newQueueShowCommand(ctx))
	cmd.AddCommand(newQueueAddCommand(ctx))
	cmd.AddCommand(newQueueCancelCommand(ctx))
	cmd.AddCommand(newQueueRetryCommand(ctx))
	cmd.AddCommand(newQueueRemoveCommand(ctx))
	cmd.AddCommand(newQueueReenqueueCommand(ctx))
	cmd.AddCommand(newQueueDedupeCommand(ctx))
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var search string
	var orderBy string
	var ascending bool
	var page int
	var pageSize int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List translation requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			list, err := client.ListRequests(cmd.Context(), api.ListOptions{
				SearchQuery: search,
				OrderBy:     orderBy,
				Ascending:   ascending,
				Page:        page,
				PageSize:    pageSize,
			})
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(list.Requests))
			for _, req := range list.Requests {
				rows = append(rows, []string{
					strconv.FormatInt(req.ID, 10),
					req.Title,
					req.MediaKind,
					req.SourceLanguage + "->" + req.TargetLanguage,
					req.Status,
					strconv.Itoa(req.Progress) + "%",
					req.CreatedAt,
				})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"ID", "Title", "Kind", "Languages", "Status", "Progress", "Created"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d of %d requests\n", len(list.Requests), list.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Filter by title or language")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "Sort column (id, title, status, created_at)")
	cmd.Flags().BoolVar(&ascending, "ascending", false, "Sort ascending")
	cmd.Flags().IntVar(&page, "page", 1, "Page number")
	cmd.Flags().IntVar(&pageSize, "page-size", 50, "Page size")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one request with its audit log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			req, err := client.GetRequest(cmd.Context(), id)
			if err != nil {
				return err
			}
			logs, err := client.RequestLogs(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			rows := [][]string{
				{"ID", strconv.FormatInt(req.ID, 10)},
				{"Title", req.Title},
				{"Kind", req.MediaKind},
				{"Languages", req.SourceLanguage + " -> " + req.TargetLanguage},
				{"Status", req.Status},
				{"Progress", strconv.Itoa(req.Progress) + "%"},
				{"Subtitle", req.SubtitlePath},
				{"Created", req.CreatedAt},
				{"Completed", req.CompletedAt},
			}
			fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))

			if len(logs) > 0 {
				logRows := make([][]string, 0, len(logs))
				for _, entry := range logs {
					logRows = append(logRows, []string{
						entry.CreatedAt, entry.Level, entry.Message, entry.Details,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"Time", "Level", "Message", "Details"}, logRows, nil))
			}
			return nil
		},
	}
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var kind string
	var source string
	var target string
	var subtitlePath string
	var priority bool

	cmd := &cobra.Command{
		Use:   "add <media-id>",
		Short: "Enqueue a translation request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaID, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			created, err := client.CreateRequest(cmd.Context(), api.CreateRequestInput{
				MediaKind:      kind,
				MediaID:        mediaID,
				SourceLanguage: source,
				TargetLanguage: target,
				SubtitlePath:   subtitlePath,
				ForcePriority:  priority,
			})
			if err != nil {
				return err
			}
			if created.Created {
				fmt.Fprintf(cmd.OutOrStdout(), "Request %d enqueued\n", created.Request.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Request %d already active\n", created.Request.ID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "movie", "Media kind (movie or episode)")
	cmd.Flags().StringVar(&source, "from", "", "Source language code")
	cmd.Flags().StringVar(&target, "to", "", "Target language code")
	cmd.Flags().StringVar(&subtitlePath, "subtitle", "", "Explicit source subtitle path")
	cmd.Flags().BoolVar(&priority, "priority", false, "Flag the media as priority")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or running request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			req, err := client.CancelRequest(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %d is %s\n", req.ID, req.Status)
			return nil
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Reactivate a finished request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			req, err := client.RetryRequest(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %d is %s\n", req.ID, req.Status)
			return nil
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Delete a request that is not running",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			if err := client.RemoveRequest(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Request %d removed\n", id)
			return nil
		},
	}
}

func newQueueReenqueueCommand(ctx *commandContext) *cobra.Command {
	var includeInProgress bool
	cmd := &cobra.Command{
		Use:   "reenqueue",
		Short: "Return stuck requests to the pending state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.Reenqueue(cmd.Context(), includeInProgress)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reenqueued %d, skipped %d\n", result.Reenqueued, result.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&includeInProgress, "include-in-progress", false, "Also reset in-progress requests")
	return cmd
}

func newQueueDedupeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Remove duplicate historical requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.Dedupe(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d duplicates\n", result.Removed)
			return nil
		},
	}
}

func parseRequestID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}
