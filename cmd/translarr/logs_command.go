package main

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"translarr/internal/api"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			resp, err := client.Logs(cmd.Context(), 0, limit, false)
			if err != nil {
				return err
			}
			for _, evt := range resp.Events {
				fmt.Fprintln(out, formatLogEvent(evt))
			}
			if !follow {
				return nil
			}

			cursor := resp.Next
			for {
				resp, err := client.Logs(cmd.Context(), cursor, limit, true)
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					// A quiet daemon makes the long poll time out; poll again.
					var netErr net.Error
					if errors.As(err, &netErr) && netErr.Timeout() {
						continue
					}
					return err
				}
				for _, evt := range resp.Events {
					fmt.Fprintln(out, formatLogEvent(evt))
				}
				cursor = resp.Next
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep streaming new log lines")
	cmd.Flags().IntVar(&limit, "limit", 100, "Number of recent lines to fetch")
	return cmd
}

func formatLogEvent(evt api.LogEvent) string {
	var sb strings.Builder
	sb.WriteString(evt.Timestamp.Format("15:04:05.000"))
	sb.WriteString(" ")
	sb.WriteString(strings.ToUpper(evt.Level))
	if evt.Component != "" {
		sb.WriteString(" [")
		sb.WriteString(evt.Component)
		sb.WriteString("]")
	}
	sb.WriteString(" ")
	sb.WriteString(evt.Message)
	if evt.RequestID != 0 {
		sb.WriteString(fmt.Sprintf(" request=%d", evt.RequestID))
	}
	if len(evt.Fields) > 0 {
		keys := make([]string, 0, len(evt.Fields))
		for key := range evt.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			sb.WriteString(" ")
			sb.WriteString(key)
			sb.WriteString("=")
			sb.WriteString(evt.Fields[key])
		}
	}
	return sb.String()
}
