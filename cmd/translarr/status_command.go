package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"translarr/internal/api"
)

const (
	ansiReset = "\x1b[0m"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and usage status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd, ctx)
		},
	}
}

func runStatus(cmd *cobra.Command, ctx *commandContext) error {
	client, err := ctx.client()
	if err != nil {
		return err
	}
	status, err := client.Status(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	state := "stopped"
	if status.Running {
		state = "running"
	}
	if shouldColorize(out) {
		if status.Running {
			state = ansiGreen + state + ansiReset
		} else {
			state = ansiRed + state + ansiReset
		}
	}

	rows := [][]string{
		{"State", state},
		{"Database", status.DatabasePath},
		{"Workers", fmt.Sprintf("%d/%d", status.ActiveWorkers, status.WorkerLimit)},
		{"Active requests", strconv.Itoa(status.ActiveRequests)},
		{"Provider usage", formatUsage(status.Usage)},
	}
	fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
	return nil
}

func formatUsage(usage api.UsageResponse) string {
	if usage.Allowed <= 0 {
		return "unmetered"
	}
	text := fmt.Sprintf("%d/%d today", usage.RequestsUsed, usage.Allowed)
	if usage.Paused {
		text += " (paused until " + usage.ResetAt.Format("2006-01-02 15:04 MST") + ")"
	}
	return text
}
