package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"translarr/internal/config"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand(ctx))
	return cmd
}

func newConfigInitCommand() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented sample configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			target := path
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return err
				}
				target = defaultPath
			}
			if err := config.CreateSample(target); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", target)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "Destination path (defaults to the standard location)")
	return cmd
}

func newConfigShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rows := [][]string{
				{"database_path", cfg.Paths.DatabasePath},
				{"lock_path", cfg.Paths.LockPath},
				{"movies_dir", cfg.Paths.MoviesDir},
				{"shows_dir", cfg.Paths.ShowsDir},
				{"api_bind", cfg.Paths.APIBind},
				{"max_parallel_translations", fmt.Sprint(cfg.Workers.MaxParallelTranslations)},
				{"max_concurrent_jobs", fmt.Sprint(cfg.Workers.MaxConcurrentJobs)},
				{"chat.base_url", cfg.Chat.BaseURL},
				{"chat.model", cfg.Chat.Model},
				{"machine.base_url", cfg.Machine.BaseURL},
				{"tools.ffprobe", cfg.Tools.FFprobeBin},
				{"tools.ffmpeg", cfg.Tools.FFmpegBin},
				{"logging.format", cfg.Logging.Format},
				{"logging.level", cfg.Logging.Level},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Key", "Value"}, rows, nil))
			return nil
		},
	}
}
