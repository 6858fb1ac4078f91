package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tiktok-monitor/internal/crawler"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage monitor tasks",
	}
	cmd.AddCommand(newTaskAddCmd(), newTaskListCmd(), newTaskDeleteCmd())
	return cmd
}

func newTaskAddCmd() *cobra.Command {
	var (
		taskType string
		name     string
		interval int
	)
	cmd := &cobra.Command{
		Use:   "add <target_id>",
		Short: "Register a target to re-crawl periodically",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tt := crawler.TaskType(taskType)
			if !tt.Valid() {
				return fmt.Errorf("invalid --type %q: want video, user or user_videos", taskType)
			}
			return withApp(cmd, func(rt *runtime, a App) error {
				if interval <= 0 {
					interval = rt.cfg.Scheduler.DefaultIntervalSeconds
				}
				task, err := a.Store().CreateTask(cmd.Context(), crawler.NewMonitorTask(tt, args[0], name, interval))
				if err != nil {
					return fmt.Errorf("create task: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), task)
			})
		},
	}
	cmd.Flags().StringVar(&taskType, "type", string(crawler.TaskVideo), "task type: video, user or user_videos")
	cmd.Flags().StringVar(&name, "name", "", "display name (default the target id)")
	cmd.Flags().IntVar(&interval, "interval", 0, "seconds between runs (default scheduler.default_interval_seconds)")
	return cmd
}

func newTaskListCmd() *cobra.Command {
	var active bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List monitor tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ *runtime, a App) error {
				var (
					tasks []crawler.MonitorTask
					err   error
				)
				if active {
					tasks, err = a.Store().ActiveTasks(cmd.Context())
				} else {
					tasks, err = a.Store().ListTasks(cmd.Context())
				}
				if err != nil {
					return fmt.Errorf("list tasks: %w", err)
				}
				if tasks == nil {
					tasks = []crawler.MonitorTask{}
				}
				return printJSON(cmd.OutOrStdout(), tasks)
			})
		},
	}
	cmd.Flags().BoolVar(&active, "active", false, "only enabled tasks")
	return cmd
}

func newTaskDeleteCmd() *cobra.Command {
	var id int64
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete a monitor task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if id <= 0 {
				return fmt.Errorf("--id is required")
			}
			return withApp(cmd, func(_ *runtime, a App) error {
				if err := a.Store().DeleteTask(cmd.Context(), id); err != nil {
					return fmt.Errorf("delete task %d: %w", id, err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"deleted": id})
			})
		},
	}
	cmd.Flags().Int64Var(&id, "id", 0, "task id")
	return cmd
}
