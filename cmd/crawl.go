package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// errCrawlFailed signals a crawl that found nothing to store; details are in
// the log.
var errCrawlFailed = errors.New("crawl failed")

// newCrawlCmd groups the one-shot crawl subcommands.
func newCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one target now and store the result",
	}
	cmd.AddCommand(
		newCrawlSingleCmd("video <video_id>", "Crawl one video", "video_id",
			func(cmd *cobra.Command, a App, arg string) bool {
				return a.Manager().CrawlVideo(cmd.Context(), arg)
			}),
		newCrawlSingleCmd("user <sec_uid>", "Crawl one account", "sec_uid",
			func(cmd *cobra.Command, a App, arg string) bool {
				return a.Manager().CrawlUser(cmd.Context(), arg)
			}),
		newCrawlSingleCmd("link <share_url>", "Resolve a video share link and crawl the video", "url",
			func(cmd *cobra.Command, a App, arg string) bool {
				return a.Manager().CrawlShareLink(cmd.Context(), arg)
			}),
		newCrawlUserVideosCmd(),
	)
	return cmd
}

func newCrawlSingleCmd(
	use, short, key string,
	run func(cmd *cobra.Command, a App, arg string) bool,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(_ *runtime, a App) error {
				success := run(cmd, a, args[0])
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"success": success, key: args[0]}); err != nil {
					return err
				}
				if !success {
					return fmt.Errorf("%s %s: %w", key, args[0], errCrawlFailed)
				}
				return nil
			})
		},
	}
}

func newCrawlUserVideosCmd() *cobra.Command {
	var maxVideos int
	cmd := &cobra.Command{
		Use:   "user-videos <sec_uid>",
		Short: "Walk an account's video listing and store every video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(rt *runtime, a App) error {
				budget := rt.cfg.Budget()
				if cmd.Flags().Changed("max") {
					budget.MaxItems = maxVideos
				}
				count := a.Manager().CrawlUserVideos(cmd.Context(), args[0], budget)
				return printJSON(cmd.OutOrStdout(), map[string]any{"sec_uid": args[0], "count": count})
			})
		},
	}
	cmd.Flags().IntVar(&maxVideos, "max", 0, "stop after this many videos (default crawler.max_videos)")
	return cmd
}
