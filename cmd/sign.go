package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/tiktok-monitor/internal/signer"
)

func newSignCmd() *cobra.Command {
	var (
		userAgent string
		now       int64
	)
	cmd := &cobra.Command{
		Use:   "sign <url>",
		Short: "Print the X-Bogus token and signed URL for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ua := userAgent
			if ua == "" {
				if rt, err := runtimeFrom(cmd.Context()); err == nil {
					ua = rt.cfg.Crawler.UserAgent
				}
			}
			at := time.Now()
			if now > 0 {
				at = time.Unix(now, 0)
			}
			sig, err := signer.Sign(args[0], ua, at)
			if err != nil {
				return fmt.Errorf("sign: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"url":        args[0],
				"token":      sig.Token,
				"signed_url": sig.SignedURL,
				"timestamp":  at.Unix(),
			})
		},
	}
	cmd.Flags().StringVar(&userAgent, "ua", "", "user agent to sign for (default crawler.user_agent or the built-in desktop agent)")
	cmd.Flags().Int64Var(&now, "now", 0, "unix timestamp to sign at (default current time)")
	return cmd
}
