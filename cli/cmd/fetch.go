package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiliankoe/threader/pkg/clients"
	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

func newFetchCmd(a *app) *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "fetch <post-url>",
		Short: "Fetch the thread a post belongs to",
		Long: `Fetch resolves the post, walks up to the first post of its author's chain
and down through the author's own replies. With --follow it keeps asking for
more until the thread is complete, waiting out rate limits along the way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runFetch(cmd, args[0], follow)
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&follow, "follow", "f", false, "keep continuing until no more posts are found")
	f.Int("max-rounds", 0, "maximum continuation rounds with --follow")
	f.Int("initial-context", 0, "context request budget for the first fetch")
	f.Int("max-context", 0, "context request budget per continuation round")
	f.Int("max-parent-lookups", 0, "maximum ancestor lookups above the seed post")
	a.bind("follow.max_rounds", f.Lookup("max-rounds"))
	a.bind("options.initial_context_requests", f.Lookup("initial-context"))
	a.bind("options.max_context_requests", f.Lookup("max-context"))
	a.bind("options.max_parent_lookups", f.Lookup("max-parent-lookups"))
	return cmd
}

func (a *app) runFetch(cmd *cobra.Command, raw string, follow bool) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	registry := a.newRegistry(a.cfg.Platforms(), a.logger(cmd))

	res, err := registry.FetchThread(ctx, raw, a.cfg.Options)
	if err != nil {
		return describeFetchError(err)
	}

	var followErr error
	if follow {
		res, followErr = a.follow(ctx, cmd, registry, res)
	}
	if err := a.printer(cmd).Result(res); err != nil {
		return err
	}
	return followErr
}

// follow continues res until nothing more turns up, the round budget runs
// out, or a rate limit asks for a longer pause than follow.max_wait.
func (a *app) follow(ctx context.Context, cmd *cobra.Command, registry *threads.Registry, res *models.FetchResult) (*models.FetchResult, error) {
	for round := 1; res.HasMore && round <= a.cfg.Follow.MaxRounds; round++ {
		if res.RateLimited() {
			wait := res.RateLimitedUntil.Sub(a.now())
			if wait > a.cfg.Follow.MaxWait {
				a.notice(cmd, "rate limited for %s (more than follow.max_wait %s); stopping", wait.Round(time.Second), a.cfg.Follow.MaxWait)
				return res, nil
			}
			if wait > 0 {
				a.notice(cmd, "rate limited; waiting %s", wait.Round(time.Second))
				if err := a.sleep(ctx, wait); err != nil {
					return res, err
				}
			}
		}

		next, err := registry.ContinueThread(ctx, res.Thread, a.cfg.Options)
		if err != nil {
			return res, describeFetchError(err)
		}
		a.notice(cmd, "round %d: +%d posts", round, next.AddedCount)
		res = next
		if next.AddedCount == 0 && !next.RateLimited() {
			break
		}
	}
	return res, nil
}

func describeFetchError(err error) error {
	if rl, ok := clients.IsRateLimited(err); ok {
		return fmt.Errorf("rate limited by upstream, retry in %s: %w", rl.RetryAfter, err)
	}
	if threads.IsParseError(err) {
		return fmt.Errorf("unsupported post url: %w", err)
	}
	return err
}
