// Package mastodon reconstructs same-author threads from Mastodon-compatible servers.
package mastodon

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kiliankoe/threader/pkg/clients"
	mclient "github.com/kiliankoe/threader/pkg/clients/mastodon"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/mainline"
	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

type Adapter struct {
	client *mclient.Client
	logger logging.Logger
	now    func() time.Time
}

var _ threads.Adapter = (*Adapter)(nil)

func New(client *mclient.Client, logger logging.Logger) *Adapter {
	return &Adapter{
		client: client,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformMastodon }

func (a *Adapter) CanHandleURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

func (a *Adapter) ParseURL(raw string) (*threads.ParsedURL, error) {
	return ParseURL(raw)
}

// FetchThread resolves the seed status and its context, builds the mainline,
// then extends it upward one parent at a time and downward one context
// request at a time until the budgets run out or nothing new turns up.
func (a *Adapter) FetchThread(ctx context.Context, raw string, opts threads.Options) (*models.FetchResult, error) {
	parsed, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	log := a.logger.WithFields(logging.Fields{
		"platform":  models.PlatformMastodon,
		"host":      parsed.Instance,
		"status_id": parsed.ID,
	})

	var (
		seedStatus *mclient.Status
		seedCtx    *mclient.Context
		ctxErr     error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := a.client.GetStatus(gctx, parsed.Instance, parsed.ID)
		if err != nil {
			return err
		}
		seedStatus = st
		return nil
	})
	g.Go(func() error {
		// A missing context only costs us expansion; the seed alone is still a thread.
		seedCtx, ctxErr = a.client.GetContext(gctx, parsed.Instance, parsed.ID)
		return nil
	})
	if err := g.Wait(); err != nil {
		if _, limited := clients.IsRateLimited(err); limited {
			return nil, err
		}
		return nil, &threads.LinkageError{Platform: models.PlatformMastodon, Ref: parsed.CanonicalURL, Err: err}
	}

	seed := normalizeStatus(seedStatus)
	if seed.Account.ID == "" {
		return nil, &threads.LinkageError{Platform: models.PlatformMastodon, Ref: parsed.CanonicalURL}
	}

	var rateLimitedUntil time.Time
	var ancestors, descendants []models.Post
	if ctxErr != nil {
		if rl, limited := clients.IsRateLimited(ctxErr); limited {
			rateLimitedUntil = rl.ResumeAt(a.now())
		}
		log.WithError(ctxErr).Debug("context fetch failed; continuing with the seed alone")
	} else if seedCtx != nil {
		ancestors = normalizeStatuses(seedCtx.Ancestors)
		descendants = normalizeStatuses(seedCtx.Descendants)
	}

	built := mainline.Build(seed, ancestors, descendants)
	posts := built.Posts
	branches := built.HasAlternateBranches

	if rateLimitedUntil.IsZero() {
		var prefix []models.Post
		prefix, rateLimitedUntil = a.extendAncestors(ctx, parsed.Instance, posts, seed.Account.ID, opts.MaxParentLookups)
		posts = append(prefix, posts...)
	}

	thread := &models.Thread{
		Platform:             models.PlatformMastodon,
		Instance:             parsed.Instance,
		SeedPostID:           seed.ID,
		SourceURL:            parsed.CanonicalURL,
		FetchedAt:            a.now(),
		HasAlternateBranches: branches,
		Posts:                posts,
		Author:               seed.Account,
	}

	hasMore := false
	if rateLimitedUntil.IsZero() {
		walk := a.extendDescendants(ctx, thread, threads.ContextBudget(opts.InitialContextRequests))
		thread, _ = thread.Extend(walk.added, walk.branches, a.now())
		hasMore = walk.hasMore
		rateLimitedUntil = walk.rateLimitedUntil
	} else {
		hasMore = true
	}

	return &models.FetchResult{
		Thread:           thread,
		HasMore:          hasMore,
		AddedCount:       len(thread.Posts),
		RateLimitedUntil: rateLimitedUntil,
	}, nil
}

// ContinueThread repeats the descendant walk from the thread's current tail.
func (a *Adapter) ContinueThread(ctx context.Context, thread *models.Thread, opts threads.Options) (*models.FetchResult, error) {
	if err := threads.ValidateThread(thread, models.PlatformMastodon); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	walk := a.extendDescendants(ctx, thread, opts.MaxContextRequests)
	next, added := thread.Extend(walk.added, walk.branches, a.now())
	return &models.FetchResult{
		Thread:           next,
		HasMore:          walk.hasMore,
		AddedCount:       added,
		RateLimitedUntil: walk.rateLimitedUntil,
	}, nil
}

// extendAncestors walks up from the head of posts one status lookup at a time.
// It stops quietly on a foreign author, a failed lookup or an exhausted budget;
// only a rate limit is reported back.
func (a *Adapter) extendAncestors(ctx context.Context, instance string, posts []models.Post, authorID string, budget int) ([]models.Post, time.Time) {
	known := make(map[string]struct{}, len(posts))
	for _, p := range posts {
		known[p.ID] = struct{}{}
	}

	var prefix []models.Post
	head := posts[0]
	for lookups := 0; lookups < budget && head.InReplyToID != ""; lookups++ {
		if _, seen := known[head.InReplyToID]; seen {
			break
		}
		st, err := a.client.GetStatus(ctx, instance, head.InReplyToID)
		if err != nil {
			a.logger.WithFields(logging.Fields{
				"platform":  models.PlatformMastodon,
				"host":      instance,
				"status_id": head.InReplyToID,
			}).WithError(err).Debug("ancestor lookup stopped")
			if rl, limited := clients.IsRateLimited(err); limited {
				return reverse(prefix), rl.ResumeAt(a.now())
			}
			break
		}
		parent := normalizeStatus(st)
		if parent.Account.ID != authorID {
			a.logger.WithFields(logging.Fields{
				"platform":  models.PlatformMastodon,
				"host":      instance,
				"status_id": parent.ID,
			}).Debug("ancestor chain reached another author")
			break
		}
		known[parent.ID] = struct{}{}
		prefix = append(prefix, parent)
		head = parent
	}
	return reverse(prefix), time.Time{}
}

type descendantWalk struct {
	added            []models.Post
	branches         bool
	hasMore          bool
	rateLimitedUntil time.Time
}

// extendDescendants queries the context of the current tail and follows the
// earliest same-author child as far as each response allows. Each round costs
// one context request.
func (a *Adapter) extendDescendants(ctx context.Context, thread *models.Thread, budget int) descendantWalk {
	var walk descendantWalk
	known := thread.IDs()
	tail := *thread.Tail()
	lastRoundAdded := false

	for requests := 0; requests < budget; requests++ {
		sc, err := a.client.GetContext(ctx, thread.Instance, tail.ID)
		if err != nil {
			a.logger.WithFields(logging.Fields{
				"platform":  models.PlatformMastodon,
				"host":      thread.Instance,
				"status_id": tail.ID,
			}).WithError(err).Debug("descendant walk stopped")
			if rl, limited := clients.IsRateLimited(err); limited {
				walk.hasMore = true
				walk.rateLimitedUntil = rl.ResumeAt(a.now())
			}
			return walk
		}

		res := mainline.Extend(tail, known, normalizeStatuses(sc.Descendants))
		if res.HasAlternateBranches {
			walk.branches = true
		}
		if len(res.Posts) == 0 {
			return walk
		}
		for _, p := range res.Posts {
			known[p.ID] = struct{}{}
		}
		walk.added = append(walk.added, res.Posts...)
		tail = res.Posts[len(res.Posts)-1]
		lastRoundAdded = true
	}

	walk.hasMore = lastRoundAdded
	return walk
}

func reverse(posts []models.Post) []models.Post {
	for i, j := 0, len(posts)-1; i < j; i, j = i+1, j-1 {
		posts[i], posts[j] = posts[j], posts[i]
	}
	return posts
}
