// Package bluesky reconstructs same-author threads from the public Bluesky AppView.
package bluesky

import (
	"context"
	"time"

	"github.com/kiliankoe/threader/pkg/clients"
	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	"github.com/kiliankoe/threader/pkg/logging"
	"github.com/kiliankoe/threader/pkg/mainline"
	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

type Adapter struct {
	client *bclient.Client
	logger logging.Logger
	now    func() time.Time
}

var _ threads.Adapter = (*Adapter)(nil)

func New(client *bclient.Client, logger logging.Logger) *Adapter {
	return &Adapter{
		client: client,
		logger: logging.OrDiscard(logger),
		now:    time.Now,
	}
}

func (a *Adapter) Platform() models.Platform { return models.PlatformBluesky }

func (a *Adapter) CanHandleURL(raw string) bool {
	_, err := ParseURL(raw)
	return err == nil
}

func (a *Adapter) ParseURL(raw string) (*threads.ParsedURL, error) {
	return ParseURL(raw)
}

// FetchThread resolves the actor to a DID, loads the post thread view around
// the seed and builds the mainline from every same-author post in it.
func (a *Adapter) FetchThread(ctx context.Context, raw string, opts threads.Options) (*models.FetchResult, error) {
	parsed, err := ParseURL(raw)
	if err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	profile, err := a.client.GetProfile(ctx, parsed.Actor)
	if err != nil {
		return nil, a.linkageError(parsed.Actor, err)
	}

	uri := bclient.PostURI(profile.DID, parsed.ID)
	budget := threads.ContextBudget(opts.InitialContextRequests)
	root, err := a.client.GetPostThread(ctx, uri, budget, budget)
	if err != nil {
		return nil, a.linkageError(uri, err)
	}
	if root.Kind() != bclient.NodePost || root.Post == nil {
		return nil, &threads.LinkageError{Platform: models.PlatformBluesky, Ref: uri}
	}

	seed, ok := normalizePost(root.Post)
	if !ok {
		return nil, &threads.LinkageError{Platform: models.PlatformBluesky, Ref: uri}
	}

	// Ancestors arrive in the same flattened set; the builder links them by reply id.
	others := make([]models.Post, 0)
	for _, p := range normalizePosts(flattenThread(root)) {
		if p.ID != seed.ID {
			others = append(others, p)
		}
	}
	built := mainline.Build(seed, nil, others)

	thread := &models.Thread{
		Platform:             models.PlatformBluesky,
		Instance:             WebHost,
		SeedPostID:           seed.ID,
		SourceURL:            parsed.CanonicalURL,
		FetchedAt:            a.now(),
		HasAlternateBranches: built.HasAlternateBranches,
		Posts:                built.Posts,
		Author:               seed.Account,
	}

	return &models.FetchResult{
		Thread:     thread,
		HasMore:    thread.Tail().Counts.Replies > 0,
		AddedCount: len(thread.Posts),
	}, nil
}

// ContinueThread re-queries the thread view anchored at the current tail, one
// round per request, and appends the earliest same-author child chain.
func (a *Adapter) ContinueThread(ctx context.Context, thread *models.Thread, opts threads.Options) (*models.FetchResult, error) {
	if err := threads.ValidateThread(thread, models.PlatformBluesky); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()
	depth := threads.ContextBudget(opts.MaxContextRequests)

	var (
		added            []models.Post
		branches         bool
		hasMore          bool
		rateLimitedUntil time.Time
	)
	known := thread.IDs()
	tail := *thread.Tail()

	for round := 0; round < opts.MaxContextRequests; round++ {
		root, err := a.client.GetPostThread(ctx, tail.ID, depth, 0)
		if err != nil {
			a.logger.WithFields(logging.Fields{
				"platform": models.PlatformBluesky,
				"uri":      tail.ID,
			}).WithError(err).Debug("continuation stopped")
			rl, limited := clients.IsRateLimited(err)
			hasMore = limited
			if limited {
				rateLimitedUntil = rl.ResumeAt(a.now())
			}
			break
		}

		res := mainline.Extend(tail, known, normalizePosts(flattenThread(root)))
		if res.HasAlternateBranches {
			branches = true
		}
		if len(res.Posts) == 0 {
			hasMore = false
			break
		}
		for _, p := range res.Posts {
			known[p.ID] = struct{}{}
		}
		added = append(added, res.Posts...)
		tail = res.Posts[len(res.Posts)-1]
		hasMore = true
	}

	next, count := thread.Extend(added, branches, a.now())
	return &models.FetchResult{
		Thread:           next,
		HasMore:          hasMore,
		AddedCount:       count,
		RateLimitedUntil: rateLimitedUntil,
	}, nil
}

func (a *Adapter) linkageError(ref string, err error) error {
	if _, limited := clients.IsRateLimited(err); limited {
		return err
	}
	return &threads.LinkageError{Platform: models.PlatformBluesky, Ref: ref, Err: err}
}
