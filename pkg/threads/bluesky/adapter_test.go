package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kiliankoe/threader/pkg/clients"
	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakePost struct {
	uri    string
	did    string
	handle string
	parent string
	minute int
}

// fakeAppView answers getProfile and getPostThread from an in-memory reply
// tree. maxDepth caps reply depth below the anchor to simulate windowing.
type fakeAppView struct {
	mu       sync.Mutex
	handles  map[string]string
	posts    map[string]*fakePost
	order    []string
	maxDepth int
	limited  map[string]bool
}

func newFakeAppView() *fakeAppView {
	return &fakeAppView{
		handles: map[string]string{},
		posts:   map[string]*fakePost{},
		limited: map[string]bool{},
	}
}

func (f *fakeAppView) user(handle, did string) {
	f.handles[handle] = did
}

func (f *fakeAppView) add(did, rkey, parentRKey, parentDID string, minute int) string {
	uri := bclient.PostURI(did, rkey)
	p := &fakePost{uri: uri, did: did, minute: minute}
	for h, d := range f.handles {
		if d == did {
			p.handle = h
		}
	}
	if parentRKey != "" {
		p.parent = bclient.PostURI(parentDID, parentRKey)
	}
	f.posts[uri] = p
	f.order = append(f.order, uri)
	return uri
}

func (f *fakeAppView) children(uri string) []*fakePost {
	var out []*fakePost
	for _, u := range f.order {
		if f.posts[u].parent == uri {
			out = append(out, f.posts[u])
		}
	}
	return out
}

func (f *fakeAppView) view(p *fakePost) *bclient.PostView {
	rec := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      "post " + p.uri,
		"createdAt": base.Add(time.Duration(p.minute) * time.Minute).Format(time.RFC3339),
	}
	if p.parent != "" {
		rec["reply"] = map[string]any{
			"root":   map[string]string{"uri": p.parent},
			"parent": map[string]string{"uri": p.parent},
		}
	}
	raw, _ := json.Marshal(rec)
	return &bclient.PostView{
		URI:        p.uri,
		Author:     bclient.Author{DID: p.did, Handle: p.handle},
		Record:     raw,
		ReplyCount: len(f.children(p.uri)),
	}
}

func (f *fakeAppView) node(p *fakePost, depth int) *bclient.ThreadNode {
	n := &bclient.ThreadNode{Type: bclient.TypeThreadViewPost, Post: f.view(p)}
	if depth <= 0 {
		return n
	}
	for _, c := range f.children(p.uri) {
		n.Replies = append(n.Replies, f.node(c, depth-1))
	}
	return n
}

func (f *fakeAppView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q := r.URL.Query()

	switch r.URL.Path {
	case "/xrpc/app.bsky.actor.getProfile":
		actor := q.Get("actor")
		did, ok := f.handles[actor]
		if !ok && strings.HasPrefix(actor, "did:") {
			did, ok = actor, true
		}
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"InvalidRequest","message":"Profile not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(bclient.Profile{DID: did, Handle: actor})
	case "/xrpc/app.bsky.feed.getPostThread":
		uri := q.Get("uri")
		if f.limited[uri] {
			w.Header().Set("Retry-After", "5")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		p, ok := f.posts[uri]
		if !ok {
			_ = json.NewEncoder(w).Encode(map[string]any{"thread": bclient.ThreadNode{
				Type: bclient.TypeNotFoundPost, URI: uri, NotFound: true,
			}})
			return
		}
		depth, _ := strconv.Atoi(q.Get("depth"))
		if f.maxDepth > 0 && depth > f.maxDepth {
			depth = f.maxDepth
		}
		parentHeight, _ := strconv.Atoi(q.Get("parentHeight"))

		root := f.node(p, depth)
		cursor := root
		for h := 0; h < parentHeight && f.posts[cursor.Post.URI].parent != ""; h++ {
			parent, ok := f.posts[f.posts[cursor.Post.URI].parent]
			if !ok {
				break
			}
			cursor.Parent = &bclient.ThreadNode{Type: bclient.TypeThreadViewPost, Post: f.view(parent)}
			cursor = cursor.Parent
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"thread": root})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestAdapter(t *testing.T, f *fakeAppView) *Adapter {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	fetcher := clients.NewFetcher(clients.FetcherConfig{
		Name:                  "bluesky-test",
		MinGap:                time.Millisecond,
		Retry:                 &clients.HTTPExecutorConfig{MaxRetries: 0},
		DisableCircuitBreaker: true,
	})
	return New(bclient.NewClient(fetcher, bclient.WithBaseURL(srv.URL)), nil)
}

func rkeys(th *models.Thread) string {
	out := make([]string, len(th.Posts))
	for i, p := range th.Posts {
		_, rkey, _ := bclient.SplitPostURI(p.ID)
		out[i] = rkey
	}
	return strings.Join(out, ",")
}

const alice = "did:plc:alice"

func TestFetchThreadMainlineScenario(t *testing.T) {
	f := newFakeAppView()
	f.user("alice.bsky.social", alice)
	f.user("bob.bsky.social", "did:plc:bob")
	f.add(alice, "p1", "", "", 0)
	f.add(alice, "p2", "p1", alice, 1)
	f.add(alice, "seed", "p2", alice, 2)
	f.add(alice, "d1", "seed", alice, 3)
	f.add(alice, "d2", "seed", alice, 5)
	f.add(alice, "d1a", "d1", alice, 4)
	f.add("did:plc:bob", "b1", "seed", alice, 3)

	a := newTestAdapter(t, f)
	res, err := a.FetchThread(context.Background(), "https://bsky.app/profile/alice.bsky.social/post/seed", threads.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rkeys(res.Thread); got != "p1,p2,seed,d1,d1a" {
		t.Fatalf("unexpected mainline %s", got)
	}
	if !res.Thread.HasAlternateBranches || res.HasMore {
		t.Fatalf("unexpected flags: branches=%v hasMore=%v", res.Thread.HasAlternateBranches, res.HasMore)
	}
	seed := res.Thread.Posts[2]
	if seed.ID != bclient.PostURI(alice, "seed") || seed.InReplyToID != bclient.PostURI(alice, "p2") {
		t.Fatalf("unexpected seed post: %+v", seed)
	}
	if seed.URL != "https://bsky.app/profile/alice.bsky.social/post/seed" || seed.Counts.Replies != 3 {
		t.Fatalf("unexpected seed metadata: %+v", seed)
	}
	if res.Thread.Author.ID != alice || res.Thread.Instance != WebHost || res.Thread.SeedPostID != seed.ID {
		t.Fatalf("unexpected thread metadata: %+v", res.Thread)
	}
}

func TestContinueThreadWalksFromTail(t *testing.T) {
	f := newFakeAppView()
	f.user("alice.bsky.social", alice)
	f.maxDepth = 1
	f.add(alice, "r1", "", "", 0)
	for i := 2; i <= 5; i++ {
		f.add(alice, "r"+strconv.Itoa(i), "r"+strconv.Itoa(i-1), alice, i)
	}

	a := newTestAdapter(t, f)
	first, err := a.FetchThread(context.Background(), "https://bsky.app/profile/alice.bsky.social/post/r1", threads.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rkeys(first.Thread); got != "r1,r2" || !first.HasMore {
		t.Fatalf("expected windowed fetch with more to come, got %s hasMore=%v", got, first.HasMore)
	}

	second, err := a.ContinueThread(context.Background(), first.Thread, threads.Options{MaxContextRequests: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rkeys(second.Thread); got != "r1,r2,r3,r4" || second.AddedCount != 2 || !second.HasMore {
		t.Fatalf("unexpected continuation: %s added=%d hasMore=%v", got, second.AddedCount, second.HasMore)
	}
	if rkeys(first.Thread) != "r1,r2" {
		t.Fatalf("previous thread value must not change")
	}

	third, err := a.ContinueThread(context.Background(), second.Thread, threads.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rkeys(third.Thread); got != "r1,r2,r3,r4,r5" || third.AddedCount != 1 || third.HasMore {
		t.Fatalf("unexpected final continuation: %s added=%d hasMore=%v", got, third.AddedCount, third.HasMore)
	}

	idle, err := a.ContinueThread(context.Background(), third.Thread, threads.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idle.AddedCount != 0 || idle.HasMore || rkeys(idle.Thread) != rkeys(third.Thread) {
		t.Fatalf("expected idempotent no-op, got %+v", idle)
	}
}

func TestContinueThreadRateLimited(t *testing.T) {
	f := newFakeAppView()
	f.user("alice.bsky.social", alice)
	f.maxDepth = 1
	f.add(alice, "r1", "", "", 0)
	f.add(alice, "r2", "r1", alice, 1)
	f.add(alice, "r3", "r2", alice, 2)

	a := newTestAdapter(t, f)
	first, err := a.FetchThread(context.Background(), "https://bsky.app/profile/alice.bsky.social/post/r1", threads.Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.mu.Lock()
	f.limited[bclient.PostURI(alice, "r2")] = true
	f.mu.Unlock()

	before := time.Now()
	res, err := a.ContinueThread(context.Background(), first.Thread, threads.Options{})
	if err != nil {
		t.Fatalf("rate limit must not be raised: %v", err)
	}
	if !res.HasMore || res.AddedCount != 0 || !res.RateLimited() {
		t.Fatalf("expected rate limited result, got %+v", res)
	}
	if wait := res.RateLimitedUntil.Sub(before); wait < 4*time.Second || wait > 6*time.Second {
		t.Fatalf("expected resume ~5s ahead, got %s", wait)
	}
}

func TestFetchThreadUnknownProfile(t *testing.T) {
	a := newTestAdapter(t, newFakeAppView())
	_, err := a.FetchThread(context.Background(), "https://bsky.app/profile/ghost.bsky.social/post/3k1", threads.Options{})
	if !threads.IsLinkageError(err) {
		t.Fatalf("expected linkage error, got %v", err)
	}
}

func TestFetchThreadMissingPost(t *testing.T) {
	f := newFakeAppView()
	f.user("alice.bsky.social", alice)
	a := newTestAdapter(t, f)

	_, err := a.FetchThread(context.Background(), "https://bsky.app/profile/alice.bsky.social/post/gone", threads.Options{})
	if !threads.IsLinkageError(err) {
		t.Fatalf("expected linkage error, got %v", err)
	}
}

func TestContinueThreadRejectsForeignPlatform(t *testing.T) {
	a := newTestAdapter(t, newFakeAppView())
	_, err := a.ContinueThread(context.Background(), &models.Thread{Platform: models.PlatformMastodon, Posts: []models.Post{{ID: "1"}}}, threads.Options{})
	if err == nil {
		t.Fatalf("expected platform mismatch error")
	}
}
