package bluesky

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kiliankoe/threader/pkg/clients"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := clients.NewFetcher(clients.FetcherConfig{
		Name:                  "bluesky-test",
		MinGap:                time.Millisecond,
		DisableCircuitBreaker: true,
	})
	return NewClient(f, WithBaseURL(srv.URL+"/"))
}

func TestGetProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/app.bsky.actor.getProfile" || r.URL.Query().Get("actor") != "alice.bsky.social" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`{"did":"did:plc:alice","handle":"alice.bsky.social","displayName":"Alice"}`))
	})

	p, err := c.GetProfile(context.Background(), "alice.bsky.social")
	require.NoError(t, err)
	require.Equal(t, "did:plc:alice", p.DID)
}

func TestGetProfileWithoutDID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"handle":"ghost.bsky.social"}`))
	})

	_, err := c.GetProfile(context.Background(), "ghost.bsky.social")
	require.Error(t, err)
}

func TestGetPostThreadDecodesVariants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("depth") != "120" || q.Get("parentHeight") != "0" {
			t.Errorf("unexpected params %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"thread":{
			"$type":"app.bsky.feed.defs#threadViewPost",
			"post":{
				"uri":"at://did:plc:alice/app.bsky.feed.post/3k1",
				"author":{"did":"did:plc:alice","handle":"alice.bsky.social"},
				"record":{"$type":"app.bsky.feed.post","text":"hello","createdAt":"2024-05-01T12:00:00Z",
					"facets":[{"index":{"byteStart":0,"byteEnd":5},"features":[{"$type":"app.bsky.richtext.facet#tag","tag":"hello"}]}]},
				"embed":{"$type":"app.bsky.embed.recordWithMedia#view","record":{},"media":{"$type":"app.bsky.embed.images#view","images":[{"thumb":"t","fullsize":"f","alt":"a"}]}},
				"replyCount":1
			},
			"replies":[{"$type":"app.bsky.feed.defs#notFoundPost","uri":"at://x/app.bsky.feed.post/1","notFound":true},
			           {"$type":"app.bsky.feed.defs#blockedPost","uri":"at://y/app.bsky.feed.post/2","blocked":true}]
		}}`))
	})

	node, err := c.GetPostThread(context.Background(), "at://did:plc:alice/app.bsky.feed.post/3k1", 120, 0)
	require.NoError(t, err)
	require.Equal(t, NodePost, node.Kind())
	require.Len(t, node.Replies, 2)
	require.Equal(t, NodeNotFound, node.Replies[0].Kind())
	require.Equal(t, NodeBlocked, node.Replies[1].Kind())

	rec, err := node.Post.FeedPost()
	require.NoError(t, err)
	require.Equal(t, "hello", rec.Text)
	require.Equal(t, TypeFacetTag, rec.Facets[0].Features[0].Type)

	require.Equal(t, EmbedRecordWithMedia, node.Post.Embed.Kind())
	require.Equal(t, EmbedImages, node.Post.Embed.Media.Kind())
}

func TestGetPostThreadRejectsNonATURI(t *testing.T) {
	c := NewClient(clients.NewFetcher(clients.FetcherConfig{DisableCircuitBreaker: true}))
	_, err := c.GetPostThread(context.Background(), "https://bsky.app/profile/a/post/b", 1, 1)
	require.Error(t, err)
}

func TestPostURIRoundTrip(t *testing.T) {
	uri := PostURI("did:plc:alice", "3k1")
	require.Equal(t, "at://did:plc:alice/app.bsky.feed.post/3k1", uri)

	repo, rkey, ok := SplitPostURI(uri)
	require.True(t, ok)
	require.Equal(t, "did:plc:alice", repo)
	require.Equal(t, "3k1", rkey)

	_, _, ok = SplitPostURI("at://did:plc:alice/app.bsky.feed.like/3k1")
	require.False(t, ok)
}

func TestKindFallsBackToShape(t *testing.T) {
	require.Equal(t, NodePost, (&ThreadNode{Post: &PostView{}}).Kind())
	require.Equal(t, NodeNotFound, (&ThreadNode{NotFound: true}).Kind())
	require.Equal(t, NodeUnknown, (*ThreadNode)(nil).Kind())
	require.Equal(t, EmbedUnknown, (&EmbedView{Type: "app.bsky.embed.somethingNew#view"}).Kind())
}
