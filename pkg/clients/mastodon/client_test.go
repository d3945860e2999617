package mastodon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiliankoe/threader/pkg/clients"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	f := clients.NewFetcher(clients.FetcherConfig{
		Name:                  "mastodon-test",
		MinGap:                time.Millisecond,
		DisableCircuitBreaker: true,
	})
	return NewClient(f, WithScheme("http")), strings.TrimPrefix(srv.URL, "http://")
}

func TestGetStatusDecodesNullableFields(t *testing.T) {
	c, instance := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statuses/109" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "109",
			"created_at": "2024-05-01T12:00:00.000Z",
			"in_reply_to_id": null,
			"url": "https://example.social/@alice/109",
			"content": "<p>hi</p>",
			"replies_count": 2,
			"account": {"id": "1", "username": "alice", "acct": "alice", "display_name": "Alice", "url": "https://example.social/@alice"},
			"media_attachments": [{"id": "m1", "type": "image", "url": "https://files/m1.png", "preview_url": null, "description": null}],
			"card": null
		}`))
	}))

	status, err := c.GetStatus(context.Background(), instance, "109")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.InReplyToID != nil {
		t.Fatalf("expected nil in_reply_to_id")
	}
	if status.Account.DisplayName != "Alice" || status.RepliesCount != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.MediaAttachments) != 1 || status.MediaAttachments[0].PreviewURL != nil {
		t.Fatalf("unexpected attachments: %+v", status.MediaAttachments)
	}
}

func TestGetContext(t *testing.T) {
	c, instance := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/statuses/5/context" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"ancestors":[{"id":"4"}],"descendants":[{"id":"6","in_reply_to_id":"5"}]}`))
	}))

	sc, err := c.GetContext(context.Background(), instance, "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sc.Ancestors) != 1 || len(sc.Descendants) != 1 {
		t.Fatalf("unexpected context: %+v", sc)
	}
	if sc.Descendants[0].InReplyToID == nil || *sc.Descendants[0].InReplyToID != "5" {
		t.Fatalf("expected reply link to 5")
	}
}

func TestGetStatusNotFound(t *testing.T) {
	c, instance := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Record not found"}`))
	}))

	_, err := c.GetStatus(context.Background(), instance, "1")
	if clients.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("expected 404 fetch error, got %v", err)
	}
}

func TestGetStatusRequiresArguments(t *testing.T) {
	c := NewClient(clients.NewFetcher(clients.FetcherConfig{DisableCircuitBreaker: true}))
	if _, err := c.GetStatus(context.Background(), "", "1"); err == nil {
		t.Fatalf("expected error for empty instance")
	}
	if _, err := c.GetContext(context.Background(), "example.social", " "); err == nil {
		t.Fatalf("expected error for empty id")
	}
}
