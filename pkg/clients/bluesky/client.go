// Package bluesky is a read-only client for the public Bluesky AppView.
package bluesky

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/kiliankoe/threader/pkg/clients"
)

const DefaultBaseURL = "https://public.api.bsky.app"

type Client struct {
	fetcher *clients.Fetcher
	baseURL string
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.baseURL = base
		}
	}
}

func NewClient(fetcher *clients.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		baseURL: DefaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Host is the AppView host every request goes to; the fetcher throttles on it.
func (c *Client) Host() string {
	if u, err := url.Parse(c.baseURL); err == nil {
		return u.Host
	}
	return c.baseURL
}

func (c *Client) xrpcURL(method string, params url.Values) string {
	return c.baseURL + "/xrpc/" + method + "?" + params.Encode()
}

// GetProfile calls app.bsky.actor.getProfile for a handle or DID.
func (c *Client) GetProfile(ctx context.Context, actor string) (*Profile, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, errors.New("bluesky: actor is required")
	}
	var profile Profile
	if err := c.fetcher.GetJSON(ctx, c.xrpcURL("app.bsky.actor.getProfile", url.Values{"actor": {actor}}), &profile); err != nil {
		return nil, err
	}
	if profile.DID == "" {
		return nil, fmt.Errorf("bluesky: profile %s has no did", actor)
	}
	return &profile, nil
}

// GetPostThread calls app.bsky.feed.getPostThread anchored at an at:// URI.
func (c *Client) GetPostThread(ctx context.Context, uri string, depth, parentHeight int) (*ThreadNode, error) {
	if !strings.HasPrefix(uri, "at://") {
		return nil, fmt.Errorf("bluesky: %q is not an at:// uri", uri)
	}
	params := url.Values{
		"uri":          {uri},
		"depth":        {strconv.Itoa(depth)},
		"parentHeight": {strconv.Itoa(parentHeight)},
	}
	var resp threadResponse
	if err := c.fetcher.GetJSON(ctx, c.xrpcURL("app.bsky.feed.getPostThread", params), &resp); err != nil {
		return nil, err
	}
	if resp.Thread == nil {
		return nil, fmt.Errorf("bluesky: empty thread for %s", uri)
	}
	return resp.Thread, nil
}

// PostURI builds the at:// reference of a post record.
func PostURI(did, rkey string) string {
	return "at://" + did + "/app.bsky.feed.post/" + rkey
}

// SplitPostURI returns the repo and record key of an at:// post URI.
func SplitPostURI(uri string) (repo, rkey string, ok bool) {
	rest, found := strings.CutPrefix(uri, "at://")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] != "app.bsky.feed.post" || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
