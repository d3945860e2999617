// Package mastodon is a read-only client for the public status endpoints of
// Mastodon-compatible servers.
package mastodon

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kiliankoe/threader/pkg/clients"
)

// Account is the author object embedded in a status.
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	URL         string `json:"url"`
}

type MediaAttachment struct {
	ID          string  `json:"id"`
	Type        string  `json:"type"`
	URL         string  `json:"url"`
	PreviewURL  *string `json:"preview_url"`
	RemoteURL   *string `json:"remote_url"`
	Description *string `json:"description"`
}

// Card is the link preview Mastodon attaches to a status.
type Card struct {
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Type         string  `json:"type"`
	ProviderName string  `json:"provider_name"`
	Image        *string `json:"image"`
}

type Status struct {
	ID                 string            `json:"id"`
	URI                string            `json:"uri"`
	URL                *string           `json:"url"`
	CreatedAt          string            `json:"created_at"`
	InReplyToID        *string           `json:"in_reply_to_id"`
	InReplyToAccountID *string           `json:"in_reply_to_account_id"`
	Sensitive          bool              `json:"sensitive"`
	SpoilerText        string            `json:"spoiler_text"`
	Visibility         string            `json:"visibility"`
	Content            string            `json:"content"`
	RepliesCount       int               `json:"replies_count"`
	ReblogsCount       int               `json:"reblogs_count"`
	FavouritesCount    int               `json:"favourites_count"`
	Account            Account           `json:"account"`
	MediaAttachments   []MediaAttachment `json:"media_attachments"`
	Card               *Card             `json:"card"`
}

// Context holds the ancestors and descendants the server returns for a status.
type Context struct {
	Ancestors   []Status `json:"ancestors"`
	Descendants []Status `json:"descendants"`
}

type Client struct {
	fetcher *clients.Fetcher
	scheme  string
}

type Option func(*Client)

// WithScheme switches the scheme used to reach instances (tests use "http").
func WithScheme(scheme string) Option {
	return func(c *Client) {
		if scheme != "" {
			c.scheme = scheme
		}
	}
}

func NewClient(fetcher *clients.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher: fetcher,
		scheme:  "https",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusURL is the API URL of a single status.
func (c *Client) StatusURL(instance, id string) string {
	return fmt.Sprintf("%s://%s/api/v1/statuses/%s", c.scheme, instance, url.PathEscape(id))
}

// ContextURL is the API URL of a status' ancestors/descendants.
func (c *Client) ContextURL(instance, id string) string {
	return c.StatusURL(instance, id) + "/context"
}

// GetStatus fetches GET /api/v1/statuses/{id}.
func (c *Client) GetStatus(ctx context.Context, instance, id string) (*Status, error) {
	if err := validate(instance, id); err != nil {
		return nil, err
	}
	var status Status
	if err := c.fetcher.GetJSON(ctx, c.StatusURL(instance, id), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetContext fetches GET /api/v1/statuses/{id}/context.
func (c *Client) GetContext(ctx context.Context, instance, id string) (*Context, error) {
	if err := validate(instance, id); err != nil {
		return nil, err
	}
	var sc Context
	if err := c.fetcher.GetJSON(ctx, c.ContextURL(instance, id), &sc); err != nil {
		return nil, err
	}
	return &sc, nil
}

func validate(instance, id string) error {
	if strings.TrimSpace(instance) == "" {
		return fmt.Errorf("mastodon: instance is required")
	}
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("mastodon: status id is required")
	}
	return nil
}
