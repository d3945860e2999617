package models

import (
	"strings"
	"time"
)

// Platform identifies the social network a thread was read from
type Platform string

const (
	PlatformMastodon Platform = "mastodon"
	PlatformBluesky  Platform = "bluesky"
)

// AttachmentType is the normalized media kind of an attachment
type AttachmentType string

const (
	AttachmentImage   AttachmentType = "image"
	AttachmentVideo   AttachmentType = "video"
	AttachmentGifv    AttachmentType = "gifv"
	AttachmentAudio   AttachmentType = "audio"
	AttachmentUnknown AttachmentType = "unknown"
)

// NormalizeAttachmentType maps an upstream media type onto the known set.
func NormalizeAttachmentType(raw string) AttachmentType {
	switch AttachmentType(strings.ToLower(strings.TrimSpace(raw))) {
	case AttachmentImage:
		return AttachmentImage
	case AttachmentVideo:
		return AttachmentVideo
	case AttachmentGifv:
		return AttachmentGifv
	case AttachmentAudio:
		return AttachmentAudio
	default:
		return AttachmentUnknown
	}
}

// Account is the author identity of a post. ID is the equality key for "same author".
type Account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"displayName"`
	URL         string `json:"url"`
}

// Counts holds engagement counters; missing upstream values stay zero
type Counts struct {
	Replies    int `json:"replies"`
	Boosts     int `json:"boosts"`
	Favourites int `json:"favourites"`
}

type Attachment struct {
	Type        AttachmentType `json:"type"`
	URL         string         `json:"url"`
	PreviewURL  string         `json:"previewUrl,omitempty"`
	Description string         `json:"description"`
}

type LinkEmbed struct {
	ID          string `json:"id"`
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"siteName,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// HasPreview reports whether the embed carries anything worth showing beyond the bare link.
func (e LinkEmbed) HasPreview() bool {
	return e.Title != "" || e.Description != "" || e.ImageURL != ""
}

// Post is the platform-neutral shape of a single status/post.
// ContentHTML is untrusted markup; sanitizing it is the consumer's job.
type Post struct {
	ID          string       `json:"id"`
	URL         string       `json:"url"`
	CreatedAt   time.Time    `json:"createdAt"`
	ContentHTML string       `json:"contentHtml"`
	SpoilerText string       `json:"spoilerText"`
	Sensitive   bool         `json:"sensitive"`
	InReplyToID string       `json:"inReplyToId,omitempty"`
	Counts      Counts       `json:"counts"`
	Account     Account      `json:"account"`
	Attachments []Attachment `json:"attachments"`
	LinkEmbeds  []LinkEmbed  `json:"linkEmbeds,omitempty"`
}

// SameAuthor reports whether both posts were written by the same account.
func (p Post) SameAuthor(other Post) bool {
	return p.Account.ID != "" && p.Account.ID == other.Account.ID
}

// Thread is the linear same-author mainline reconstructed from a seed post.
// Values are replaced, not mutated, whenever the thread is extended.
type Thread struct {
	Platform             Platform  `json:"platform"`
	Instance             string    `json:"instance"`
	SeedPostID           string    `json:"seedPostId"`
	SourceURL            string    `json:"sourceUrl"`
	FetchedAt            time.Time `json:"fetchedAt"`
	HasAlternateBranches bool      `json:"hasAlternateBranches"`
	Posts                []Post    `json:"posts"`
	Author               Account   `json:"author"`
}

// Head returns the first post of the mainline, or nil for an empty thread.
func (t *Thread) Head() *Post {
	if t == nil || len(t.Posts) == 0 {
		return nil
	}
	return &t.Posts[0]
}

// Tail returns the last post of the mainline, or nil for an empty thread.
func (t *Thread) Tail() *Post {
	if t == nil || len(t.Posts) == 0 {
		return nil
	}
	return &t.Posts[len(t.Posts)-1]
}

// IDs returns the set of post ids currently on the mainline.
func (t *Thread) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(t.Posts))
	for _, p := range t.Posts {
		ids[p.ID] = struct{}{}
	}
	return ids
}

func (t *Thread) Contains(id string) bool {
	for _, p := range t.Posts {
		if p.ID == id {
			return true
		}
	}
	return false
}

// Clone copies the thread so appending to the copy never writes into the
// backing array of the original.
func (t *Thread) Clone() *Thread {
	if t == nil {
		return nil
	}
	out := *t
	out.Posts = make([]Post, len(t.Posts))
	copy(out.Posts, t.Posts)
	return &out
}

// Extend returns a new thread with added appended to the mainline. Posts whose id
// is already present are skipped. FetchedAt only moves when something was appended.
func (t *Thread) Extend(added []Post, branches bool, now time.Time) (*Thread, int) {
	out := t.Clone()
	seen := t.IDs()
	count := 0
	for _, p := range added {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out.Posts = append(out.Posts, p)
		count++
	}
	if branches {
		out.HasAlternateBranches = true
	}
	if count > 0 {
		out.FetchedAt = now
	}
	return out, count
}

// FetchResult is returned by every fetch/continue call. A zero RateLimitedUntil
// means the call was not rate limited.
type FetchResult struct {
	Thread           *Thread   `json:"thread"`
	HasMore          bool      `json:"hasMore"`
	AddedCount       int       `json:"addedCount"`
	RateLimitedUntil time.Time `json:"rateLimitedUntil,omitzero"`
}

// RateLimited reports whether the call stopped early because of a 429.
func (r *FetchResult) RateLimited() bool {
	return r != nil && !r.RateLimitedUntil.IsZero()
}

var epoch = time.Unix(0, 0).UTC()

// ParseTimestamp parses an upstream timestamp. Unparseable values become the
// Unix epoch so they still order deterministically.
func ParseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return epoch
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC()
		}
	}
	return epoch
}
