package bluesky

import (
	"encoding/json"
	"fmt"
)

// Lexicon type tags the client distinguishes.
const (
	TypeThreadViewPost = "app.bsky.feed.defs#threadViewPost"
	TypeNotFoundPost   = "app.bsky.feed.defs#notFoundPost"
	TypeBlockedPost    = "app.bsky.feed.defs#blockedPost"

	TypeEmbedImages          = "app.bsky.embed.images#view"
	TypeEmbedVideo           = "app.bsky.embed.video#view"
	TypeEmbedExternal        = "app.bsky.embed.external#view"
	TypeEmbedRecord          = "app.bsky.embed.record#view"
	TypeEmbedRecordWithMedia = "app.bsky.embed.recordWithMedia#view"

	TypeFacetLink    = "app.bsky.richtext.facet#link"
	TypeFacetMention = "app.bsky.richtext.facet#mention"
	TypeFacetTag     = "app.bsky.richtext.facet#tag"
)

type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

type Author struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// NodeKind is the resolved variant of a ThreadNode.
type NodeKind int

const (
	NodeUnknown NodeKind = iota
	NodePost
	NodeNotFound
	NodeBlocked
)

// ThreadNode is one node of a getPostThread response. Only the fields of the
// variant named by Type are populated.
type ThreadNode struct {
	Type     string        `json:"$type"`
	URI      string        `json:"uri,omitempty"`
	NotFound bool          `json:"notFound,omitempty"`
	Blocked  bool          `json:"blocked,omitempty"`
	Post     *PostView     `json:"post,omitempty"`
	Parent   *ThreadNode   `json:"parent,omitempty"`
	Replies  []*ThreadNode `json:"replies,omitempty"`
}

// Kind resolves the variant. Nodes without a $type are classified by shape.
func (n *ThreadNode) Kind() NodeKind {
	if n == nil {
		return NodeUnknown
	}
	switch n.Type {
	case TypeThreadViewPost:
		return NodePost
	case TypeNotFoundPost:
		return NodeNotFound
	case TypeBlockedPost:
		return NodeBlocked
	}
	switch {
	case n.Post != nil:
		return NodePost
	case n.NotFound:
		return NodeNotFound
	case n.Blocked:
		return NodeBlocked
	}
	return NodeUnknown
}

type PostView struct {
	URI         string          `json:"uri"`
	CID         string          `json:"cid"`
	Author      Author          `json:"author"`
	Record      json.RawMessage `json:"record"`
	Embed       *EmbedView      `json:"embed,omitempty"`
	ReplyCount  int             `json:"replyCount"`
	RepostCount int             `json:"repostCount"`
	LikeCount   int             `json:"likeCount"`
	QuoteCount  int             `json:"quoteCount"`
	IndexedAt   string          `json:"indexedAt"`
}

// FeedPost decodes the app.bsky.feed.post record carried by the view.
func (p *PostView) FeedPost() (*FeedPost, error) {
	if len(p.Record) == 0 {
		return &FeedPost{}, nil
	}
	var rec FeedPost
	if err := json.Unmarshal(p.Record, &rec); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", p.URI, err)
	}
	return &rec, nil
}

type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type ReplyRef struct {
	Root   StrongRef `json:"root"`
	Parent StrongRef `json:"parent"`
}

type FeedPost struct {
	Text      string    `json:"text"`
	Facets    []Facet   `json:"facets,omitempty"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	CreatedAt string    `json:"createdAt"`
	Langs     []string  `json:"langs,omitempty"`
}

// Facet annotates the UTF-8 byte range [ByteStart, ByteEnd) of FeedPost.Text.
type Facet struct {
	Index    ByteSlice      `json:"index"`
	Features []FacetFeature `json:"features"`
}

type ByteSlice struct {
	ByteStart int `json:"byteStart"`
	ByteEnd   int `json:"byteEnd"`
}

type FacetFeature struct {
	Type string `json:"$type"`
	URI  string `json:"uri,omitempty"`
	DID  string `json:"did,omitempty"`
	Tag  string `json:"tag,omitempty"`
}

// EmbedKind is the resolved variant of an EmbedView.
type EmbedKind int

const (
	EmbedUnknown EmbedKind = iota
	EmbedImages
	EmbedVideo
	EmbedExternal
	EmbedRecord
	EmbedRecordWithMedia
)

// EmbedView is the hydrated embed of a post. Only the fields of the variant
// named by Type are populated; Media is set for recordWithMedia.
type EmbedView struct {
	Type string `json:"$type"`

	Images []ImageView `json:"images,omitempty"`

	CID          string `json:"cid,omitempty"`
	Playlist     string `json:"playlist,omitempty"`
	Thumbnail    string `json:"thumbnail,omitempty"`
	Alt          string `json:"alt,omitempty"`
	Presentation string `json:"presentation,omitempty"`

	External *ExternalView `json:"external,omitempty"`

	Record json.RawMessage `json:"record,omitempty"`
	Media  *EmbedView      `json:"media,omitempty"`
}

func (e *EmbedView) Kind() EmbedKind {
	if e == nil {
		return EmbedUnknown
	}
	switch e.Type {
	case TypeEmbedImages:
		return EmbedImages
	case TypeEmbedVideo:
		return EmbedVideo
	case TypeEmbedExternal:
		return EmbedExternal
	case TypeEmbedRecord:
		return EmbedRecord
	case TypeEmbedRecordWithMedia:
		return EmbedRecordWithMedia
	default:
		return EmbedUnknown
	}
}

type ImageView struct {
	Thumb    string `json:"thumb"`
	Fullsize string `json:"fullsize"`
	Alt      string `json:"alt"`
}

type ExternalView struct {
	URI         string `json:"uri"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumb       string `json:"thumb,omitempty"`
}

type threadResponse struct {
	Thread *ThreadNode `json:"thread"`
}
