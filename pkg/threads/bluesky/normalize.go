package bluesky

import (
	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	"github.com/kiliankoe/threader/pkg/models"
)

// maxThreadNodes caps how many nodes a single getPostThread response may
// contribute; the API's own depth limit keeps real responses far below it.
const maxThreadNodes = 20000

// flattenThread collects every post view reachable from root through parent
// links and reply lists, deduplicated by URI, in discovery order.
func flattenThread(root *bclient.ThreadNode) []*bclient.PostView {
	var out []*bclient.PostView
	seen := make(map[string]struct{})
	stack := []*bclient.ThreadNode{root}
	for visited := 0; len(stack) > 0 && visited < maxThreadNodes; visited++ {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.Kind() != bclient.NodePost || n.Post == nil || n.Post.URI == "" {
			continue
		}
		if _, dup := seen[n.Post.URI]; dup {
			continue
		}
		seen[n.Post.URI] = struct{}{}
		out = append(out, n.Post)

		if n.Parent != nil {
			stack = append(stack, n.Parent)
		}
		for i := len(n.Replies) - 1; i >= 0; i-- {
			if n.Replies[i] != nil {
				stack = append(stack, n.Replies[i])
			}
		}
	}
	return out
}

// normalizePost converts a post view. Records that fail to decode are dropped.
func normalizePost(pv *bclient.PostView) (models.Post, bool) {
	rec, err := pv.FeedPost()
	if err != nil {
		return models.Post{}, false
	}
	actor := pv.Author.Handle
	if actor == "" || actor == "handle.invalid" {
		actor = pv.Author.DID
	}

	post := models.Post{
		ID:          pv.URI,
		CreatedAt:   models.ParseTimestamp(rec.CreatedAt),
		ContentHTML: RenderRichText(rec.Text, rec.Facets),
		Counts: models.Counts{
			Replies:    max(pv.ReplyCount, 0),
			Boosts:     max(pv.RepostCount, 0),
			Favourites: max(pv.LikeCount, 0),
		},
		Account: models.Account{
			ID:          pv.Author.DID,
			Username:    pv.Author.Handle,
			Acct:        pv.Author.Handle,
			DisplayName: pv.Author.DisplayName,
			URL:         ProfileWebURL(actor),
		},
		Attachments: []models.Attachment{},
	}
	if rec.CreatedAt == "" {
		post.CreatedAt = models.ParseTimestamp(pv.IndexedAt)
	}
	if _, rkey, ok := bclient.SplitPostURI(pv.URI); ok {
		post.URL = PostWebURL(actor, rkey)
	}
	if rec.Reply != nil {
		post.InReplyToID = rec.Reply.Parent.URI
	}
	if pv.Embed != nil {
		attachments, links := extractEmbeds(pv.Embed)
		if len(attachments) > 0 {
			post.Attachments = attachments
		}
		post.LinkEmbeds = links
	}
	return post, true
}

func normalizePosts(views []*bclient.PostView) []models.Post {
	out := make([]models.Post, 0, len(views))
	for _, pv := range views {
		if p, ok := normalizePost(pv); ok {
			out = append(out, p)
		}
	}
	return out
}
