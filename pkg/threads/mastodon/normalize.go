package mastodon

import (
	mclient "github.com/kiliankoe/threader/pkg/clients/mastodon"
	"github.com/kiliankoe/threader/pkg/models"
)

func normalizeStatus(s *mclient.Status) models.Post {
	post := models.Post{
		ID:          s.ID,
		URL:         deref(s.URL),
		CreatedAt:   models.ParseTimestamp(s.CreatedAt),
		ContentHTML: s.Content,
		SpoilerText: s.SpoilerText,
		Sensitive:   s.Sensitive,
		InReplyToID: deref(s.InReplyToID),
		Counts: models.Counts{
			Replies:    nonNegative(s.RepliesCount),
			Boosts:     nonNegative(s.ReblogsCount),
			Favourites: nonNegative(s.FavouritesCount),
		},
		Account: models.Account{
			ID:          s.Account.ID,
			Username:    s.Account.Username,
			Acct:        s.Account.Acct,
			DisplayName: s.Account.DisplayName,
			URL:         s.Account.URL,
		},
		Attachments: normalizeMedia(s.MediaAttachments),
	}
	if post.URL == "" {
		post.URL = s.URI
	}
	if embed, ok := normalizeCard(s.Card); ok {
		post.LinkEmbeds = []models.LinkEmbed{embed}
	}
	return post
}

func normalizeStatuses(in []mclient.Status) []models.Post {
	out := make([]models.Post, 0, len(in))
	for i := range in {
		if in[i].ID == "" {
			continue
		}
		out = append(out, normalizeStatus(&in[i]))
	}
	return out
}

func normalizeMedia(in []mclient.MediaAttachment) []models.Attachment {
	out := make([]models.Attachment, 0, len(in))
	for _, m := range in {
		src := m.URL
		if src == "" {
			src = deref(m.RemoteURL)
		}
		preview := deref(m.PreviewURL)
		if src == "" && preview == "" {
			continue
		}
		out = append(out, models.Attachment{
			Type:        models.NormalizeAttachmentType(m.Type),
			URL:         src,
			PreviewURL:  preview,
			Description: deref(m.Description),
		})
	}
	return out
}

func normalizeCard(c *mclient.Card) (models.LinkEmbed, bool) {
	if c == nil || c.URL == "" {
		return models.LinkEmbed{}, false
	}
	embed := models.LinkEmbed{
		ID:          c.URL,
		URL:         c.URL,
		Title:       c.Title,
		Description: c.Description,
		SiteName:    c.ProviderName,
		ImageURL:    deref(c.Image),
	}
	return embed, embed.HasPreview()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
