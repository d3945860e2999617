package bluesky

import (
	"net/url"
	"strings"

	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
	"github.com/kiliankoe/threader/pkg/models"
)

// maxEmbedNodes bounds the worklist; real posts nest at most one media embed
// inside a record-with-media wrapper.
const maxEmbedNodes = 32

// extractEmbeds flattens an embed view into attachments and link previews.
// Quoted records are skipped; record-with-media contributes its media only.
func extractEmbeds(root *bclient.EmbedView) ([]models.Attachment, []models.LinkEmbed) {
	var (
		attachments []models.Attachment
		links       []models.LinkEmbed
	)
	queue := []*bclient.EmbedView{root}
	for visited := 0; len(queue) > 0 && visited < maxEmbedNodes; visited++ {
		e := queue[0]
		queue = queue[1:]

		switch e.Kind() {
		case bclient.EmbedImages:
			for _, img := range e.Images {
				src := img.Fullsize
				if src == "" {
					src = img.Thumb
				}
				if src == "" {
					continue
				}
				attachments = append(attachments, models.Attachment{
					Type:        models.AttachmentImage,
					URL:         src,
					PreviewURL:  img.Thumb,
					Description: img.Alt,
				})
			}
		case bclient.EmbedVideo:
			if e.Playlist == "" && e.Thumbnail == "" {
				continue
			}
			kind := models.AttachmentVideo
			if e.Presentation == "gif" {
				kind = models.AttachmentGifv
			}
			src := e.Playlist
			if src == "" {
				src = e.Thumbnail
			}
			attachments = append(attachments, models.Attachment{
				Type:        kind,
				URL:         src,
				PreviewURL:  e.Thumbnail,
				Description: e.Alt,
			})
		case bclient.EmbedExternal:
			if e.External == nil {
				continue
			}
			link := models.LinkEmbed{
				ID:          e.External.URI,
				URL:         e.External.URI,
				Title:       e.External.Title,
				Description: e.External.Description,
				SiteName:    siteName(e.External.URI),
				ImageURL:    e.External.Thumb,
			}
			if link.HasPreview() {
				links = append(links, link)
			}
		case bclient.EmbedRecordWithMedia:
			if e.Media != nil {
				queue = append(queue, e.Media)
			}
		}
	}
	return attachments, links
}

func siteName(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
