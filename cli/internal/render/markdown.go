package render

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/kiliankoe/threader/pkg/models"
)

var bracketEscaper = strings.NewReplacer("[", `\[`, "]", `\]`)

// markdown writes the thread as one document, one section per post.
func (p *Printer) markdown(res *models.FetchResult) error {
	t := res.Thread
	fmt.Fprintf(p.w, "# %s (@%s)\n\n", authorName(t.Author), t.Author.Acct)
	fmt.Fprintf(p.w, "Source: <%s>\n\n", t.SourceURL)

	for i, post := range t.Posts {
		heading := fmt.Sprintf("%d/%d", i+1, len(t.Posts))
		if post.URL != "" {
			heading = fmt.Sprintf("[%s](%s)", heading, post.URL)
		}
		fmt.Fprintf(p.w, "## %s · %s\n\n", heading, post.CreatedAt.UTC().Format("2006-01-02 15:04 UTC"))

		if post.SpoilerText != "" {
			fmt.Fprintf(p.w, "> CW: %s\n\n", post.SpoilerText)
		}
		if post.ContentHTML != "" {
			body, err := htmltomarkdown.ConvertString(post.ContentHTML)
			if err != nil {
				return fmt.Errorf("convert post %s: %w", post.ID, err)
			}
			if body = strings.TrimSpace(body); body != "" {
				fmt.Fprintf(p.w, "%s\n\n", body)
			}
		}

		for _, a := range post.Attachments {
			fmt.Fprintln(p.w, attachmentMarkdown(a))
		}
		for _, e := range post.LinkEmbeds {
			title := e.Title
			if title == "" {
				title = e.URL
			}
			fmt.Fprintf(p.w, "- [%s](%s)\n", bracketEscaper.Replace(title), e.URL)
		}
		if len(post.Attachments)+len(post.LinkEmbeds) > 0 {
			fmt.Fprintln(p.w)
		}
	}

	fmt.Fprintf(p.w, "---\n\n_%s_\n", p.footer(res))
	return nil
}

func attachmentMarkdown(a models.Attachment) string {
	if a.Type == models.AttachmentImage {
		return fmt.Sprintf("- ![%s](%s)", bracketEscaper.Replace(a.Description), a.URL)
	}
	label := string(a.Type)
	if a.Description != "" {
		label += ": " + a.Description
	}
	return fmt.Sprintf("- [%s](%s)", bracketEscaper.Replace(label), a.URL)
}
