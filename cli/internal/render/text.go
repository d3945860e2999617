// Package render prints threads for a terminal or as JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"golang.org/x/net/html"

	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

type styles struct {
	header func(a ...any) string
	meta   func(a ...any) string
	dim    func(a ...any) string
	warn   func(a ...any) string
}

func newStyles(enabled bool) styles {
	mk := func(attrs ...color.Attribute) func(a ...any) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return styles{
		header: mk(color.FgCyan, color.Bold),
		meta:   mk(color.FgYellow),
		dim:    mk(color.Faint),
		warn:   mk(color.FgRed),
	}
}

// Format selects how a Printer renders.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Printer writes results in one output format.
type Printer struct {
	w      io.Writer
	format Format
	style  styles
	now    func() time.Time
}

// NewPrinter returns a printer for format; unknown formats print text.
// Color only applies to text output.
func NewPrinter(w io.Writer, format Format, useColor bool) *Printer {
	return &Printer{w: w, format: format, style: newStyles(useColor && format != FormatMarkdown), now: time.Now}
}

// Result prints a fetch result: the whole thread plus its continuation state.
func (p *Printer) Result(res *models.FetchResult) error {
	if p.format == FormatJSON {
		return p.writeJSON(res)
	}
	t := res.Thread
	if t == nil {
		return fmt.Errorf("result has no thread")
	}
	if p.format == FormatMarkdown {
		return p.markdown(res)
	}

	fmt.Fprintf(p.w, "%s %s\n", p.style.header(authorName(t.Author)), p.style.dim("@"+t.Author.Acct))
	fmt.Fprintf(p.w, "%s\n", p.style.dim(fmt.Sprintf("%s · %s", t.Platform, t.SourceURL)))
	if t.HasAlternateBranches {
		fmt.Fprintf(p.w, "%s\n", p.style.dim("(the author replied more than once somewhere; showing the earliest branch)"))
	}
	fmt.Fprintln(p.w)

	for i, post := range t.Posts {
		p.post(i+1, len(t.Posts), post)
	}

	footer := p.footer(res)
	if res.RateLimited() {
		fmt.Fprintf(p.w, "%s\n", p.style.warn(footer))
	} else {
		fmt.Fprintf(p.w, "%s\n", p.style.dim(footer))
	}
	return nil
}

func (p *Printer) footer(res *models.FetchResult) string {
	n := len(res.Thread.Posts)
	switch {
	case res.RateLimited():
		wait := res.RateLimitedUntil.Sub(p.now()).Round(time.Second)
		return fmt.Sprintf("%d posts; rate limited, retry in %s", n, wait)
	case res.HasMore:
		return fmt.Sprintf("%d posts; more may be available (use --follow)", n)
	default:
		return fmt.Sprintf("%d posts", n)
	}
}

func authorName(a models.Account) string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.Username
}

func (p *Printer) post(n, total int, post models.Post) {
	stamp := post.CreatedAt.Local().Format("2006-01-02 15:04")
	fmt.Fprintf(p.w, "%s %s\n", p.style.meta(fmt.Sprintf("[%d/%d]", n, total)), p.style.dim(stamp))

	if post.SpoilerText != "" {
		fmt.Fprintf(p.w, "%s\n", p.style.warn("CW: "+post.SpoilerText))
	}
	if text := HTMLToText(post.ContentHTML); text != "" {
		fmt.Fprintln(p.w, text)
	}
	for _, a := range post.Attachments {
		line := fmt.Sprintf("  [%s] %s", a.Type, a.URL)
		if a.Description != "" {
			line += " (" + a.Description + ")"
		}
		fmt.Fprintln(p.w, p.style.dim(line))
	}
	for _, e := range post.LinkEmbeds {
		title := e.Title
		if title == "" {
			title = e.SiteName
		}
		fmt.Fprintln(p.w, p.style.dim(fmt.Sprintf("  [link] %s %s", title, e.URL)))
	}
	fmt.Fprintln(p.w)
}

// Parsed prints a parsed post URL.
func (p *Printer) Parsed(parsed *threads.ParsedURL) error {
	if p.format == FormatJSON {
		return p.writeJSON(parsed)
	}
	rows := [][2]string{
		{"platform", string(parsed.Platform)},
		{"instance", parsed.Instance},
		{"actor", parsed.Actor},
		{"id", parsed.ID},
		{"canonical", parsed.CanonicalURL},
	}
	for _, r := range rows {
		if r[1] == "" {
			continue
		}
		fmt.Fprintf(p.w, "%s %s\n", p.style.meta(fmt.Sprintf("%-10s", r[0]+":")), r[1])
	}
	return nil
}

func (p *Printer) writeJSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// HTMLToText flattens post HTML: paragraphs become blank-line separated,
// <br> becomes a newline, and only text content survives.
func HTMLToText(s string) string {
	if s == "" {
		return ""
	}
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	paragraphs := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "br":
				b.WriteByte('\n')
			case "p":
				if paragraphs > 0 {
					b.WriteString("\n\n")
				}
				paragraphs++
			}
		}
	}
}
