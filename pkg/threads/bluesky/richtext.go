package bluesky

import (
	"sort"
	"strings"

	"golang.org/x/net/html"

	bclient "github.com/kiliankoe/threader/pkg/clients/bluesky"
)

type span struct {
	start, end int
	href       string
}

// RenderRichText turns post text plus facets into paragraph markup. Facet
// offsets are UTF-8 byte offsets; they are snapped to character boundaries
// (start down, end up) so an anchor never splits a multi-byte character.
// Overlapping facets are resolved by keeping, in (start, end) order, only
// ranges that do not overlap one already kept.
func RenderRichText(text string, facets []bclient.Facet) string {
	if text == "" {
		return ""
	}
	bounds := runeBoundaries(text)

	spans := make([]span, 0, len(facets))
	for _, f := range facets {
		start := snapDown(bounds, f.Index.ByteStart)
		end := snapUp(bounds, f.Index.ByteEnd)
		if start >= end {
			continue
		}
		href, ok := facetHref(f.Features, text[start:end])
		if !ok {
			continue
		}
		spans = append(spans, span{start: start, end: end, href: href})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].start != spans[j].start {
			return spans[i].start < spans[j].start
		}
		return spans[i].end < spans[j].end
	})

	var b strings.Builder
	b.WriteString("<p>")
	cursor := 0
	for _, s := range spans {
		if s.start < cursor {
			continue
		}
		writeText(&b, text[cursor:s.start])
		b.WriteString(`<a href="`)
		b.WriteString(html.EscapeString(s.href))
		b.WriteString(`" rel="noopener noreferrer" target="_blank">`)
		writeText(&b, text[s.start:s.end])
		b.WriteString("</a>")
		cursor = s.end
	}
	writeText(&b, text[cursor:])
	b.WriteString("</p>")
	return b.String()
}

// runeBoundaries lists the byte offset of every character start plus len(text).
// It is sorted, which is what the snapping binary searches rely on.
func runeBoundaries(text string) []int {
	bounds := make([]int, 0, len(text)+1)
	for i := range text {
		bounds = append(bounds, i)
	}
	return append(bounds, len(text))
}

// snapDown returns the largest boundary <= off.
func snapDown(bounds []int, off int) int {
	if off <= 0 {
		return 0
	}
	i := sort.SearchInts(bounds, off)
	if i < len(bounds) && bounds[i] == off {
		return off
	}
	if i == 0 {
		return bounds[0]
	}
	return bounds[i-1]
}

// snapUp returns the smallest boundary >= off.
func snapUp(bounds []int, off int) int {
	i := sort.SearchInts(bounds, off)
	if i >= len(bounds) {
		return bounds[len(bounds)-1]
	}
	return bounds[i]
}

func facetHref(features []bclient.FacetFeature, visible string) (string, bool) {
	for _, feat := range features {
		switch feat.Type {
		case bclient.TypeFacetLink:
			if feat.URI != "" {
				return feat.URI, true
			}
		case bclient.TypeFacetMention:
			if feat.DID != "" {
				return ProfileWebURL(feat.DID), true
			}
		case bclient.TypeFacetTag:
			tag := feat.Tag
			if tag == "" {
				tag = strings.TrimPrefix(visible, "#")
			}
			if tag != "" {
				return HashtagWebURL(tag), true
			}
		}
	}
	return "", false
}

func writeText(b *strings.Builder, s string) {
	if s == "" {
		return
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<br>")
		}
		b.WriteString(html.EscapeString(line))
	}
}
