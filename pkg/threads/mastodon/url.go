package mastodon

import (
	"net/url"
	"strings"

	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

// ParseURL accepts http(s) status URLs whose path contains "/@" or "/statuses/"
// and ends in a numeric status id.
//
//	https://example.social/@alice/1123
//	https://example.social/@alice@remote.host/1123
//	https://example.social/users/alice/statuses/1123
//	https://example.social/web/statuses/1123
func ParseURL(raw string) (*threads.ParsedURL, error) {
	fail := func(reason string) (*threads.ParsedURL, error) {
		return nil, &threads.ParseError{Platform: models.PlatformMastodon, URL: raw, Reason: reason}
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fail("not a valid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("scheme must be http or https")
	}
	if u.Host == "" {
		return fail("missing host")
	}

	path := strings.TrimRight(u.Path, "/")
	if !strings.Contains(path, "/@") && !strings.Contains(path, "/statuses/") {
		return fail("path has neither /@user nor /statuses/")
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	id := segments[len(segments)-1]
	if !isDigits(id) {
		return fail("last path segment is not a numeric status id")
	}

	actor := ""
	for i, seg := range segments[:len(segments)-1] {
		if strings.HasPrefix(seg, "@") && len(seg) > 1 {
			actor = seg[1:]
			break
		}
		if seg == "users" && i+1 < len(segments)-1 {
			actor = segments[i+1]
			break
		}
	}

	host := strings.ToLower(u.Host)
	return &threads.ParsedURL{
		Platform:     models.PlatformMastodon,
		Instance:     host,
		Actor:        actor,
		ID:           id,
		CanonicalURL: CanonicalURL(host, actor, id),
	}, nil
}

// CanonicalURL is the web URL of a status; without an actor it falls back to /statuses/{id}.
func CanonicalURL(host, actor, id string) string {
	if actor != "" {
		return "https://" + host + "/@" + actor + "/" + id
	}
	return "https://" + host + "/statuses/" + id
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
