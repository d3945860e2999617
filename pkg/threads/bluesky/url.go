package bluesky

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kiliankoe/threader/pkg/models"
	"github.com/kiliankoe/threader/pkg/threads"
)

const (
	WebHost     = "bsky.app"
	webHostWWW  = "www.bsky.app"
	webBaseURL  = "https://" + WebHost
	maxRKeySize = 512
)

var (
	handlePattern = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?$`)
	didPattern    = regexp.MustCompile(`^did:[a-z]+:[a-zA-Z0-9._:%-]*[a-zA-Z0-9._-]$`)
	rkeyPattern   = regexp.MustCompile(`^[a-zA-Z0-9._:~-]+$`)
)

// ParseURL accepts https://bsky.app/profile/{handle|did}/post/{rkey}.
func ParseURL(raw string) (*threads.ParsedURL, error) {
	fail := func(reason string) (*threads.ParsedURL, error) {
		return nil, &threads.ParseError{Platform: models.PlatformBluesky, URL: raw, Reason: reason}
	}

	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fail("not a valid url")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fail("scheme must be http or https")
	}
	host := strings.ToLower(u.Hostname())
	if host != WebHost && host != webHostWWW {
		return fail("host is not bsky.app")
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) != 4 || segments[0] != "profile" || segments[2] != "post" {
		return fail("path is not /profile/<actor>/post/<rkey>")
	}

	actor, err := url.PathUnescape(segments[1])
	if err != nil || !validActor(actor) {
		return fail("actor is neither a handle nor a did")
	}
	if !strings.HasPrefix(actor, "did:") {
		actor = strings.ToLower(actor)
	}
	rkey := segments[3]
	if !validRKey(rkey) {
		return fail("invalid record key")
	}

	return &threads.ParsedURL{
		Platform:     models.PlatformBluesky,
		Instance:     WebHost,
		Actor:        actor,
		ID:           rkey,
		CanonicalURL: PostWebURL(actor, rkey),
	}, nil
}

// PostWebURL is the bsky.app URL of a post.
func PostWebURL(actor, rkey string) string {
	return webBaseURL + "/profile/" + actor + "/post/" + rkey
}

// ProfileWebURL is the bsky.app URL of a profile.
func ProfileWebURL(actor string) string {
	return webBaseURL + "/profile/" + actor
}

// HashtagWebURL is the bsky.app search URL of a hashtag.
func HashtagWebURL(tag string) string {
	return webBaseURL + "/hashtag/" + url.PathEscape(tag)
}

func validActor(actor string) bool {
	if strings.HasPrefix(actor, "did:") {
		return len(actor) <= 2048 && didPattern.MatchString(actor)
	}
	return len(actor) <= 253 && handlePattern.MatchString(actor)
}

func validRKey(rkey string) bool {
	if rkey == "" || rkey == "." || rkey == ".." || len(rkey) > maxRKeySize {
		return false
	}
	return rkeyPattern.MatchString(rkey)
}
