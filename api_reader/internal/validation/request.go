package validation

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kiliankoe/threader/pkg/threads"
)

const (
	MaxURLLength       = 2048
	MaxContextRequests = 8
	MaxParentLookups   = 100
)

type StartRequest struct {
	URL                    string `json:"url"`
	InitialContextRequests int    `json:"initialContextRequests"`
	MaxContextRequests     int    `json:"maxContextRequests"`
	MaxParentLookups       int    `json:"maxParentLookups"`
}

func (r StartRequest) Options() threads.Options {
	return threads.Options{
		InitialContextRequests: r.InitialContextRequests,
		MaxContextRequests:     r.MaxContextRequests,
		MaxParentLookups:       r.MaxParentLookups,
	}
}

type ContinueRequest struct {
	MaxContextRequests int `json:"maxContextRequests"`
}

func (r ContinueRequest) Options() threads.Options {
	return threads.Options{MaxContextRequests: r.MaxContextRequests}
}

// ValidateStart checks shape only; whether a platform recognizes the URL is
// decided by the adapter registry.
func ValidateStart(req *StartRequest) []string {
	var errors []string

	raw := strings.TrimSpace(req.URL)
	switch {
	case raw == "":
		errors = append(errors, "url is required")
	case len(raw) > MaxURLLength:
		errors = append(errors, "url is too long")
	default:
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errors = append(errors, "url must be an absolute http(s) url")
		}
	}

	errors = append(errors, checkRange("initialContextRequests", req.InitialContextRequests, MaxContextRequests)...)
	errors = append(errors, checkRange("maxContextRequests", req.MaxContextRequests, MaxContextRequests)...)
	errors = append(errors, checkRange("maxParentLookups", req.MaxParentLookups, MaxParentLookups)...)
	return errors
}

func ValidateContinue(req *ContinueRequest) []string {
	return checkRange("maxContextRequests", req.MaxContextRequests, MaxContextRequests)
}

// zero means "use the default"
func checkRange(field string, v, upper int) []string {
	if v < 0 || v > upper {
		return []string{fmt.Sprintf("%s must be between 0 and %d", field, upper)}
	}
	return nil
}
