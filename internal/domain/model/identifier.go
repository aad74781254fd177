package model

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// ErrInvalidReference is returned when a reference does not match any recognized item shape.
var ErrInvalidReference = errors.New("invalid item reference")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

// Hosts that carry the id in the "v" query parameter.
var queryHosts = map[string]bool{
	"youtube.com":        true,
	"www.youtube.com":    true,
	"m.youtube.com":      true,
	"music.youtube.com":  true,
	"gaming.youtube.com": true,
}

// Hosts that carry the id as a path segment after one of pathPrefixes.
var pathHosts = map[string]bool{
	"youtube.com":              true,
	"www.youtube.com":          true,
	"m.youtube.com":            true,
	"music.youtube.com":        true,
	"gaming.youtube.com":       true,
	"youtube-nocookie.com":     true,
	"www.youtube-nocookie.com": true,
}

var pathPrefixes = []string{"/embed/", "/v/", "/shorts/", "/live/"}

// IsValidItemID reports whether s already has the canonical id shape.
func IsValidItemID(s string) bool {
	return idPattern.MatchString(s)
}

// NormalizeReference extracts the canonical item id from a bare id or a watch/share URL.
// Applying it to its own output returns the same id.
func NormalizeReference(reference string) (ItemID, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", ErrInvalidReference
	}
	if IsValidItemID(ref) {
		return ItemID(ref), nil
	}

	if !strings.Contains(ref, "://") {
		ref = "https://" + ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", ErrInvalidReference
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidReference
	}

	host := strings.ToLower(u.Hostname())
	var candidate string

	switch {
	case host == "youtu.be":
		candidate = firstSegment(strings.TrimPrefix(u.Path, "/"))
	case queryHosts[host] && u.Path == "/watch":
		candidate = u.Query().Get("v")
	case pathHosts[host]:
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(u.Path, prefix) {
				candidate = firstSegment(strings.TrimPrefix(u.Path, prefix))
				break
			}
		}
	}

	if !IsValidItemID(candidate) {
		return "", ErrInvalidReference
	}
	return ItemID(candidate), nil
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}
