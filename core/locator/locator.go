// Package locator classifies and parses the external URLs tracks point at.
package locator

import (
	"regexp"
	"strings"

	"VibeQ/core/errs"
	"VibeQ/model"
)

var (
	youtubePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/watch\?v=[\w-]+`),
		regexp.MustCompile(`^(https?://)?(www\.)?youtu\.be/[\w-]+`),
		regexp.MustCompile(`^(https?://)?music\.youtube\.com/watch\?v=[\w-]+`),
		regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/embed/[\w-]+`),
		regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/v/[\w-]+`),
	}
	spotifyPattern = regexp.MustCompile(`^(https?://)?(open\.)?spotify\.com/track/[a-zA-Z0-9]+`)

	youtubeID = regexp.MustCompile(`^.*(youtu\.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)
	spotifyID = regexp.MustCompile(`track/([a-zA-Z0-9]+)`)
)

// DetectSourceKind classifies a locator, returning false when it matches no
// supported provider.
func DetectSourceKind(locator string) (model.SourceKind, bool) {
	locator = strings.TrimSpace(locator)
	if spotifyPattern.MatchString(locator) {
		return model.SourceSpotify, true
	}
	for _, p := range youtubePatterns {
		if p.MatchString(locator) {
			if strings.Contains(locator, "music.youtube.com") {
				return model.SourceYouTubeMusic, true
			}
			return model.SourceYouTubeVideo, true
		}
	}
	return "", false
}

// Validate checks that locator belongs to the provider family of kind and
// carries a content id a player can load. Both YouTube kinds accept any
// YouTube locator.
func Validate(kind model.SourceKind, locator string) error {
	if !kind.Valid() {
		return errs.Validation("unknown source kind %q", kind)
	}
	detected, ok := DetectSourceKind(locator)
	if !ok {
		return errs.Validation("unsupported locator")
	}
	if detected.Interactive() != kind.Interactive() {
		return errs.Validation("locator does not match source kind %q", kind)
	}
	if _, ok := ContentID(kind, strings.TrimSpace(locator)); !ok {
		return errs.Validation("locator has no valid content id")
	}
	return nil
}

// ContentID extracts the provider's content id. YouTube ids are always 11
// characters; anything else is rejected.
func ContentID(kind model.SourceKind, locator string) (string, bool) {
	if kind == model.SourceSpotify {
		m := spotifyID.FindStringSubmatch(locator)
		if m == nil {
			return "", false
		}
		return m[1], true
	}
	m := youtubeID.FindStringSubmatch(locator)
	if m == nil || len(m[2]) != 11 {
		return "", false
	}
	return m[2], true
}

// EmbedURL is the player URL for providers without a control surface.
func EmbedURL(kind model.SourceKind, locator string) (string, bool) {
	if kind != model.SourceSpotify {
		return "", false
	}
	id, ok := ContentID(kind, locator)
	if !ok {
		return "", false
	}
	return "https://open.spotify.com/embed/track/" + id + "?utm_source=generator", true
}
