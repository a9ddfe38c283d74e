package locator

import (
	"testing"

	"VibeQ/core/errs"
	"VibeQ/model"

	"github.com/stretchr/testify/assert"
)

func TestDetectSourceKind(t *testing.T) {
	tests := []struct {
		locator string
		want    model.SourceKind
		ok      bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", model.SourceYouTubeVideo, true},
		{"https://youtu.be/dQw4w9WgXcQ", model.SourceYouTubeVideo, true},
		{"https://music.youtube.com/watch?v=dQw4w9WgXcQ&feature=share", model.SourceYouTubeMusic, true},
		{"youtube.com/embed/dQw4w9WgXcQ", model.SourceYouTubeVideo, true},
		{"https://www.youtube.com/v/dQw4w9WgXcQ", model.SourceYouTubeVideo, true},
		{"https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=abc", model.SourceSpotify, true},
		{"https://soundcloud.com/someone/song", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.locator, func(t *testing.T) {
			got, ok := DetectSourceKind(tt.locator)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(model.SourceYouTubeMusic, "https://youtu.be/dQw4w9WgXcQ"))
	assert.NoError(t, Validate(model.SourceSpotify, "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC"))

	assert.ErrorIs(t, Validate("soundcloud", "https://youtu.be/dQw4w9WgXcQ"), errs.ErrValidation)
	assert.ErrorIs(t, Validate(model.SourceSpotify, "https://youtu.be/dQw4w9WgXcQ"), errs.ErrValidation)
	assert.ErrorIs(t, Validate(model.SourceYouTubeVideo, "https://example.com"), errs.ErrValidation)

	// recognised as YouTube but the id is too short to load
	assert.ErrorIs(t, Validate(model.SourceYouTubeVideo, "https://www.youtube.com/watch?v=abc"), errs.ErrValidation)
	assert.ErrorIs(t, Validate(model.SourceYouTubeMusic, "https://youtu.be/short"), errs.ErrValidation)
}

func TestContentID(t *testing.T) {
	tests := []struct {
		name    string
		kind    model.SourceKind
		locator string
		want    string
		ok      bool
	}{
		{"watch", model.SourceYouTubeVideo, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"short", model.SourceYouTubeVideo, "https://youtu.be/dQw4w9WgXcQ?t=10", "dQw4w9WgXcQ", true},
		{"embed", model.SourceYouTubeMusic, "https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"second param", model.SourceYouTubeVideo, "https://www.youtube.com/watch?feature=x&v=dQw4w9WgXcQ", "dQw4w9WgXcQ", true},
		{"wrong length", model.SourceYouTubeVideo, "https://youtu.be/short", "", false},
		{"spotify", model.SourceSpotify, "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=1", "4uLU6hMCjMI75M1A2tKUQC", true},
		{"spotify album", model.SourceSpotify, "https://open.spotify.com/album/xyz", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ContentID(tt.kind, tt.locator)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbedURL(t *testing.T) {
	url, ok := EmbedURL(model.SourceSpotify, "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC")
	assert.True(t, ok)
	assert.Equal(t, "https://open.spotify.com/embed/track/4uLU6hMCjMI75M1A2tKUQC?utm_source=generator", url)

	_, ok = EmbedURL(model.SourceYouTubeVideo, "https://youtu.be/dQw4w9WgXcQ")
	assert.False(t, ok)
}
