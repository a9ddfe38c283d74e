package model

import "time"

// SourceKind identifies which external media provider a locator points at.
type SourceKind string

const (
	SourceYouTubeMusic SourceKind = "youtube-music"
	SourceYouTubeVideo SourceKind = "youtube-video"
	SourceSpotify      SourceKind = "spotify"
)

// Valid reports whether k is one of the known source kinds.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceYouTubeMusic, SourceYouTubeVideo, SourceSpotify:
		return true
	}
	return false
}

// Interactive reports whether the provider exposes a scriptable player.
func (k SourceKind) Interactive() bool {
	return k == SourceYouTubeMusic || k == SourceYouTubeVideo
}

// TrackEntry is one item in the shared queue. Entries are never updated,
// only created and deleted.
type TrackEntry struct {
	ID               string     `json:"id" gorm:"primaryKey;size:64"`
	Title            string     `json:"title" gorm:"size:255;not null"`
	Performer        string     `json:"performer" gorm:"size:255"`
	SourceKind       SourceKind `json:"sourceKind" gorm:"size:32;not null"`
	Locator          string     `json:"locator" gorm:"size:1024;not null"`
	Thumbnail        string     `json:"thumbnail,omitempty" gorm:"size:1024"`
	DurationSeconds  *int       `json:"durationSeconds,omitempty"`
	OwnerIdentity    string     `json:"ownerIdentity" gorm:"size:64;not null;index:idx_tracks_owner_created,priority:1"`
	OwnerDisplayName string     `json:"ownerDisplayName" gorm:"size:100;not null"`
	CreatedAt        time.Time  `json:"createdAt" gorm:"not null;index;index:idx_tracks_owner_created,priority:2"`
}

// TableName pins the table name.
func (TrackEntry) TableName() string {
	return "tracks"
}

// OldestFirst returns a reversed copy of a newest-first listing, which is the
// order tracks are played in.
func OldestFirst(tracks []*TrackEntry) []*TrackEntry {
	out := make([]*TrackEntry, len(tracks))
	for i, t := range tracks {
		out[len(tracks)-1-i] = t
	}
	return out
}
