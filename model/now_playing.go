package model

import "time"

// NowPlayingKey is the primary key of the single pointer row.
const NowPlayingKey = "current_playing_song_id"

// NowPlaying holds the shared "now playing" pointer. There is only ever one
// row, keyed by NowPlayingKey. A nil or dangling track id means nothing is
// playing.
type NowPlaying struct {
	Key            string    `json:"-" gorm:"column:state_key;primaryKey;size:64"`
	CurrentTrackID *string   `json:"currentTrackId" gorm:"size:64"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// TableName pins the table name.
func (NowPlaying) TableName() string {
	return "app_state"
}
