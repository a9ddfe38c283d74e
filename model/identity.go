package model

import "time"

// MaxIdentityLength is the width of every column holding an identity token.
const MaxIdentityLength = 64

// IdentityRecord is created lazily on the first append of a soft identity.
type IdentityRecord struct {
	Identity     string     `json:"identity" gorm:"primaryKey;size:64"`
	DisplayName  string     `json:"displayName" gorm:"size:100;not null"`
	LastAppendAt *time.Time `json:"lastAppendAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// TableName pins the table name.
func (IdentityRecord) TableName() string {
	return "identities"
}
