package model

import "time"

// JournalEntry is one completed operator action.
type JournalEntry struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"size:36;index" json:"session_id"`
	Action    string    `gorm:"size:32;index;not null" json:"action"`
	Outcome   string    `gorm:"size:16;not null" json:"outcome"`
	Value     *int      `json:"value,omitempty"`
	Message   string    `gorm:"size:128;not null" json:"message"`
	Detail    string    `gorm:"size:512" json:"detail,omitempty"`
	CreatedAt time.Time `gorm:"index;not null" json:"created_at"`
}
