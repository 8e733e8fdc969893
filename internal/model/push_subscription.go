package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	Endpoint     string    `gorm:"primaryKey"`
	P256DH       string    `gorm:"column:p256dh;not null"`
	Auth         string    `gorm:"not null"`
	FailuresOnly bool      `gorm:"not null;default:false"` // only relay failure messages
	CreatedAt    time.Time `gorm:"not null"`
}
