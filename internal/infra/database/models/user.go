package models

import (
	"time"
)

// User is a local account that can own developer records. Developer records
// themselves live on the remote system; only the owning account is local.
type User struct {
	ID    int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Name  string    `json:"name" gorm:"type:text;not null"`
	Email string    `json:"email" gorm:"type:text;index:user_email,unique;not null"`
	CDate time.Time `json:"cdate" gorm:"->;<-:create;type:timestamp with time zone;not null;default:clock_timestamp()"`
	MDate time.Time `json:"mdate" gorm:"autoUpdateTime"`
}
