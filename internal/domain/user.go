package domain

import "time"

// User is a local account that may own developer records on the remote
// system.
type User struct {
	ID    int64     `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	CDate time.Time `json:"cdate"`
	MDate time.Time `json:"mdate"`
}
