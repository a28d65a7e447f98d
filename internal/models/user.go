package models

import "time"

// Credential is a row of the credentials table. The password is only ever
// held as a bcrypt hash.
type Credential struct {
	Username     string    `json:"username" db:"username"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
