package models

import "time"

type User struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	Password string `json:"-"`
	Name     string `json:"name"`

	IsEphemeral bool      `json:"isEphemeral"`
	CreatedAt   time.Time `json:"createdAt"`
}
