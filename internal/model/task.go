package model

import "time"

// Task is an opaque external record sessions may be linked to. The
// session engine never inspects it beyond existence and ownership.
type Task struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
