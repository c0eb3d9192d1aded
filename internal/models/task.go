package models

import "time"

// Task is a personal agenda item (irrigation, pruning, treatments...).
type Task struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Detail    string    `json:"detail"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"created_at"`
}
