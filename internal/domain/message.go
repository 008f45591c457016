package domain

import "time"

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	AuthorID  string    `json:"userId"`
	Body      string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
