package domain

import "time"

type RoomType string

const (
	RoomTypeHot        RoomType = "HOT"
	RoomTypePublic     RoomType = "PUBLIC"
	RoomTypeRestricted RoomType = "RESTRICTED" // зарезервирован, нигде не используется
)

func (t RoomType) Valid() bool {
	switch t {
	case RoomTypeHot, RoomTypePublic, RoomTypeRestricted:
		return true
	}
	return false
}

// Room: персистентные метаданные комнаты; ими владеет репозиторий.
type Room struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Type        RoomType  `db:"room_type"`
	UserLimit   int       `db:"user_limit"`
	Description string    `db:"description"`
	Categories  []string  `db:"categories"`
	CreatedBy   string    `db:"created_by"`
	CreatedAt   time.Time `db:"created_at"`
	LastActive  time.Time `db:"last_active"`
	IsOpen      bool      `db:"is_open"`
}

// Snapshot: то, что получает клиент при create/join/view.
type Snapshot struct {
	RoomID       string    `json:"roomId"`
	RoomName     string    `json:"roomName"`
	RoomType     RoomType  `json:"roomType"`
	UserLimit    int       `json:"userLimit"`
	Description  string    `json:"description"`
	Categories   []string  `json:"categories"`
	IsOpen       bool      `json:"isOpen"`
	Participants []string  `json:"participants"`
	Messages     []Message `json:"messages"`
}
