package coordinator

import (
	"strings"

	"github.com/cwrk-planet/roomcoord/internal/domain"
)

// Request: одна входящая операция. Обязательные поля проверяются в
// Validate до того, как запрос коснётся состояния комнат.
type Request interface {
	Op() string
	Validate() error
}

type CreateRoom struct {
	RoomName    string          `json:"roomName"`
	RoomType    domain.RoomType `json:"roomType"`
	UserLimit   int             `json:"userLimit"`
	Description string          `json:"description"`
	Categories  []string        `json:"categories"`
	IsOpen      *bool           `json:"isOpen"`
}

type JoinRoom struct {
	RoomID string `json:"roomId"`
}

type ExitRoom struct {
	RoomID string `json:"roomId"`
}

type ViewRoom struct {
	RoomID string `json:"roomId"`
}

type AddMessage struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type SetUserName struct {
	NewName string `json:"newName"`
}

type SetClaimToken struct {
	ClaimToken string `json:"claimToken"`
}

type ClaimID struct {
	ClaimToken  string `json:"claimToken"`
	OldSocketID string `json:"oldSocketId"`
}

func (CreateRoom) Op() string    { return domain.EventCreateRoom }
func (JoinRoom) Op() string      { return domain.EventJoinRoom }
func (ExitRoom) Op() string      { return domain.EventExitRoom }
func (ViewRoom) Op() string      { return domain.EventViewRoom }
func (AddMessage) Op() string    { return domain.EventAddMessage }
func (SetUserName) Op() string   { return domain.EventSetUserName }
func (SetClaimToken) Op() string { return domain.EventSetClaimToken }
func (ClaimID) Op() string       { return domain.EventClaimID }

func (r CreateRoom) Validate() error {
	switch r.RoomType {
	case "", domain.RoomTypeHot, domain.RoomTypePublic:
		return nil
	}
	// RESTRICTED зарезервирован и не создаётся
	return domain.ErrInvalidRequest
}

func (r JoinRoom) Validate() error { return requireRoomID(r.RoomID) }
func (r ExitRoom) Validate() error { return requireRoomID(r.RoomID) }
func (r ViewRoom) Validate() error { return requireRoomID(r.RoomID) }

func (r AddMessage) Validate() error {
	if err := requireRoomID(r.RoomID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Message) == "" {
		return domain.ErrMessageRequired
	}
	return nil
}

func (r SetUserName) Validate() error {
	if strings.TrimSpace(r.NewName) == "" {
		return domain.ErrNameRequired
	}
	return nil
}

func (SetClaimToken) Validate() error { return nil }

func (r ClaimID) Validate() error {
	if strings.TrimSpace(r.OldSocketID) == "" {
		return domain.ErrMissingOldConnID
	}
	return nil
}

func requireRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.ErrRoomIDRequired
	}
	return nil
}
