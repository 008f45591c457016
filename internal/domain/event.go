package domain

// Типы исходящих событий
const (
	EventConnected     = "connected"
	EventCreateRoom    = "create_room"
	EventJoinRoom      = "join_room"
	EventExitRoom      = "exit_room"
	EventIExit         = "i_exit"
	EventViewRoom      = "view_room"
	EventAddMessage    = "add_message"
	EventSetUserName   = "set_user_name"
	EventSetClaimToken = "set_claim_token"
	EventClaimID       = "claim_id"
	EventAppError      = "app_error"
)

type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type UserPayload struct {
	UserID string `json:"userId"`
}

type RenamePayload struct {
	UserID  string `json:"userId"`
	NewName string `json:"newName"`
}

type ClaimAckPayload struct {
	UserID      string `json:"userId"`
	OldSocketID string `json:"oldSocketId"`
	RoomID      string `json:"roomId,omitempty"`
}

type ErrorPayload struct {
	Code    Kind   `json:"code"`
	Message string `json:"message"`
	Op      string `json:"op,omitempty"`
}

// Notifier доставляет событие конкретному соединению.
// Вызывается под блокировкой комнаты, поэтому не должен блокироваться
// и не должен вызывать движок обратно.
type Notifier interface {
	Notify(connID string, evt Event)
}

type NotifierFunc func(connID string, evt Event)

func (f NotifierFunc) Notify(connID string, evt Event) { f(connID, evt) }

func ErrorEvent(op string, err error) Event {
	return Event{
		Type: EventAppError,
		Payload: ErrorPayload{
			Code:    KindOf(err),
			Message: err.Error(),
			Op:      op,
		},
	}
}
