package domain

import "errors"

// Kind: код ошибки, который уходит клиенту в app_error.
type Kind string

const (
	KindRoomIDRequired      Kind = "ROOM_ID_REQUIRED"
	KindRoomNotFound        Kind = "ROOM_NOT_FOUND"
	KindRoomClosed          Kind = "ROOM_CLOSED"
	KindRoomFull            Kind = "ROOM_FULL"
	KindUserAlreadyInRoom   Kind = "USER_ALREADY_IN_ROOM"
	KindUserNotInRoom       Kind = "USER_NOT_IN_ROOM"
	KindNameRequired        Kind = "NAME_REQUIRED"
	KindMessageRequired     Kind = "MESSAGE_REQUIRED"
	KindMessageTooLong      Kind = "MESSAGE_TOO_LONG"
	KindMissingOldConnID    Kind = "NO_OLD_SOCKET_ID"
	KindInvalidOldConnID    Kind = "INVALID_OLD_SOCKET_ID"
	KindClaimTokenRejected  Kind = "CLAIM_TOKEN_REJECTED"
	KindRateLimited         Kind = "RATE_LIMITED"
	KindInvalidRequest      Kind = "INVALID_REQUEST"
	KindDuplicateConnection Kind = "DUPLICATE_CONNECTION"
	KindInternal            Kind = "INTERNAL"
)

var (
	ErrRoomIDRequired      = errors.New("room id is required")
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomClosed          = errors.New("room is closed")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyInRoom       = errors.New("user already in another room")
	ErrNotInRoom           = errors.New("user not in the room")
	ErrNameRequired        = errors.New("new name is required")
	ErrMessageRequired     = errors.New("message is required")
	ErrMessageTooLong      = errors.New("message too long")
	ErrMissingOldConnID    = errors.New("old socket id is required")
	ErrInvalidOldConnID    = errors.New("old socket id is unknown or has no claim token")
	ErrClaimTokenRejected  = errors.New("claim token rejected")
	ErrRateLimited         = errors.New("rate limit exceeded")
	ErrInvalidRequest      = errors.New("invalid request")
	ErrDuplicateConnection = errors.New("connection already registered")
	ErrUnknownConnection   = errors.New("unknown connection")
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrRoomIDRequired, KindRoomIDRequired},
	{ErrRoomNotFound, KindRoomNotFound},
	{ErrRoomClosed, KindRoomClosed},
	{ErrRoomFull, KindRoomFull},
	{ErrAlreadyInRoom, KindUserAlreadyInRoom},
	{ErrNotInRoom, KindUserNotInRoom},
	{ErrNameRequired, KindNameRequired},
	{ErrMessageRequired, KindMessageRequired},
	{ErrMessageTooLong, KindMessageTooLong},
	{ErrMissingOldConnID, KindMissingOldConnID},
	{ErrInvalidOldConnID, KindInvalidOldConnID},
	{ErrClaimTokenRejected, KindClaimTokenRejected},
	{ErrRateLimited, KindRateLimited},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrDuplicateConnection, KindDuplicateConnection},
}

// KindOf сопоставляет ошибку с кодом; всё неизвестное: INTERNAL.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
