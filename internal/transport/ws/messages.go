package ws

import (
	"encoding/json"
	"fmt"

	"github.com/cwrk-planet/roomcoord/internal/coordinator"
	"github.com/cwrk-planet/roomcoord/internal/domain"
)

// Envelope: входящий кадр: {"type": "...", "payload": {...}}.
// Исходящие кадры кодируются прямо из domain.Event той же формы.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// decodeRequest разбирает кадр в типизированный запрос движка.
// Возвращает тип кадра даже при ошибке, чтобы app_error нёс op.
func decodeRequest(data []byte) (string, coordinator.Request, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("%w: malformed frame", domain.ErrInvalidRequest)
	}

	decode, ok := decoders[env.Type]
	if !ok {
		return env.Type, nil, fmt.Errorf("%w: unknown type %q", domain.ErrInvalidRequest, env.Type)
	}
	req, err := decode(env.Payload)
	return env.Type, req, err
}

var decoders = map[string]func(json.RawMessage) (coordinator.Request, error){
	domain.EventCreateRoom:    payload[coordinator.CreateRoom],
	domain.EventJoinRoom:      payload[coordinator.JoinRoom],
	domain.EventExitRoom:      payload[coordinator.ExitRoom],
	domain.EventViewRoom:      payload[coordinator.ViewRoom],
	domain.EventAddMessage:    payload[coordinator.AddMessage],
	domain.EventSetUserName:   payload[coordinator.SetUserName],
	domain.EventSetClaimToken: payload[coordinator.SetClaimToken],
	domain.EventClaimID:       payload[coordinator.ClaimID],
}

func payload[T coordinator.Request](raw json.RawMessage) (coordinator.Request, error) {
	var v T
	if len(raw) == 0 || string(raw) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: bad payload", domain.ErrInvalidRequest)
	}
	return v, nil
}
