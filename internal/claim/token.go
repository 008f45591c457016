package claim

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"
)

const tokenBytes = 24

// NewToken генерирует криптостойкий base64url токен, если клиент не прислал свой.
func NewToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func tokensEqual(stored, presented string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(presented)) == 1
}
