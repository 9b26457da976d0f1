package util

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// ShortUUID generates a short UUID with 22 symbols
func ShortUUID() string {
	u := uuid.New()
	return base64.RawURLEncoding.EncodeToString(u[:]) // 22 symbols
}

// NewPointID returns a random identifier for a track point.
func NewPointID() string {
	return uuid.NewString()
}
