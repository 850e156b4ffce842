package util

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// NewID returns a 24-char hex record ID. The first four bytes are the Unix
// time so IDs created in sequence sort roughly by creation.
func NewID() string {
	b := make([]byte, 12)
	now := uint32(time.Now().Unix())
	b[0] = byte(now >> 24)
	b[1] = byte(now >> 16)
	b[2] = byte(now >> 8)
	b[3] = byte(now)
	_, _ = rand.Read(b[4:])
	return hex.EncodeToString(b)
}

// IsID reports whether s looks like an ID produced by NewID.
func IsID(s string) bool {
	if len(s) != 24 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
