package platform

import (
	"crypto/rand"

	"github.com/google/uuid"
)

const (
	nameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	nameLength   = 10
)

// NewID returns a random UUID. Used for API keys and restore workspaces.
func NewID() string {
	return uuid.New().String()
}

// NewName returns prefix followed by ten random lowercase alphanumerics,
// short enough to read in workflow IDs and logs.
func NewName(prefix string) string {
	b := make([]byte, nameLength)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = nameAlphabet[b[i]%byte(len(nameAlphabet))]
	}
	return prefix + string(b)
}
