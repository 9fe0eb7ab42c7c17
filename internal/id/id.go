package id

import (
	"fmt"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ShareTokenLength is the number of characters in a share token.
// 32 characters from the 64-symbol NanoID alphabet give 192 bits of entropy.
const ShareTokenLength = 32

// LibraryPrefix prefixes task library storage identifiers.
const LibraryPrefix = "tl"

// NewLibraryID returns a storage identity for a task library: "tl-<uuid>".
// The natural key stays (owner, type, category); this ID only names the row.
func NewLibraryID() string {
	return LibraryPrefix + "-" + uuid.NewString()
}

// NewShareToken creates an unguessable, URL-safe share token.
//
// Returns an error if the system has insufficient entropy for secure random generation.
func NewShareToken() (string, error) {
	token, err := gonanoid.New(ShareTokenLength)
	if err != nil {
		return "", fmt.Errorf("generate share token: %w", err)
	}
	return token, nil
}
