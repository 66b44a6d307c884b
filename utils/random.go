package utils

import "crypto/rand"

// NewRecordID returns a 15-char lowercase alphanumeric id, the same
// shape PocketBase assigns, so ids stay uniform across store backends.
func NewRecordID() string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"

	id := make([]byte, 15)
	if _, err := rand.Read(id); err != nil {
		// crypto/rand failing means the process is in bad shape anyway
		panic(err)
	}
	for i := range id {
		id[i] = charset[int(id[i])%len(charset)]
	}
	return string(id)
}
