package signaling

import (
	"crypto/rand"
	"encoding/binary"
)

// NewUserID generates a fresh unsigned 32-bit peer identifier (spec.md §6:
// "a random unsigned 32-bit integer"). No uniqueness check happens here; at
// JOIN time the Registry rejects an id that is already in a lobby with
// already_joined. This only needs to be unguessable and near-collision-free,
// which crypto/rand gives us
// without pulling in a dependency no example in the pack offers for this
// purpose.
func NewUserID() uint32 {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand.Read on a supported platform does not fail; if it
		// somehow does, zero is returned as is; nothing downstream
		// reassigns it.
		return 0
	}
	id := binary.BigEndian.Uint32(b[:])
	if id == 0 {
		id = 1
	}
	return id
}
