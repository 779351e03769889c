package signaling

import "github.com/google/uuid"

// NewLobbyName generates a collision-free lobby name for JOIN frames with
// an empty data field (spec.md §4.1: "a 128-bit random identifier rendered
// as text"), the same way the teacher mints client identifiers in
// api/internal/websocket/handlers.go (uuid.New().String()).
func NewLobbyName() string {
	return uuid.New().String()
}

// Lobby is the record for one rendezvous room (spec.md §3). The Registry is
// the only writer; everything else receives copies via LobbySnapshot.
type Lobby struct {
	Name   string
	Owner  uint32
	Peers  []uint32
	Sealed bool
}

// LobbySnapshot is an immutable copy of a Lobby's state at a moment in time,
// handed out by Registry operations. Callers must not assume it stays
// current.
type LobbySnapshot struct {
	Name   string
	Owner  uint32
	Peers  []uint32
	Sealed bool
}

func (l *Lobby) snapshot() LobbySnapshot {
	peers := make([]uint32, len(l.Peers))
	copy(peers, l.Peers)
	return LobbySnapshot{
		Name:   l.Name,
		Owner:  l.Owner,
		Peers:  peers,
		Sealed: l.Sealed,
	}
}

func (l *Lobby) indexOf(userID uint32) int {
	for i, p := range l.Peers {
		if p == userID {
			return i
		}
	}
	return -1
}

func (l *Lobby) removePeer(userID uint32) bool {
	idx := l.indexOf(userID)
	if idx < 0 {
		return false
	}
	l.Peers = append(l.Peers[:idx], l.Peers[idx+1:]...)
	return true
}
