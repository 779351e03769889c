package signaling

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultMaxLobbies and DefaultMaxPeers are the limits spec.md §6 fixes for
// the protocol (MAX_LOBBIES, MAX_PEERS).
const (
	DefaultMaxLobbies = 1024
	DefaultMaxPeers   = 4096
)

// Registry is the single process-wide, mutable mapping from lobby name to
// Lobby (spec.md §2.2, §4.2). All structural mutations are serialized by mu,
// the registry's one concurrency realization option spec.md §4.2 names
// explicitly ("a mutex over the registry map") and the one the teacher's
// Hub/AgentHub use for their client maps.
//
// The registry performs no transport I/O while holding mu: callers receive
// snapshots and are responsible for any outbound delivery via the Bus.
type Registry struct {
	mu         sync.Mutex
	lobbies    map[string]*Lobby
	peerLobby  map[uint32]string
	maxLobbies int
	maxPeers   int
	log        *zerolog.Logger
}

// NewRegistry constructs an empty Registry with the given capacity limits.
func NewRegistry(maxLobbies, maxPeers int, log *zerolog.Logger) *Registry {
	return &Registry{
		lobbies:    make(map[string]*Lobby),
		peerLobby:  make(map[uint32]string),
		maxLobbies: maxLobbies,
		maxPeers:   maxPeers,
		log:        log,
	}
}

// Join implements the create-or-join decision rule of spec.md §4.2. It
// returns the lobby snapshot after the join and the peer list as it stood
// immediately before this peer was appended, so the caller can emit
// catch-up PEER_CONNECT events for the roster the new peer missed.
func (r *Registry) Join(name string, userID uint32) (snapshot LobbySnapshot, previousPeers []uint32, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, already := r.peerLobby[userID]; already {
		return LobbySnapshot{}, nil, ErrAlreadyJoined
	}

	lobby, exists := r.lobbies[name]
	if !exists {
		if len(r.lobbies) >= r.maxLobbies {
			return LobbySnapshot{}, nil, ErrMaxLobbiesReached
		}
		lobby = &Lobby{Name: name, Owner: userID, Peers: nil, Sealed: false}
		r.lobbies[name] = lobby
	} else {
		if lobby.Sealed {
			return LobbySnapshot{}, nil, ErrLobbySealed
		}
		if len(lobby.Peers) >= r.maxPeers {
			return LobbySnapshot{}, nil, ErrMaxPeersReached
		}
	}

	previousPeers = make([]uint32, len(lobby.Peers))
	copy(previousPeers, lobby.Peers)

	lobby.Peers = append(lobby.Peers, userID)
	r.peerLobby[userID] = name

	return lobby.snapshot(), previousPeers, nil
}

// Leave removes userID from name's peer set. A non-sealed lobby that
// becomes empty is torn down immediately (spec.md §9 recommends this to
// bound memory); a sealed lobby is left for the Destruction Timer even if
// it empties early, since I4 requires it be removed exactly once, at its
// deadline.
func (r *Registry) Leave(name string, userID uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, exists := r.lobbies[name]
	if !exists {
		return ErrLobbyNotFound
	}
	if r.peerLobby[userID] != name || !lobby.removePeer(userID) {
		return ErrNotAMember
	}
	delete(r.peerLobby, userID)

	if len(lobby.Peers) == 0 && !lobby.Sealed {
		delete(r.lobbies, name)
	}
	return nil
}

// Seal marks name sealed if userID is its owner (I5). A repeat seal by the
// true owner is reported back via alreadySealed so the caller can skip the
// rebroadcast (spec.md §8 idempotence note).
func (r *Registry) Seal(name string, userID uint32) (alreadySealed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, exists := r.lobbies[name]
	if !exists {
		return false, ErrLobbyNotFound
	}
	if lobby.Owner != userID {
		return false, ErrNotAuthorized
	}
	if lobby.Sealed {
		return true, nil
	}
	lobby.Sealed = true
	return false, nil
}

// Destroy removes name unconditionally and returns the member list it held,
// clearing their reverse-index entries so later operations from those
// connections see lobby_not_found / not_joined consistently (spec.md §4.2,
// "late JOINs racing destruction must see a consistent view").
func (r *Registry) Destroy(name string) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, exists := r.lobbies[name]
	if !exists {
		return nil, ErrLobbyNotFound
	}
	members := make([]uint32, len(lobby.Peers))
	copy(members, lobby.Peers)
	for _, p := range members {
		delete(r.peerLobby, p)
	}
	delete(r.lobbies, name)
	return members, nil
}

// Members returns the ordered peer list for name.
func (r *Registry) Members(name string) ([]uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, exists := r.lobbies[name]
	if !exists {
		return nil, ErrLobbyNotFound
	}
	members := make([]uint32, len(lobby.Peers))
	copy(members, lobby.Peers)
	return members, nil
}

// LookupLobbyOf returns the name of the lobby userID currently belongs to,
// if any (P2: at most one).
func (r *Registry) LookupLobbyOf(userID uint32) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.peerLobby[userID]
	return name, ok
}

// Snapshot returns a copy of name's current state without mutating
// anything.
func (r *Registry) Snapshot(name string) (LobbySnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lobby, exists := r.lobbies[name]
	if !exists {
		return LobbySnapshot{}, ErrLobbyNotFound
	}
	return lobby.snapshot(), nil
}

// Count returns the number of lobbies currently tracked.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}
