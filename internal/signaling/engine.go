package signaling

import (
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// topicPrefix is the lobby topic namespace on the wire (spec.md §6:
// `"topic": "lobby:<name>"`).
const topicPrefix = "lobby:"

// TopicForLobby returns the Bus topic string for a lobby name.
func TopicForLobby(name string) string {
	return topicPrefix + name
}

// LobbyNameFromTopic extracts the lobby name from a wire topic string.
func LobbyNameFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, topicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, topicPrefix), true
}

// Engine composes the Registry, the Bus, and the Destruction Timer into the
// operations a Connection Handler needs (spec.md §4.1): join, relay, seal,
// and disconnect cleanup. It is the transport-free half of the Connection
// Handler — internal/ws drives it from parsed envelopes and owns the
// goroutines that actually read and write frames.
type Engine struct {
	Registry  *Registry
	Bus       *Bus
	sealGrace time.Duration
	log       *zerolog.Logger

	mu   sync.Mutex
	subs map[uint32]*Subscription
}

// NewEngine wires a Registry and Bus sized per the given limits, with
// sealGrace as the Destruction Timer's delay (spec.md §6: SEAL_GRACE).
func NewEngine(maxLobbies, maxPeers int, sealGrace time.Duration, log *zerolog.Logger) *Engine {
	return &Engine{
		Registry:  NewRegistry(maxLobbies, maxPeers, log),
		Bus:       NewBus(log),
		sealGrace: sealGrace,
		log:       log,
		subs:      make(map[uint32]*Subscription),
	}
}

// JoinResult carries what the Connection Handler needs to emit the JOIN
// reply, the ID push, and the catch-up PEER_CONNECT frames (spec.md §4.1).
type JoinResult struct {
	ResolvedName  string
	ExistingPeers []uint32
	Sub           *Subscription
}

// Join resolves name (the caller has already applied the empty-data ->
// generated-name rule), performs the Registry join, subscribes the peer to
// the lobby's Bus topic, and broadcasts PEER_CONNECT to the peers already
// present.
func (e *Engine) Join(userID uint32, name string) (*JoinResult, error) {
	snapshot, previousPeers, err := e.Registry.Join(name, userID)
	if err != nil {
		return nil, err
	}

	topic := TopicForLobby(snapshot.Name)
	sub := e.Bus.Subscribe(topic, userID)

	e.mu.Lock()
	e.subs[userID] = sub
	e.mu.Unlock()

	e.Bus.BroadcastFrom(topic, userID, Message{ID: userID, Type: OpPeerConnect, Data: ""})

	return &JoinResult{
		ResolvedName:  snapshot.Name,
		ExistingPeers: previousPeers,
		Sub:           sub,
	}, nil
}

// Relay delivers an OFFER/ANSWER/CANDIDATE from senderID to destID within
// lobbyName, rewriting the outbound id to the sender's user_id (spec.md
// §4.1, P6). Silently dropped if destID is not currently subscribed.
func (e *Engine) Relay(senderID uint32, lobbyName string, destID uint32, opcode Opcode, data string) error {
	cur, ok := e.Registry.LookupLobbyOf(senderID)
	if !ok || cur != lobbyName {
		return ErrNotJoined
	}
	e.Bus.SendTo(TopicForLobby(lobbyName), destID, Message{ID: senderID, Type: opcode, Data: data})
	return nil
}

// Seal marks lobbyName sealed on behalf of userID, schedules its
// Destruction Timer, and broadcasts the "sealed" event (spec.md §4.1). A
// repeat seal by the true owner is a no-op success with no rebroadcast.
func (e *Engine) Seal(userID uint32, lobbyName string) error {
	alreadySealed, err := e.Registry.Seal(lobbyName, userID)
	if err != nil {
		return err
	}
	if alreadySealed {
		return nil
	}

	ScheduleDestruction(e.sealGrace, func() {
		e.destroyLobby(lobbyName)
	})

	e.Bus.Broadcast(TopicForLobby(lobbyName), Message{ID: userID, Type: OpSeal, Data: ""})
	return nil
}

// Disconnect runs the on_close cleanup for userID (spec.md §4.1): leave its
// lobby if it has one, broadcast PEER_DISCONNECT to the remaining members,
// and drop its Bus subscription. Safe to call even if the peer never
// joined anything.
func (e *Engine) Disconnect(userID uint32) {
	sub := e.removeSub(userID)
	if sub != nil {
		e.Bus.Unsubscribe(sub)
	}

	name, ok := e.Registry.LookupLobbyOf(userID)
	if !ok {
		return
	}
	if err := e.Registry.Leave(name, userID); err != nil {
		return
	}
	e.Bus.Broadcast(TopicForLobby(name), Message{ID: userID, Type: OpPeerDisconnect, Data: ""})
}

// destroyLobby fires when a sealed lobby's Destruction Timer elapses. A
// lobby already gone (destroyed early, or raced away) is absorbed as a
// no-op (spec.md §4.4).
func (e *Engine) destroyLobby(name string) {
	members, err := e.Registry.Destroy(name)
	if err != nil {
		return
	}
	for _, m := range members {
		if sub := e.removeSub(m); sub != nil {
			e.Bus.Unsubscribe(sub)
		}
	}
	if e.log != nil {
		e.log.Info().Str("lobby", name).Int("members", len(members)).Msg("lobby destroyed")
	}
}

func (e *Engine) removeSub(userID uint32) *Subscription {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := e.subs[userID]
	delete(e.subs, userID)
	return sub
}
