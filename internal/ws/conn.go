package ws

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vsekai/signaling/internal/signaling"
)

// Keepalive timings, carried over from the teacher's Client (hub.go):
// ping every 30s, write deadline 10s, read deadline 60s refreshed on every
// pong and every inbound frame.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Conn is one WebSocket connection's Connection Handler: it owns the
// transport, the assigned user_id, and the send queue, generalizing the
// teacher's Client in api/internal/websocket/hub.go from one implicit
// global hub to the signaling Engine's per-topic Bus.
//
// Conn deliberately caches no "current lobby" state of its own: which
// lobby it belongs to, if any, lives entirely in the Engine's Registry and
// is looked up fresh for every operation. That is what lets a lobby's
// Destruction Timer firing out from under a still-open connection be
// invisible to Conn's bookkeeping — the next frame from that connection is
// simply evaluated against whatever the Registry says is true right now.
type Conn struct {
	ws     *websocket.Conn
	engine *signaling.Engine
	log    *zerolog.Logger

	userID uint32
	send   chan Envelope
}

// NewConn creates a Connection Handler for an upgraded WebSocket, assigning
// it a fresh user_id (spec.md §4.1, on_connect).
func NewConn(wsConn *websocket.Conn, engine *signaling.Engine, log *zerolog.Logger) *Conn {
	return &Conn{
		ws:     wsConn,
		engine: engine,
		log:    log,
		userID: signaling.NewUserID(),
		send:   make(chan Envelope, 64),
	}
}

// Serve runs the connection's read and write pumps until the transport
// closes, then runs on_close cleanup (spec.md §4.1).
func (c *Conn) Serve() {
	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()

	c.readPump()

	c.engine.Disconnect(c.userID)

	close(c.send)
	<-done
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteJSON(env); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Conn) readPump() {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Uint32("user_id", c.userID).Msg("websocket read error")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue // malformed frame: drop without state change (spec.md §4.1)
		}
		c.handleEnvelope(env)
	}
}

// forwardSubscription drains one Join's Bus subscription onto the
// connection's outbound queue until it is closed (disconnect, or the
// lobby's Destruction Timer firing). It runs for the
// lifetime of a single lobby membership, not the whole connection, since a
// connection may join, have its lobby destroyed, and join again.
func (c *Conn) forwardSubscription(topic string, sub *signaling.Subscription) {
	for msg := range sub.Messages() {
		c.deliver(topic, msg)
	}
}

func (c *Conn) deliver(topic string, msg signaling.Message) {
	var event string
	switch msg.Type {
	case signaling.OpPeerConnect:
		event = EventPeerConnect
	case signaling.OpPeerDisconnect:
		event = EventPeerDisconnect
	case signaling.OpSeal:
		event = EventSealed
	case signaling.OpOffer, signaling.OpAnswer, signaling.OpCandidate:
		event = eventForOpcode(msg.Type)
	default:
		return
	}
	c.trySend(push(topic, event, msg))
}

func (c *Conn) trySend(env Envelope) {
	select {
	case c.send <- env:
	default:
		c.log.Warn().Uint32("user_id", c.userID).Msg("dropping outbound frame: connection send buffer full")
	}
}

// sendBlocking enqueues env, waiting up to writeWait for room in the send
// buffer instead of dropping immediately. handleJoin uses this for the
// reply, ID, and catch-up roster frames: that one-time burst can exceed the
// 64-slot send buffer for a lobby near MAX_PEERS, and trySend's drop-on-full
// behavior would silently truncate the joining peer's view of the lobby
// (P7). Steady-state delivery (relay, broadcasts) still uses trySend.
func (c *Conn) sendBlocking(env Envelope) {
	select {
	case c.send <- env:
	case <-time.After(writeWait):
		c.log.Warn().Uint32("user_id", c.userID).Msg("dropping outbound frame: connection send buffer full")
	}
}

func (c *Conn) handleEnvelope(env Envelope) {
	switch env.Event {
	case EventPhxJoin:
		// Accepted at any point, always ok, no side effects (DESIGN.md:
		// phx_join gating decision).
		c.trySend(Envelope{Topic: env.Topic, Event: EventPhxReply, Status: "ok", Ref: env.Ref})

	case EventJoin:
		c.handleJoin(env)

	case EventOffer:
		c.handleRelay(env, signaling.OpOffer)
	case EventAnswer:
		c.handleRelay(env, signaling.OpAnswer)
	case EventCandidate:
		c.handleRelay(env, signaling.OpCandidate)

	case EventSeal:
		c.handleSeal(env)

	case EventPeerConnect, EventPeerDisconnect:
		// Server-originated only; a client sending one is bad_request and
		// production servers must not echo it (spec.md §4.1, §9).
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))

	default:
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))
	}
}

func (c *Conn) handleJoin(env Envelope) {
	payload, err := decode[JoinPayload](env.Payload)
	if err != nil {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))
		return
	}

	name := payload.Data
	if name == "" {
		name = signaling.NewLobbyName()
	}

	res, err := c.engine.Join(c.userID, name)
	if err != nil {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, reasonFor(err)))
		return
	}

	topic := signaling.TopicForLobby(res.ResolvedName)

	// 1. reply to the JOIN frame.
	c.sendBlocking(okReply(topic, EventJoin, env.Ref, signaling.Message{
		ID: c.userID, Type: signaling.OpJoin, Data: res.ResolvedName,
	}))
	// 2. push the ID frame, to self only.
	c.sendBlocking(push(topic, EventID, signaling.Message{ID: c.userID, Type: signaling.OpID}))
	// 3. catch-up PEER_CONNECT for every peer already present. Blocking
	// (bounded) rather than trySend: this burst can be as large as
	// MAX_PEERS and must not be silently truncated by the steady-state
	// send buffer size.
	for _, p := range res.ExistingPeers {
		c.sendBlocking(push(topic, EventPeerConnect, signaling.Message{ID: p, Type: signaling.OpPeerConnect}))
	}
	// 4. PEER_CONNECT to the others was already published by Engine.Join
	// via the Bus; start draining it now so nothing queued during setup is
	// lost and nothing is delivered ahead of the frames above.
	go c.forwardSubscription(topic, res.Sub)
}

func (c *Conn) handleRelay(env Envelope, op signaling.Opcode) {
	lobbyName, ok := signaling.LobbyNameFromTopic(env.Topic)
	if !ok {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))
		return
	}
	payload, err := decode[RelayPayload](env.Payload)
	if err != nil {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))
		return
	}

	if err := c.engine.Relay(c.userID, lobbyName, payload.ID, op, payload.Data); err != nil {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, reasonFor(err)))
	}
	// No reply frame on success (spec.md §6 table: relay replies are none).
}

func (c *Conn) handleSeal(env Envelope) {
	lobbyName, ok := signaling.LobbyNameFromTopic(env.Topic)
	if !ok {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, signaling.ReasonBadRequest))
		return
	}
	if err := c.engine.Seal(c.userID, lobbyName); err != nil {
		c.trySend(errorReply(env.Topic, env.Event, env.Ref, reasonFor(err)))
		return
	}
	c.trySend(Envelope{Topic: env.Topic, Event: env.Event, Status: "ok", Ref: env.Ref})
}
