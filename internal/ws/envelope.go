// Package ws is the transport glue between gorilla/websocket connections
// and the signaling engine: it decodes the wire envelope, dispatches to
// internal/signaling, and serializes the engine's events back onto the
// socket. It is the Connection Handler of spec.md §4.1, generalized from
// the teacher's Client/Hub pattern in api/internal/websocket/hub.go.
package ws

import (
	"encoding/json"
	"fmt"

	"github.com/vsekai/signaling/internal/signaling"
)

// Envelope is the wire object exchanged over the WebSocket connection
// (spec.md §6): a topic-based channel convention modeled on the original
// Phoenix signaling server. Ref is a client-assigned correlation id and is
// echoed back unchanged on replies.
type Envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Status  string          `json:"status,omitempty"`
	Ref     *int            `json:"ref,omitempty"`
}

// Event names on the wire (spec.md §6).
const (
	EventPhxJoin        = "phx_join"
	EventPhxReply       = "phx_reply"
	EventJoin           = "join"
	EventID             = "id"
	EventPeerConnect    = "peer_connect"
	EventPeerDisconnect = "peer_disconnect"
	EventOffer          = "offer"
	EventAnswer         = "answer"
	EventCandidate      = "candidate"
	EventSeal           = "seal"
	EventSealed         = "sealed"
)

// JoinPayload is the inbound payload for a "join" event.
type JoinPayload struct {
	Data string `json:"data"`
}

// RelayPayload is the inbound payload for "offer"/"answer"/"candidate".
type RelayPayload struct {
	ID   uint32 `json:"id"`
	Data string `json:"data"`
}

// ErrorPayload is the reply payload on a status:"error" envelope (spec.md
// §7).
type ErrorPayload struct {
	Reason string `json:"reason"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: %v", signaling.ErrBadRequest, err)
	}
	return v, nil
}

func encodePayload(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// Every payload type here is a plain struct of strings/ints; a
		// marshal failure would be a programming error, not a runtime
		// condition callers can recover from.
		panic(fmt.Sprintf("ws: failed to marshal payload: %v", err))
	}
	return raw
}

// okReply builds a success reply envelope echoing ref, with payload set to
// the engine-level Message the spec table names for that event.
func okReply(topic, event string, ref *int, msg signaling.Message) Envelope {
	return Envelope{
		Topic:   topic,
		Event:   event,
		Status:  "ok",
		Payload: encodePayload(msg),
		Ref:     ref,
	}
}

// errorReply builds an error reply envelope carrying {reason: ...} (spec.md
// §7).
func errorReply(topic, event string, ref *int, reason string) Envelope {
	return Envelope{
		Topic:   topic,
		Event:   event,
		Status:  "error",
		Payload: encodePayload(ErrorPayload{Reason: reason}),
		Ref:     ref,
	}
}

// push builds a server-originated, unsolicited frame (no ref, no status):
// the ID push, PEER_CONNECT/PEER_DISCONNECT, relay deliveries, and the
// sealed broadcast.
func push(topic, event string, msg signaling.Message) Envelope {
	return Envelope{
		Topic:   topic,
		Event:   event,
		Payload: encodePayload(msg),
	}
}

// reasonFor maps an engine-level error to its wire reason symbol (spec.md
// §7). Unrecognized errors fall back to bad_request.
func reasonFor(err error) string {
	if pe, ok := err.(*signaling.ProtocolError); ok {
		return pe.Reason
	}
	return signaling.ReasonBadRequest
}

// eventForOpcode returns the wire event name for a relay opcode, used to
// name the outbound unicast frame (spec.md §6 table).
func eventForOpcode(op signaling.Opcode) string {
	switch op {
	case signaling.OpOffer:
		return EventOffer
	case signaling.OpAnswer:
		return EventAnswer
	case signaling.OpCandidate:
		return EventCandidate
	default:
		return ""
	}
}
