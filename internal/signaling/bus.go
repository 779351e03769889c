package signaling

import (
	"sync"

	"github.com/rs/zerolog"
)

// subscriberBuffer is the size of each subscriber's outbound channel. A
// message for a slow subscriber whose buffer is full is dropped rather than
// allowed to block the publisher or any other subscriber (spec.md §4.3); the
// subscriber itself stays subscribed. This mirrors
// the non-blocking send the teacher's Hub.broadcast/BroadcastToOrg use
// before giving up on a client.
const subscriberBuffer = 32

// Subscription is one Connection Handler's membership in one lobby topic's
// fan-out set (spec.md §4.3's "subscriber"). PeerID tags it so the Bus can
// both exclude the sender on BroadcastFrom and target a single peer for
// unicast relay delivery.
type Subscription struct {
	PeerID uint32
	Topic  string
	ch     chan Message
}

// Messages returns the channel the subscriber should drain; closed when the
// subscription is removed.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Bus is a generalization of the teacher's Hub: instead of one implicit
// global topic (Hub.clients), Bus keys a set of Subscriptions by topic
// string, guarded by one RWMutex, exactly the "map[topic] -> set of sender
// channels with buffered per-subscriber channels" realization spec.md's
// Design Notes (§9) recommend.
type Bus struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	log    *zerolog.Logger
}

// NewBus constructs an empty Bus.
func NewBus(log *zerolog.Logger) *Bus {
	return &Bus{
		topics: make(map[string]map[*Subscription]struct{}),
		log:    log,
	}
}

// Subscribe joins peerID to topic and returns the Subscription handle.
func (b *Bus) Subscribe(topic string, peerID uint32) *Subscription {
	sub := &Subscription{
		PeerID: peerID,
		Topic:  topic,
		ch:     make(chan Message, subscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*Subscription]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from its topic and closes its channel. Safe to
// call once per Subscription.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	set, ok := b.topics[sub.Topic]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.topics, sub.Topic)
	}
	close(sub.ch)
}

// Broadcast delivers msg to every subscriber of topic (spec.md §4.3).
func (b *Bus) Broadcast(topic string, msg Message) {
	b.deliver(topic, 0, false, msg)
}

// BroadcastFrom delivers msg to every subscriber of topic except the one
// whose PeerID == senderID.
func (b *Bus) BroadcastFrom(topic string, senderID uint32, msg Message) {
	b.deliver(topic, senderID, true, msg)
}

// SendTo delivers msg to the single subscriber of topic whose PeerID ==
// peerID, if any is currently subscribed, mirroring the relay rule in
// spec.md §4.1 ("delivers the message to the single peer ... If no such
// peer exists, drop silently"). Returns whether a subscriber was found.
func (b *Bus) SendTo(topic string, peerID uint32, msg Message) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		if sub.PeerID == peerID {
			b.trySend(sub, msg)
			return true
		}
	}
	return false
}

func (b *Bus) deliver(topic string, excludeID uint32, exclude bool, msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		if exclude && sub.PeerID == excludeID {
			continue
		}
		b.trySend(sub, msg)
	}
}

// trySend is a non-blocking publish: a full buffer means a stuck or very
// slow subscriber, and the message is dropped for that subscriber rather
// than let stall the publisher or any other subscriber (spec.md §4.3, "MUST
// NOT block other subscribers"). The subscription is not removed.
func (b *Bus) trySend(sub *Subscription, msg Message) {
	select {
	case sub.ch <- msg:
	default:
		if b.log != nil {
			b.log.Warn().
				Str("topic", sub.Topic).
				Uint32("peer_id", sub.PeerID).
				Msg("dropping message to slow subscriber")
		}
	}
}
