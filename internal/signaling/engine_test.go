package signaling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(sealGrace time.Duration) *Engine {
	return NewEngine(DefaultMaxLobbies, DefaultMaxPeers, sealGrace, nil)
}

// TestEngine_SoloJoin exercises scenario 1 of spec.md §8: a lone peer
// joining an empty lobby gets a resolved name and no catch-up events.
func TestEngine_SoloJoin(t *testing.T) {
	e := newTestEngine(time.Hour)

	res, err := e.Join(7, "room1")
	require.NoError(t, err)
	assert.Equal(t, "room1", res.ResolvedName)
	assert.Empty(t, res.ExistingPeers)
}

// TestEngine_TwoPeerRendezvous exercises scenario 2: the second joiner
// receives catch-up PEER_CONNECT for the first, and the first peer
// observes a PEER_CONNECT for the second via the Bus.
func TestEngine_TwoPeerRendezvous(t *testing.T) {
	e := newTestEngine(time.Hour)

	resA, err := e.Join(7, "room1")
	require.NoError(t, err)

	resB, err := e.Join(11, "room1")
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, resB.ExistingPeers, "B learns about the already-present A via catch-up")

	msg := drain(t, resA.Sub)
	assert.Equal(t, uint32(11), msg.ID)
	assert.Equal(t, Opcode(OpPeerConnect), msg.Type)
}

// TestEngine_RelayRewritesSenderIdentity exercises scenario 3 and P6: the
// outbound id is always the sender's user_id, never the original dest.
func TestEngine_RelayRewritesSenderIdentity(t *testing.T) {
	e := newTestEngine(time.Hour)

	resA, err := e.Join(7, "room1")
	require.NoError(t, err)
	resB, err := e.Join(11, "room1")
	require.NoError(t, err)
	drain(t, resA.Sub) // the PEER_CONNECT for B's join

	err = e.Relay(7, "room1", 11, OpOffer, "SDP_A")
	require.NoError(t, err)

	msg := drain(t, resB.Sub)
	assert.Equal(t, uint32(7), msg.ID)
	assert.Equal(t, Opcode(OpOffer), msg.Type)
	assert.Equal(t, "SDP_A", msg.Data)

	assertNoMessage(t, resA.Sub)
}

// TestEngine_RelayToAbsentPeerDroppedSilently covers the "no such peer"
// branch of spec.md §4.1's relay semantics.
func TestEngine_RelayToAbsentPeerDroppedSilently(t *testing.T) {
	e := newTestEngine(time.Hour)
	_, err := e.Join(7, "room1")
	require.NoError(t, err)

	err = e.Relay(7, "room1", 999, OpOffer, "SDP_A")
	assert.NoError(t, err)
}

func TestEngine_RelayRequiresMembership(t *testing.T) {
	e := newTestEngine(time.Hour)
	_, err := e.Join(7, "room1")
	require.NoError(t, err)

	err = e.Relay(42, "room1", 7, OpOffer, "SDP")
	assert.ErrorIs(t, err, ErrNotJoined)
}

// TestEngine_SealByNonOwnerRejected exercises scenario 4 and P3.
func TestEngine_SealByNonOwnerRejected(t *testing.T) {
	e := newTestEngine(time.Hour)
	_, err := e.Join(7, "room1")
	require.NoError(t, err)
	_, err = e.Join(11, "room1")
	require.NoError(t, err)

	err = e.Seal(11, "room1")
	assert.ErrorIs(t, err, ErrNotAuthorized)

	snap, err := e.Registry.Snapshot("room1")
	require.NoError(t, err)
	assert.False(t, snap.Sealed, "a rejected seal must not mutate lobby state")
}

// TestEngine_SealBroadcastsAndBlocksFurtherJoins exercises scenario 5 and
// P4 (seal monotonicity).
func TestEngine_SealBroadcastsAndBlocksFurtherJoins(t *testing.T) {
	e := newTestEngine(time.Hour)
	resA, err := e.Join(7, "room1")
	require.NoError(t, err)
	resB, err := e.Join(11, "room1")
	require.NoError(t, err)
	drain(t, resA.Sub) // B's PEER_CONNECT

	err = e.Seal(7, "room1")
	require.NoError(t, err)

	msgA := drain(t, resA.Sub)
	msgB := drain(t, resB.Sub)
	assert.Equal(t, Opcode(OpSeal), msgA.Type)
	assert.Equal(t, uint32(7), msgA.ID)
	assert.Equal(t, Opcode(OpSeal), msgB.Type)

	_, err = e.Join(99, "room1")
	assert.ErrorIs(t, err, ErrLobbySealed)
}

// TestEngine_SealIdempotentNoRebroadcast covers the idempotence note in
// spec.md §8: a second seal by the owner is a no-op with no broadcast.
func TestEngine_SealIdempotentNoRebroadcast(t *testing.T) {
	e := newTestEngine(time.Hour)
	resA, err := e.Join(7, "room1")
	require.NoError(t, err)

	require.NoError(t, e.Seal(7, "room1"))
	drain(t, resA.Sub) // the first sealed broadcast, to self

	require.NoError(t, e.Seal(7, "room1"))
	assertNoMessage(t, resA.Sub)
}

// TestEngine_DestructionTimerRemovesLobby exercises P5 (destruction).
func TestEngine_DestructionTimerRemovesLobby(t *testing.T) {
	e := newTestEngine(20 * time.Millisecond)
	_, err := e.Join(7, "room1")
	require.NoError(t, err)
	require.NoError(t, e.Seal(7, "room1"))

	assert.Eventually(t, func() bool {
		_, err := e.Registry.Snapshot("room1")
		return err != nil
	}, time.Second, 5*time.Millisecond, "lobby must be gone at/after the seal grace period")

	// A fresh JOIN under the same name gets a new lobby with a new owner.
	res, err := e.Join(50, "room1")
	require.NoError(t, err)
	assert.Equal(t, "room1", res.ResolvedName)
	snap, err := e.Registry.Snapshot("room1")
	require.NoError(t, err)
	assert.Equal(t, uint32(50), snap.Owner)
}

// TestEngine_DisconnectBroadcastsPeerDisconnect exercises scenario 6.
func TestEngine_DisconnectBroadcastsPeerDisconnect(t *testing.T) {
	e := newTestEngine(time.Hour)
	resA, err := e.Join(7, "room1")
	require.NoError(t, err)
	resB, err := e.Join(11, "room1")
	require.NoError(t, err)
	drain(t, resA.Sub) // B's PEER_CONNECT

	e.Disconnect(7)

	msg := drain(t, resB.Sub)
	assert.Equal(t, uint32(7), msg.ID)
	assert.Equal(t, Opcode(OpPeerDisconnect), msg.Type)

	members, err := e.Registry.Members("room1")
	require.NoError(t, err)
	assert.Equal(t, []uint32{11}, members)
}

func TestEngine_DisconnectOfPeerNeverJoinedIsNoop(t *testing.T) {
	e := newTestEngine(time.Hour)
	assert.NotPanics(t, func() {
		e.Disconnect(404)
	})
}
