package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/vsekai/signaling/internal/logger"
	"github.com/vsekai/signaling/internal/signaling"
)

func init() {
	gin.SetMode(gin.TestMode)
	logger.Initialize("error", false)
}

func newTestServer(t *testing.T, sealGrace time.Duration) (*httptest.Server, string) {
	t.Helper()
	engine := signaling.NewEngine(signaling.DefaultMaxLobbies, signaling.DefaultMaxPeers, sealGrace, logger.Bus())
	router := gin.New()
	NewServer(engine, logger.Conn()).Register(router)

	srv := httptest.NewServer(router)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket/websocket"
	return srv, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func sendEnvelope(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(env))
}

func payloadOf(t *testing.T, env Envelope) signaling.Message {
	t.Helper()
	var msg signaling.Message
	require.NoError(t, json.Unmarshal(env.Payload, &msg))
	return msg
}

// TestServer_SoloJoin exercises spec.md §8 scenario 1 end-to-end over a
// real WebSocket connection.
func TestServer_SoloJoin(t *testing.T) {
	srv, url := newTestServer(t, time.Hour)
	defer srv.Close()

	conn := dial(t, url)
	defer conn.Close()

	sendEnvelope(t, conn, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})

	reply := readEnvelope(t, conn)
	require.Equal(t, "ok", reply.Status)
	require.Equal(t, EventJoin, reply.Event)
	msg := payloadOf(t, reply)
	require.Equal(t, "room1", msg.Data)
	require.Equal(t, signaling.OpJoin, msg.Type)
	joinedID := msg.ID

	idPush := readEnvelope(t, conn)
	require.Equal(t, EventID, idPush.Event)
	idMsg := payloadOf(t, idPush)
	require.Equal(t, joinedID, idMsg.ID)
	require.Equal(t, signaling.OpID, idMsg.Type)
}

// TestServer_TwoPeerRendezvousAndRelay exercises scenarios 2 and 3.
func TestServer_TwoPeerRendezvousAndRelay(t *testing.T) {
	srv, url := newTestServer(t, time.Hour)
	defer srv.Close()

	connA := dial(t, url)
	defer connA.Close()
	connB := dial(t, url)
	defer connB.Close()

	sendEnvelope(t, connA, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	replyA := payloadOf(t, readEnvelope(t, connA))
	readEnvelope(t, connA) // id push
	userA := replyA.ID

	sendEnvelope(t, connB, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	replyB := payloadOf(t, readEnvelope(t, connB))
	userB := replyB.ID
	readEnvelope(t, connB) // id push
	catchup := payloadOf(t, readEnvelope(t, connB))
	require.Equal(t, userA, catchup.ID, "B learns about the already-present A")

	peerConnect := payloadOf(t, readEnvelope(t, connA))
	require.Equal(t, userB, peerConnect.ID)
	require.Equal(t, signaling.OpPeerConnect, peerConnect.Type)

	offerPayload, err := json.Marshal(RelayPayload{ID: userB, Data: "SDP_A"})
	require.NoError(t, err)
	sendEnvelope(t, connA, Envelope{Topic: "lobby:room1", Event: EventOffer, Payload: offerPayload})

	offer := payloadOf(t, readEnvelope(t, connB))
	require.Equal(t, userA, offer.ID, "P6: outbound id is always the sender's user_id")
	require.Equal(t, signaling.OpOffer, offer.Type)
	require.Equal(t, "SDP_A", offer.Data)
}

// TestServer_SealByNonOwnerRejected exercises scenario 4.
func TestServer_SealByNonOwnerRejected(t *testing.T) {
	srv, url := newTestServer(t, time.Hour)
	defer srv.Close()

	connA := dial(t, url)
	defer connA.Close()
	connB := dial(t, url)
	defer connB.Close()

	sendEnvelope(t, connA, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	readEnvelope(t, connA) // join reply
	readEnvelope(t, connA) // id push

	sendEnvelope(t, connB, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	readEnvelope(t, connB) // join reply
	readEnvelope(t, connB) // id push
	readEnvelope(t, connB) // catch-up peer_connect
	readEnvelope(t, connA) // peer_connect for B

	sendEnvelope(t, connB, Envelope{Topic: "lobby:room1", Event: EventSeal, Payload: json.RawMessage(`{}`)})
	reply := readEnvelope(t, connB)
	require.Equal(t, "error", reply.Status)

	var errPayload ErrorPayload
	require.NoError(t, json.Unmarshal(reply.Payload, &errPayload))
	require.Equal(t, signaling.ReasonNotAuthorized, errPayload.Reason)
}

// TestServer_DisconnectBroadcastsPeerDisconnect exercises scenario 6.
func TestServer_DisconnectBroadcastsPeerDisconnect(t *testing.T) {
	srv, url := newTestServer(t, time.Hour)
	defer srv.Close()

	connA := dial(t, url)
	connB := dial(t, url)
	defer connB.Close()

	sendEnvelope(t, connA, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	replyA := payloadOf(t, readEnvelope(t, connA))
	readEnvelope(t, connA) // id push
	userA := replyA.ID

	sendEnvelope(t, connB, Envelope{Topic: "lobby:room1", Event: EventJoin, Payload: json.RawMessage(`{"data":"room1"}`)})
	readEnvelope(t, connB) // join reply
	readEnvelope(t, connB) // id push
	readEnvelope(t, connB) // catch-up peer_connect
	readEnvelope(t, connA) // peer_connect for B

	require.NoError(t, connA.Close())

	disconnect := payloadOf(t, readEnvelope(t, connB))
	require.Equal(t, userA, disconnect.ID)
	require.Equal(t, signaling.OpPeerDisconnect, disconnect.Type)
}
