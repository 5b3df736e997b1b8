package signaling_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pairwave/signaling-relay/internal/signaling"
)

func testServerConfig() signaling.ServerConfig {
	return signaling.ServerConfig{
		WSIdleTimeout:        10 * time.Second,
		WSPingInterval:       3 * time.Second,
		MaxMessageBytes:      64 * 1024,
		MaxMessagesPerSecond: 0, // per-test
	}
}

func startWS(t *testing.T, cfg signaling.ServerConfig) (*signaling.Hub, string) {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := signaling.NewHub(signaling.HubConfig{Logger: log})
	srv := signaling.NewServer(hub, nil, cfg, log)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

type wsClient struct {
	t    *testing.T
	conn *websocket.Conn
	id   string
}

func dial(t *testing.T, wsURL string) *wsClient {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	c := &wsClient{t: t, conn: conn}
	env := c.expect(signaling.EventConnectionReady)
	var ready signaling.ConnectionReady
	c.decode(env, &ready)
	if ready.SocketID == "" {
		t.Fatal("connection:ready without socketId")
	}
	c.id = ready.SocketID
	return c
}

func (c *wsClient) send(event signaling.EventType, payload any) {
	c.t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		c.t.Fatalf("marshal payload: %v", err)
	}
	env := signaling.Envelope{Event: event, Data: data}
	if err := c.conn.WriteJSON(env); err != nil {
		c.t.Fatalf("write %q: %v", event, err)
	}
}

func (c *wsClient) read() signaling.Envelope {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		c.t.Fatalf("read: %v", err)
	}
	env, err := signaling.ParseEnvelope(msg)
	if err != nil {
		c.t.Fatalf("parse %s: %v", msg, err)
	}
	return env
}

func (c *wsClient) expect(event signaling.EventType) signaling.Envelope {
	c.t.Helper()
	env := c.read()
	if env.Event != event {
		c.t.Fatalf("event=%q, want %q (data=%s)", env.Event, event, env.Data)
	}
	return env
}

func (c *wsClient) decode(env signaling.Envelope, v any) {
	c.t.Helper()
	if err := json.Unmarshal(env.Data, v); err != nil {
		c.t.Fatalf("decode %q: %v", env.Event, err)
	}
}

func TestWebSocket_PairAndRelay(t *testing.T) {
	_, wsURL := startWS(t, testServerConfig())

	c1 := dial(t, wsURL)
	c2 := dial(t, wsURL)

	c1.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: "Demo"})
	env := c1.expect(signaling.EventRoomJoined)
	var joined signaling.RoomJoined
	c1.decode(env, &joined)
	if joined.RoomInfo.RoomID != "demo" || joined.RoomInfo.UserCount != 1 {
		t.Fatalf("room:joined=%+v", joined.RoomInfo)
	}

	c2.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: " demo "})
	env = c2.expect(signaling.EventRoomJoined)
	c2.decode(env, &joined)
	if joined.RoomInfo.UserCount != 2 {
		t.Fatalf("room:joined=%+v", joined.RoomInfo)
	}

	env = c1.expect(signaling.EventUserJoined)
	var uj signaling.UserJoined
	c1.decode(env, &uj)
	if uj.SocketID != c2.id {
		t.Fatalf("user:joined socketId=%q, want %q", uj.SocketID, c2.id)
	}

	// Offer/answer round trip, both directions blind.
	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=c1"}`)
	c1.send(signaling.EventOutgoingCall, signaling.CallRequest{To: c2.id, Offer: offer})

	env = c2.expect(signaling.EventIncomingCall)
	var in signaling.IncomingCall
	c2.decode(env, &in)
	if in.From != c1.id || string(in.Offer) != string(offer) {
		t.Fatalf("incoming:call=%+v", in)
	}

	answer := json.RawMessage(`{"type":"answer","sdp":"v=0\r\no=c2"}`)
	c2.send(signaling.EventCallAccepted, signaling.AcceptRequest{To: c1.id, Answer: answer})

	env = c1.expect(signaling.EventCallAccepted)
	var acc signaling.CallAccepted
	c1.decode(env, &acc)
	if acc.From != c2.id || string(acc.Answer) != string(answer) {
		t.Fatalf("call:accepted=%+v", acc)
	}

	// Trickle a candidate each way.
	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 10.0.0.1 1 typ host"}`)
	c1.send(signaling.EventICECandidate, signaling.CandidateRequest{Candidate: cand, To: c2.id})
	env = c2.expect(signaling.EventICECandidate)
	var candOut signaling.CandidateOut
	c2.decode(env, &candOut)
	if candOut.From != c1.id {
		t.Fatalf("ice:candidate from=%q", candOut.From)
	}

	// c1 hangs up its socket; c2 hears about it.
	_ = c1.conn.Close()
	env = c2.expect(signaling.EventUserDisconnected)
	var gone signaling.UserDisconnected
	c2.decode(env, &gone)
	if gone.SocketID != c1.id || gone.RoomID != "demo" {
		t.Fatalf("user:disconnected=%+v", gone)
	}
}

func TestWebSocket_ThirdClientRejected(t *testing.T) {
	_, wsURL := startWS(t, testServerConfig())

	c1 := dial(t, wsURL)
	c2 := dial(t, wsURL)
	c3 := dial(t, wsURL)

	c1.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: "demo"})
	c1.expect(signaling.EventRoomJoined)
	c2.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: "demo"})
	c2.expect(signaling.EventRoomJoined)
	c1.expect(signaling.EventUserJoined)

	c3.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: "demo"})
	env := c3.expect(signaling.EventError)
	var errPayload signaling.ErrorPayload
	c3.decode(env, &errPayload)
	if errPayload.Message != "Room is full" {
		t.Fatalf("error=%q", errPayload.Message)
	}
}

func TestWebSocket_MalformedMessage(t *testing.T) {
	_, wsURL := startWS(t, testServerConfig())

	c1 := dial(t, wsURL)
	if err := c1.conn.WriteMessage(websocket.TextMessage, []byte(`{"event":`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	env := c1.expect(signaling.EventError)
	var errPayload signaling.ErrorPayload
	c1.decode(env, &errPayload)
	if errPayload.Message != "Malformed message" {
		t.Fatalf("error=%q", errPayload.Message)
	}

	// The connection survives a bad frame.
	c1.send(signaling.EventRoomJoin, signaling.JoinRequest{RoomID: "demo"})
	c1.expect(signaling.EventRoomJoined)
}

func TestWebSocket_RateLimitCloses(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxMessagesPerSecond = 5
	_, wsURL := startWS(t, cfg)

	c1 := dial(t, wsURL)
	for i := 0; i < 50; i++ {
		if err := c1.conn.WriteJSON(signaling.Envelope{
			Event: signaling.EventActivityPing,
			Data:  json.RawMessage(`{}`),
		}); err != nil {
			return // already closed out from under us
		}
	}

	_ = c1.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		if _, _, err := c1.conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
				t.Fatalf("close err=%v, want policy violation", err)
			}
			return
		}
	}
}

func TestWebSocket_ConnectionQuota(t *testing.T) {
	cfg := testServerConfig()
	cfg.MaxConnections = 1
	_, wsURL := startWS(t, cfg)

	dial(t, wsURL)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected refusal for over-quota connection")
	}
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("close err=%v, want try again later", err)
	}
}
