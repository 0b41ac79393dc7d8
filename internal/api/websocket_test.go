package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/attendai-core/internal/session"
)

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() }) //nolint:errcheck
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", h.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWebSocket_SnapshotThenEvents(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)
	conn := dialWS(t, env)

	first := readWS(t, conn)
	if first.Type != WSTypeEvent || first.EventType != EventSnapshot {
		t.Fatalf("first message = %+v, want snapshot", first)
	}

	waitClients(t, env.server.Hub(), 1)
	env.login(t)

	msg := readWS(t, conn)
	if msg.EventType != string(session.EventSignedIn) {
		t.Fatalf("event = %q, want signed_in", msg.EventType)
	}
	raw, _ := json.Marshal(msg.Payload) //nolint:errcheck
	var ev session.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		t.Fatalf("decoding event: %v", err)
	}
	if ev.Redirect != "/teacher" || ev.User == nil || ev.User.Username != "jdoe" {
		t.Errorf("event = %+v", ev)
	}
	if strings.Contains(string(raw), `"a1"`) {
		t.Errorf("event payload leaks the access token: %s", raw)
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)
	conn := dialWS(t, env)
	readWS(t, conn) // snapshot

	conn.WriteJSON(WSMessage{Type: WSTypeUnsubscribe, ID: "1", Payload: WSSubscribePayload{Channels: []string{ChannelAllSessionEvents}}}) //nolint:errcheck
	if resp := readWS(t, conn); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Fatalf("unsubscribe response = %+v", resp)
	}
	conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "2", Payload: WSSubscribePayload{Channels: []string{string(session.EventLoggedOut)}}}) //nolint:errcheck
	if resp := readWS(t, conn); resp.ID != "2" {
		t.Fatalf("subscribe response = %+v", resp)
	}

	env.login(t)
	if err := env.manager.Logout(context.Background()); err != nil {
		t.Fatal(err)
	}
	// signed_in is filtered out; logged_out comes through.
	if msg := readWS(t, conn); msg.EventType != string(session.EventLoggedOut) {
		t.Errorf("event = %q, want logged_out", msg.EventType)
	}

	conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "3"}) //nolint:errcheck
	if resp := readWS(t, conn); resp.Type != WSTypePong || resp.ID != "3" {
		t.Errorf("ping response = %+v", resp)
	}

	conn.WriteMessage(websocket.TextMessage, []byte("nope")) //nolint:errcheck
	if resp := readWS(t, conn); resp.Type != WSTypeError {
		t.Errorf("bad message response = %+v", resp)
	}
}

func TestHub_CloseOnShutdown(t *testing.T) {
	env := newTestEnv(t)
	env.bootstrap(t)
	conn := dialWS(t, env)
	readWS(t, conn)
	waitClients(t, env.server.Hub(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.server.Hub().Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if n := env.server.Hub().ClientCount(); n != 0 {
		t.Errorf("clients after shutdown = %d", n)
	}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection still open after hub shutdown")
	}
}
