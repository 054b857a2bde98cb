package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testSettings = SettingsMessage{
	Type: TypeSettings,
	Audio: AudioConfig{
		Input:  AudioFormat{Encoding: "linear16", SampleRate: 16000},
		Output: AudioFormat{Encoding: "linear16", SampleRate: 24000, Container: "none"},
	},
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// readSettings consumes and verifies the handshake message on a fresh
// server-side connection.
func readSettings(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Errorf("read handshake: %v", err)
		return
	}
	if kind != websocket.TextMessage {
		t.Errorf("expected text handshake, got kind %d", kind)
		return
	}
	var msg SettingsMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != TypeSettings {
		t.Errorf("first message must be Settings, got %s", data)
	}
}

func TestOpenRequiresAPIKey(t *testing.T) {
	tr := NewTransport("ws://localhost:1", "", testSettings, Events{})
	err := tr.Open(context.Background())
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestOpenDialFailureIsFatal(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1", "key", testSettings, Events{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := tr.Open(ctx)
	var cerr *ConnectionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConnectionError, got %v", err)
	}
}

func TestSendBeforeOpen(t *testing.T) {
	tr := NewTransport("ws://localhost:1", "key", testSettings, Events{})
	if err := tr.Send(KeepAliveMessage{Type: TypeKeepAlive}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if err := tr.SendAudio([]byte{0, 0}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestOpenHandshakeAndDispatch(t *testing.T) {
	upgrader := websocket.Upgrader{}
	authHeader := make(chan string, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader <- r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readSettings(t, conn)

		msgs := []string{
			`{"type":"Welcome"}`,
			`{"type":"SettingsApplied"}`,
			`{"type":"ConversationText","role":"user","content":"start scheduling"}`,
			`{"type":"AgentThinking"}`,
			`{"type":"FunctionCallRequest","functions":[{"id":"f1","name":"set_mrn","arguments":"{\"mrn\":\"M1\"}","client_side":true}]}`,
		}
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
			return
		}
		// Hold the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	transcripts := make(chan string, 1)
	statuses := make(chan string, 2)
	calls := make(chan FunctionCallRequest, 1)
	audio := make(chan []byte, 1)

	tr := NewTransport(wsURL(srv), "test-key", testSettings, Events{
		OnStatus:       func(msgType string) { statuses <- msgType },
		OnTranscript:   func(role, content string) { transcripts <- role + ":" + content },
		OnFunctionCall: func(req FunctionCallRequest) { calls <- req },
		OnAudio:        func(pcm []byte) { audio <- pcm },
	})
	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	if got := <-authHeader; got != "Token test-key" {
		t.Fatalf("expected token auth header, got %q", got)
	}

	select {
	case got := <-transcripts:
		if got != "user:start scheduling" {
			t.Fatalf("unexpected transcript %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transcript")
	}

	select {
	case got := <-statuses:
		if got != TypeAgentThinking {
			t.Fatalf("expected AgentThinking, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for status")
	}

	select {
	case req := <-calls:
		if len(req.Functions) != 1 || req.Functions[0].ID != "f1" || req.Functions[0].Name != "set_mrn" {
			t.Fatalf("unexpected function call request: %+v", req)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for function call")
	}

	select {
	case pcm := <-audio:
		if len(pcm) != 4 {
			t.Fatalf("expected 4 audio bytes, got %d", len(pcm))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for audio")
	}
}

func TestReconnectResendsSettings(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan int, 4)
	var connCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		readSettings(t, conn)
		n := int(atomic.AddInt32(&connCount, 1))
		conns <- n
		if n == 1 {
			// Drop the first connection to force a reconnect.
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	reconnected := make(chan struct{}, 1)
	tr := NewTransport(wsURL(srv), "test-key", testSettings, Events{
		OnReconnect: func() { reconnected <- struct{}{} },
	})
	tr.ReconnectBackoff = 10 * time.Millisecond

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	<-conns // first connection

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for reconnect")
	}

	select {
	case n := <-conns:
		if n != 2 {
			t.Fatalf("expected second connection, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second connection never handshook")
	}
}

func TestDisconnectAfterExhaustedReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		readSettings(t, conn)
		conn.Close()
	}))

	disconnected := make(chan error, 1)
	tr := NewTransport(wsURL(srv), "test-key", testSettings, Events{
		OnDisconnect: func(err error) { disconnected <- err },
	})
	tr.MaxReconnects = 2
	tr.ReconnectBackoff = 5 * time.Millisecond

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	// Kill the server so every redial fails.
	srv.Close()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for disconnect")
	}

	if err := tr.Send(KeepAliveMessage{Type: TypeKeepAlive}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after disconnect, got %v", err)
	}

	// The heartbeat loop must not keep ticking against a dead transport.
	select {
	case <-tr.stopCh:
	case <-time.After(time.Second):
		t.Fatalf("keep-alive loop still running after terminal disconnect")
	}
}

func TestKeepAliveHeartbeat(t *testing.T) {
	upgrader := websocket.Upgrader{}
	heartbeats := make(chan string, 8)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		readSettings(t, conn)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env struct {
				Type string `json:"type"`
			}
			if json.Unmarshal(data, &env) == nil {
				heartbeats <- env.Type
			}
		}
	}))
	defer srv.Close()

	tr := NewTransport(wsURL(srv), "test-key", testSettings, Events{})
	tr.KeepAliveInterval = 20 * time.Millisecond

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	select {
	case got := <-heartbeats:
		if got != TypeKeepAlive {
			t.Fatalf("expected KeepAlive frame, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for heartbeat")
	}
}

func TestKeepAliveFailuresForceReconnect(t *testing.T) {
	upgrader := websocket.Upgrader{}
	conns := make(chan int, 4)
	release := make(chan struct{})
	var connCount int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		readSettings(t, conn)
		n := int(atomic.AddInt32(&connCount, 1))
		conns <- n
		if n == 1 {
			// Keep the first connection's read side open so only the
			// client's writes can fail.
			<-release
			conn.Close()
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()
	defer close(release)

	reconnected := make(chan struct{}, 1)
	tr := NewTransport(wsURL(srv), "test-key", testSettings, Events{
		OnReconnect: func() { reconnected <- struct{}{} },
	})
	tr.KeepAliveInterval = 20 * time.Millisecond
	tr.ReconnectBackoff = 10 * time.Millisecond

	if err := tr.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer tr.Close()

	<-conns // first connection handshook

	// Shut down only the write half of the client socket: reads stay open,
	// so the read loop keeps blocking while every heartbeat send fails. After
	// KeepAliveFailures consecutive failures the transport force-closes the
	// connection and the read loop reconnects.
	tr.mu.Lock()
	raw := tr.conn.UnderlyingConn()
	tr.mu.Unlock()
	if err := raw.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatalf("close write half: %v", err)
	}

	select {
	case <-reconnected:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for keep-alive-driven reconnect")
	}

	select {
	case n := <-conns:
		if n != 2 {
			t.Fatalf("expected second connection, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second connection never handshook")
	}
}
