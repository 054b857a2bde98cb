package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrNotConnected is returned by Send before Open completes or after the
// connection is lost for good.
var ErrNotConnected = errors.New("agent: not connected")

// ConnectionError wraps a failure to establish the initial connection. It is
// fatal to the session and is not retried automatically.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("agent: connect: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// Events delivers inbound traffic and lifecycle changes. Callbacks are
// invoked from a single goroutine in transmission order; ordering across a
// reconnect is not guaranteed.
type Events struct {
	// OnStatus receives status-bearing inbound message types
	// (UserStartedSpeaking, AgentThinking, AgentStartedSpeaking, AgentAudioDone).
	OnStatus func(msgType string)
	// OnTranscript receives ConversationText fragments.
	OnTranscript func(role, content string)
	// OnFunctionCall receives agent-issued function invocations.
	OnFunctionCall func(req FunctionCallRequest)
	// OnAudio receives binary PCM frames of synthesized agent speech.
	OnAudio func(pcm []byte)
	// OnReconnect fires after the connection was replaced. Any in-flight
	// FunctionCallResponse is dropped, never redelivered.
	OnReconnect func()
	// OnDisconnect fires once when reconnection attempts are exhausted.
	OnDisconnect func(err error)
}

// Transport owns the duplex connection to the voice agent: handshake,
// framed send/receive, keep-alive heartbeat and bounded reconnection.
type Transport struct {
	// Tunables; set before Open.
	KeepAliveInterval time.Duration
	KeepAliveFailures int
	MaxReconnects     int
	ReconnectBackoff  time.Duration

	url      string
	apiKey   string
	settings SettingsMessage
	ev       Events
	dialer   websocket.Dialer

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	stopped   bool
	stopCh    chan struct{}
	kaFails   int
}

// NewTransport constructs a transport. Open must be called before Send.
func NewTransport(url, apiKey string, settings SettingsMessage, ev Events) *Transport {
	return &Transport{
		KeepAliveInterval: 8 * time.Second,
		KeepAliveFailures: 3,
		MaxReconnects:     5,
		ReconnectBackoff:  500 * time.Millisecond,
		url:               url,
		apiKey:            apiKey,
		settings:          settings,
		ev:                ev,
		dialer:            websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		stopCh:            make(chan struct{}),
	}
}

// Open establishes the connection and sends exactly one Settings message.
// A dial failure is fatal: it returns a *ConnectionError and nothing is retried.
func (t *Transport) Open(ctx context.Context) error {
	if t.apiKey == "" {
		return &ConnectionError{Err: errors.New("missing api key")}
	}
	conn, err := t.dial(ctx)
	if err != nil {
		return &ConnectionError{Err: err}
	}
	if err := conn.WriteJSON(t.settings); err != nil {
		_ = conn.Close()
		return &ConnectionError{Err: fmt.Errorf("settings handshake: %w", err)}
	}

	t.mu.Lock()
	t.conn = conn
	t.connected = true
	t.mu.Unlock()

	go t.readLoop(conn)
	go t.keepAliveLoop()
	log.Printf("agent: connected to %s", t.url)
	return nil
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Token "+t.apiKey)
	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status=%d: %w", t.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return conn, nil
}

// Send serializes and transmits one JSON message.
func (t *Transport) Send(msg interface{}) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteJSON(msg)
}

// SendAudio transmits one binary PCM frame.
func (t *Transport) SendAudio(frame []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected || t.conn == nil {
		return ErrNotConnected
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

// UpdatePrompt replaces the agent's operating instructions.
func (t *Transport) UpdatePrompt(prompt string) error {
	return t.Send(UpdatePromptMessage{Type: TypeUpdatePrompt, Prompt: prompt})
}

// UpdateSpeak switches the synthesis voice.
func (t *Transport) UpdateSpeak(model string) error {
	return t.Send(UpdateSpeakMessage{Type: TypeUpdateSpeak, Model: model})
}

// Respond emits one FunctionCallResponse acknowledgement.
func (t *Transport) Respond(resp FunctionCallResponse) error {
	return t.Send(resp)
}

// Close shuts the transport down. No reconnection is attempted afterwards.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	conn := t.conn
	t.conn = nil
	t.stopLocked()
	t.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// stopLocked closes stopCh once. Called with t.mu held, both on explicit
// Close and on terminal disconnect so the keep-alive loop never outlives the
// connection.
func (t *Transport) stopLocked() {
	if !t.stopped {
		t.stopped = true
		close(t.stopCh)
	}
}

// readLoop delivers inbound messages in order and drives reconnection when
// the connection drops unexpectedly.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if t.isClosed() {
				return
			}
			log.Printf("agent: read error: %v", err)
			next := t.reconnect(err)
			if next == nil {
				return
			}
			conn = next
			continue
		}
		switch kind {
		case websocket.BinaryMessage:
			if t.ev.OnAudio != nil {
				t.ev.OnAudio(data)
			}
		case websocket.TextMessage:
			t.dispatch(data)
		}
	}
}

func (t *Transport) dispatch(data []byte) {
	msgType, err := messageType(data)
	if err != nil {
		log.Printf("agent: malformed inbound message: %v", err)
		return
	}
	switch msgType {
	case TypeConversationText:
		var msg ConversationText
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("agent: bad ConversationText: %v", err)
			return
		}
		if t.ev.OnTranscript != nil {
			t.ev.OnTranscript(msg.Role, msg.Content)
		}
	case TypeFunctionCallRequest:
		var req FunctionCallRequest
		if err := json.Unmarshal(data, &req); err != nil {
			log.Printf("agent: bad FunctionCallRequest: %v", err)
			return
		}
		if t.ev.OnFunctionCall != nil {
			t.ev.OnFunctionCall(req)
		}
	case TypeUserStartedSpeaking, TypeAgentThinking, TypeAgentStartedSpeak, TypeAgentAudioDone:
		if t.ev.OnStatus != nil {
			t.ev.OnStatus(msgType)
		}
	case TypeWelcome, TypeSettingsApplied:
		log.Printf("agent: %s", msgType)
	case TypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("agent: bad Error message: %v", err)
			return
		}
		log.Printf("agent: remote error: %s", msg.Description)
	default:
		log.Printf("agent: unknown message type: %s", msgType)
	}
}

// reconnect attempts a bounded number of redials with doubling backoff.
// It returns the new connection, or nil after exhaustion (terminal).
func (t *Transport) reconnect(cause error) *websocket.Conn {
	backoff := t.ReconnectBackoff
	for attempt := 1; attempt <= t.MaxReconnects; attempt++ {
		select {
		case <-t.stopCh:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2

		conn, err := t.dial(context.Background())
		if err != nil {
			log.Printf("agent: reconnect %d/%d failed: %v", attempt, t.MaxReconnects, err)
			continue
		}
		if err := conn.WriteJSON(t.settings); err != nil {
			log.Printf("agent: reconnect %d/%d handshake failed: %v", attempt, t.MaxReconnects, err)
			_ = conn.Close()
			continue
		}
		t.mu.Lock()
		t.conn = conn
		t.connected = true
		t.kaFails = 0
		t.mu.Unlock()
		log.Printf("agent: reconnected after %d attempt(s)", attempt)
		if t.ev.OnReconnect != nil {
			t.ev.OnReconnect()
		}
		return conn
	}

	t.mu.Lock()
	t.connected = false
	t.conn = nil
	t.stopLocked()
	t.mu.Unlock()
	log.Printf("agent: reconnect attempts exhausted: %v", cause)
	if t.ev.OnDisconnect != nil {
		t.ev.OnDisconnect(cause)
	}
	return nil
}

// keepAliveLoop sends the heartbeat for the lifetime of the transport.
// Consecutive failures beyond the limit force the connection closed, which
// hands recovery to the readLoop's reconnect path.
func (t *Transport) keepAliveLoop() {
	ticker := time.NewTicker(t.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			err := t.Send(KeepAliveMessage{Type: TypeKeepAlive})
			t.mu.Lock()
			if err != nil {
				t.kaFails++
				fails := t.kaFails
				conn := t.conn
				t.mu.Unlock()
				log.Printf("agent: keepalive failed (%d consecutive): %v", fails, err)
				if fails >= t.KeepAliveFailures && conn != nil {
					_ = conn.Close()
				}
				continue
			}
			t.kaFails = 0
			t.mu.Unlock()
		}
	}
}
