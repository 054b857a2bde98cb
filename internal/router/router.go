package router

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/connorodea/medscribd/internal/agent"
)

// Handler applies one function invocation's parsed arguments to the active
// skill's draft. A non-nil error marks the invocation failed; it never
// propagates to the transport.
type Handler func(args json.RawMessage) error

// HandlerSet is the handler surface of one skill, keyed by function name.
type HandlerSet map[string]Handler

// Responder emits acknowledgements back to the agent.
type Responder interface {
	Respond(resp agent.FunctionCallResponse) error
}

// Router demultiplexes agent-issued function calls into the currently active
// skill's handlers. Only the active set is reachable: a call naming a field
// of a dormant skill is answered with "error" and touches nothing.
type Router struct {
	// AckTimeout bounds how long an invocation may stay unacknowledged
	// before it is logged as stalled.
	AckTimeout time.Duration

	responder Responder

	mu      sync.Mutex
	active  HandlerSet
	pending map[string]*time.Timer
}

// New constructs a router with no active handler set.
func New(responder Responder) *Router {
	return &Router{
		AckTimeout: 10 * time.Second,
		responder:  responder,
		pending:    make(map[string]*time.Timer),
	}
}

// SetActive swaps the reachable handler set. Passing nil makes every call fail.
func (r *Router) SetActive(hs HandlerSet) {
	r.mu.Lock()
	r.active = hs
	r.mu.Unlock()
}

// HandleRequest processes every invocation in array order and emits exactly
// one FunctionCallResponse per invocation, correlated by id. Duplicate calls
// targeting the same field apply last-write-wins.
func (r *Router) HandleRequest(req agent.FunctionCallRequest) {
	for _, call := range req.Functions {
		r.track(call.ID)
		content := "success"
		if err := r.invoke(call); err != nil {
			log.Printf("router: %s (id=%s) failed: %v", call.Name, call.ID, err)
			content = "error"
		}
		resp := agent.NewFunctionCallResponse(call.ID, call.Name, content)
		if err := r.responder.Respond(resp); err != nil {
			// The ack could not be delivered; the remote side must treat the
			// request as unacknowledged. Never retried across reconnects.
			log.Printf("router: ack for %s (id=%s) not delivered: %v", call.Name, call.ID, err)
			continue
		}
		r.resolve(call.ID)
	}
}

func (r *Router) invoke(call agent.FunctionCall) error {
	r.mu.Lock()
	h, ok := r.active[call.Name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler for %q in active skill", call.Name)
	}
	args := call.Arguments
	if args == "" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return fmt.Errorf("arguments for %q are not valid JSON", call.Name)
	}
	return h(json.RawMessage(args))
}

func (r *Router) track(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pending[id]; exists {
		return
	}
	r.pending[id] = time.AfterFunc(r.AckTimeout, func() {
		log.Printf("router: call id=%s still unacknowledged after %v", id, r.AckTimeout)
		r.resolve(id)
	})
}

func (r *Router) resolve(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if timer, ok := r.pending[id]; ok {
		timer.Stop()
		delete(r.pending, id)
	}
}

// DropPending forgets every in-flight call. Used on connection loss: dropped
// acknowledgements are never redelivered after a reconnect.
func (r *Router) DropPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, timer := range r.pending {
		timer.Stop()
		delete(r.pending, id)
	}
}

// PendingCount reports how many invocations are awaiting acknowledgement.
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
