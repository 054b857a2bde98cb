package session

import (
	"log"
	"sync"

	"github.com/connorodea/medscribd/internal/agent"
	"github.com/connorodea/medscribd/internal/skills"
)

// Status models what the agent and the human are doing right now.
type Status int

const (
	Idle Status = iota // not yet connected
	Sleeping           // connected, not actively listening
	Listening          // audio frames flow
	Thinking           // agent processing, no audio either way
	Speaking           // agent audio playing back
	Disconnected       // terminal; requires explicit user restart
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sleeping:
		return "sleeping"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Session is the per-connection model of the conversation: current status,
// active skill and the last transcript fragment. It is the single
// authoritative gate for audio transmission; no other component re-implements
// that check.
type Session struct {
	mu             sync.Mutex
	status         Status
	activeSkill    skills.Skill
	lastTranscript string
}

// New returns a Session in the Idle state with no active skill.
func New() *Session {
	return &Session{status: Idle, activeSkill: skills.None}
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// AllowsAudio reports whether audio frames may be transmitted right now.
// True exactly while Listening.
func (s *Session) AllowsAudio() bool {
	return s.Status() == Listening
}

// Connected moves Idle to Sleeping once the transport handshake completes.
func (s *Session) Connected() {
	s.transition(Idle, Sleeping, "connected")
}

// StartListening is the explicit user start action.
func (s *Session) StartListening() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Sleeping, Thinking, Speaking:
		s.status = Listening
	case Listening:
		// already listening
	default:
		log.Printf("session: ignoring start-listening while %s", s.status)
	}
}

// StartSleeping is the explicit user stop action. Frame transmission stops
// immediately via the AllowsAudio gate; in-flight function calls still
// receive their responses.
func (s *Session) StartSleeping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Listening, Thinking, Speaking:
		s.status = Sleeping
	case Sleeping:
		// already sleeping
	default:
		log.Printf("session: ignoring start-sleeping while %s", s.status)
	}
}

// ApplySignal maps an inbound transport status message onto a transition.
// Signals arriving while Sleeping, Idle or Disconnected are ignored and
// logged; they are not errors that propagate to the user.
func (s *Session) ApplySignal(msgType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.status {
	case Idle, Sleeping, Disconnected:
		log.Printf("session: ignoring %s while %s", msgType, s.status)
		return
	}
	switch msgType {
	case agent.TypeUserStartedSpeaking:
		s.status = Listening
	case agent.TypeAgentThinking:
		s.status = Thinking
	case agent.TypeAgentStartedSpeak:
		s.status = Speaking
	case agent.TypeAgentAudioDone:
		s.status = Listening
	default:
		log.Printf("session: unknown status signal %q", msgType)
	}
}

// Disconnect moves the session to its terminal state. Only explicit user
// action (a fresh session) can resume from here.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = Disconnected
}

// ActiveSkill returns the currently active skill.
func (s *Session) ActiveSkill() skills.Skill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSkill
}

// SetActiveSkill records the active skill. Routing changes are the
// coordinator's job; this only updates the session model.
func (s *Session) SetActiveSkill(sk skills.Skill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeSkill = sk
}

// ObserveTranscript records the last transcript fragment for UI readers.
func (s *Session) ObserveTranscript(fragment string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTranscript = fragment
}

// LastTranscript returns the most recent transcript fragment.
func (s *Session) LastTranscript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTranscript
}

func (s *Session) transition(from, to Status, action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != from {
		log.Printf("session: ignoring %s while %s", action, s.status)
		return
	}
	s.status = to
}
