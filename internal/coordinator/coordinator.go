package coordinator

import (
	"fmt"
	"log"
	"sync"

	"github.com/connorodea/medscribd/internal/router"
	"github.com/connorodea/medscribd/internal/session"
	"github.com/connorodea/medscribd/internal/skills"
)

// Reducer is the slice of a skill the coordinator touches on a mode switch.
type Reducer interface {
	Clear()
	Handlers() router.HandlerSet
}

// Prompter replaces the agent's operating instructions mid-session.
type Prompter interface {
	UpdatePrompt(prompt string) error
}

// Coordinator interprets transcript commands and explicit UI actions to
// decide when the active skill changes. A switch clears every skill's draft
// (a stale draft in a dormant skill must not survive), swaps the router's
// reachable handler set and sends the new skill's prompt to the agent.
type Coordinator struct {
	session  *session.Session
	router   *router.Router
	prompter Prompter
	reducers map[skills.Skill]Reducer

	mu           sync.Mutex
	lastFragment string
}

// New constructs a coordinator over all three skill reducers.
func New(sess *session.Session, rt *router.Router, prompter Prompter, reducers map[skills.Skill]Reducer) *Coordinator {
	return &Coordinator{session: sess, router: rt, prompter: prompter, reducers: reducers}
}

// ObserveTranscript feeds one live transcript fragment. Only user speech can
// trigger a switch, and identical consecutive fragments are de-duplicated so
// a single utterance never switches twice.
func (c *Coordinator) ObserveTranscript(role, content string) {
	c.session.ObserveTranscript(content)
	if role != "user" {
		return
	}
	norm := normalize(content)
	c.mu.Lock()
	if norm == "" || norm == c.lastFragment {
		c.mu.Unlock()
		return
	}
	c.lastFragment = norm
	c.mu.Unlock()

	cmd := Parse(content)
	switch cmd.Kind {
	case CommandStart:
		if err := c.Switch(cmd.Skill); err != nil {
			log.Printf("coordinator: switch to %s failed: %v", cmd.Skill, err)
		}
	case CommandCancel:
		if err := c.Cancel(); err != nil {
			log.Printf("coordinator: cancel failed: %v", err)
		}
	}
}

// Switch activates a skill. Every reducer is cleared, not just the new one,
// then the router routes only to the new skill and the agent's prompt is
// replaced with an instruction that no context carries over.
func (c *Coordinator) Switch(sk skills.Skill) error {
	target, ok := c.reducers[sk]
	if !ok {
		return fmt.Errorf("coordinator: unknown skill %s", sk)
	}
	c.clearAll()
	c.session.SetActiveSkill(sk)
	c.router.SetActive(target.Handlers())
	log.Printf("coordinator: active skill is now %s", sk)
	if err := c.prompter.UpdatePrompt(skills.Prompt(sk)); err != nil {
		return fmt.Errorf("coordinator: update prompt: %w", err)
	}
	return nil
}

// Cancel deactivates the current skill and returns the agent to the neutral
// task-selection prompt.
func (c *Coordinator) Cancel() error {
	c.clearAll()
	c.session.SetActiveSkill(skills.None)
	c.router.SetActive(nil)
	log.Printf("coordinator: active skill cancelled")
	if err := c.prompter.UpdatePrompt(skills.Prompt(skills.None)); err != nil {
		return fmt.Errorf("coordinator: update prompt: %w", err)
	}
	return nil
}

func (c *Coordinator) clearAll() {
	for _, r := range c.reducers {
		r.Clear()
	}
}
