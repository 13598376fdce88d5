package gateway

import (
	"strings"
	"sync"
)

// DefaultAgent is the persona used when no agent is configured.
const DefaultAgent = "mia"

// Personas maps agent IDs to canned reply pools for the demo responder.
// Lookups for unknown agents fall back to the default pool, so a batch is
// always available.
type Personas struct {
	mu    sync.RWMutex
	pools map[string][]string
}

func NewPersonas() *Personas {
	p := &Personas{pools: make(map[string][]string)}
	p.Register("mia", []string{
		"Hey! I was just thinking about you.",
		"That's such a good question, honestly.",
		"Okay wait, tell me everything.",
		"I love that. Seriously.",
		"Hmm, let me think about that for a sec.",
		"You always bring up the most interesting stuff!",
		"Haha, I wasn't expecting that one.",
		"Aww, you're sweet. What else is on your mind?",
	})
	p.Register("leo", []string{
		"Interesting. There's a paper about exactly that.",
		"Short answer: it depends. Long answer: it really depends.",
		"I ran the numbers on this once. It didn't go well.",
		"Technically correct, which is the best kind of correct.",
		"Let me push back on that a little.",
		"That's a known failure mode, actually.",
		"Citation needed, but I'll allow it.",
		"Fair point. Counterpoint: have you considered the opposite?",
	})
	p.Register(fallbackAgent, []string{
		"I'm here. What's on your mind?",
		"Got it. Tell me more.",
		"That makes sense to me.",
		"Interesting, go on.",
		"I hadn't thought about it that way.",
		"Let's dig into that a bit.",
		"Fair enough. What happened next?",
		"I'm listening.",
	})
	return p
}

const fallbackAgent = "default"

func (p *Personas) Register(agentID string, lines []string) {
	agentID = strings.ToLower(strings.TrimSpace(agentID))
	pool := make([]string, len(lines))
	copy(pool, lines)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pools[agentID] = pool
}

// Pool returns the reply pool for an agent, or the default pool when the
// agent is unknown.
func (p *Personas) Pool(agentID string) []string {
	agentID = strings.ToLower(strings.TrimSpace(agentID))
	p.mu.RLock()
	defer p.mu.RUnlock()
	if pool, ok := p.pools[agentID]; ok && len(pool) > 0 {
		return pool
	}
	return p.pools[fallbackAgent]
}
