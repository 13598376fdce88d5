package gateway

import (
	"context"
	"math/rand"
	"time"
)

// DemoResponder produces canned replies locally. It stands in for the backend
// when the user is unauthenticated or the backend is unreachable, and it
// never fails on its own: the only error it returns is the caller's context.
type DemoResponder struct {
	personas *Personas
	multi    bool
	latency  func(ctx context.Context) error
	randInt  func(n int) int
}

type DemoOption func(*DemoResponder)

// WithPersonas replaces the built-in reply pools.
func WithPersonas(p *Personas) DemoOption {
	return func(d *DemoResponder) { d.personas = p }
}

// WithSingleReplies caps every batch at one fragment, mirroring the
// single-message transport.
func WithSingleReplies() DemoOption {
	return func(d *DemoResponder) { d.multi = false }
}

// WithLatency replaces the synthetic thinking delay.
func WithLatency(fn func(ctx context.Context) error) DemoOption {
	return func(d *DemoResponder) { d.latency = fn }
}

// WithoutLatency makes Respond return immediately. Used by the stub server
// and by tests.
func WithoutLatency() DemoOption {
	return func(d *DemoResponder) { d.latency = func(context.Context) error { return nil } }
}

// WithRand replaces the randomness source for deterministic tests.
func WithRand(fn func(n int) int) DemoOption {
	return func(d *DemoResponder) { d.randInt = fn }
}

func NewDemoResponder(opts ...DemoOption) *DemoResponder {
	d := &DemoResponder{
		personas: NewPersonas(),
		multi:    true,
		randInt:  rand.Intn,
	}
	d.latency = func(ctx context.Context) error {
		return sleepContext(ctx, time.Duration(300+d.randInt(600))*time.Millisecond)
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Respond picks a contiguous run of lines from the agent's pool, preserving
// pool order. Multi mode yields two to four fragments, single mode exactly
// one.
func (d *DemoResponder) Respond(ctx context.Context, chatID, agentID, content string) (ReplyBatch, error) {
	if err := d.latency(ctx); err != nil {
		return ReplyBatch{}, err
	}

	pool := d.personas.Pool(agentID)
	if len(pool) == 0 {
		return ReplyBatch{AgentID: agentID, Fragments: []string{PlaceholderReply}}, nil
	}

	n := 1
	if d.multi {
		n = 2 + d.randInt(3)
	}
	if n > len(pool) {
		n = len(pool)
	}
	start := d.randInt(len(pool) - n + 1)

	frags := make([]string, n)
	copy(frags, pool[start:start+n])
	return ReplyBatch{AgentID: agentID, Fragments: frags}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
