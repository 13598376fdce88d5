package chat

import (
	"context"
	"errors"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/parleychat/parley/internal/common"
	"github.com/parleychat/parley/internal/gateway"
)

var ErrSequencerClosed = errors.New("chat: sequencer closed")

// AppendFunc observes each revealed message right after it lands in the
// store.
type AppendFunc func(Message)

// TypingFunc observes the typing indicator. It is raised when a reveal cycle
// starts and lowered exactly when the first fragment appends; it is never
// raised again within the same cycle.
type TypingFunc func(bool)

// Pacing controls reveal timing. The first fragment waits a typing delay
// proportional to its length; every later fragment waits a fixed gap.
type Pacing struct {
	PerChar   time.Duration
	MaxTyping time.Duration
	Gap       time.Duration
}

func DefaultPacing() Pacing {
	return Pacing{
		PerChar:   30 * time.Millisecond,
		MaxTyping: 3 * time.Second,
		Gap:       1500 * time.Millisecond,
	}
}

// Cycle is the handle for one enqueued reveal. Err is valid once Done is
// closed.
type Cycle struct {
	ctx      context.Context
	batch    gateway.ReplyBatch
	chatID   string
	onAppend AppendFunc
	onTyping TypingFunc

	done     chan struct{}
	err      error
	appended int
}

func (c *Cycle) Done() <-chan struct{} { return c.done }

func (c *Cycle) Err() error { return c.err }

// Appended reports how many fragments reached the store. Valid once Done is
// closed.
func (c *Cycle) Appended() int { return c.appended }

// Wait blocks until the cycle finishes or ctx expires.
func (c *Cycle) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.err
	}
}

func (c *Cycle) finish(err error) {
	c.err = err
	close(c.done)
}

func (c *Cycle) typing(on bool) {
	if c.onTyping != nil {
		c.onTyping(on)
	}
}

func (c *Cycle) append(m Message) {
	c.appended++
	if c.onAppend != nil {
		c.onAppend(m)
	}
}

// Sequencer reveals reply batches one fragment at a time with human pacing.
// A single worker drains a FIFO queue, so two cycles never interleave their
// appends no matter how many goroutines enqueue.
type Sequencer struct {
	store  *Store
	pacing Pacing

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string

	queue chan *Cycle
	stop  chan struct{}
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewSequencer(store *Store, pacing Pacing) *Sequencer {
	s := &Sequencer{
		store:  store,
		pacing: pacing,
		now:    time.Now,
		newID:  common.MustULID,
		queue:  make(chan *Cycle, 16),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.sleep = s.sleepContext
	go s.loop()
	return s
}

// Reveal enqueues a batch and returns immediately. An empty batch completes
// on the spot without touching the typing indicator.
func (s *Sequencer) Reveal(ctx context.Context, batch gateway.ReplyBatch, chatID string, onAppend AppendFunc, onTyping TypingFunc) *Cycle {
	c := &Cycle{
		ctx:      ctx,
		batch:    batch,
		chatID:   chatID,
		onAppend: onAppend,
		onTyping: onTyping,
		done:     make(chan struct{}),
	}
	if len(batch.Fragments) == 0 {
		c.finish(nil)
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		c.finish(ErrSequencerClosed)
		return c
	}
	s.queue <- c
	return c
}

// Close stops the worker and waits for it to exit. The in-flight cycle and
// any queued cycles finish with ErrSequencerClosed at their next pause.
func (s *Sequencer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.stop)
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}

func (s *Sequencer) loop() {
	defer close(s.done)
	for c := range s.queue {
		s.runCycle(c)
	}
}

func (s *Sequencer) runCycle(c *Cycle) {
	select {
	case <-s.stop:
		c.finish(ErrSequencerClosed)
		return
	default:
	}
	if err := c.ctx.Err(); err != nil {
		c.finish(err)
		return
	}

	c.typing(true)
	lowered := false
	defer func() {
		if !lowered {
			c.typing(false)
		}
	}()

	frags := c.batch.Fragments
	total := len(frags)
	for i, frag := range frags {
		wait := s.pacing.Gap
		if i == 0 {
			wait = s.typingDelay(frag)
		}
		if err := s.sleep(c.ctx, wait); err != nil {
			c.finish(err)
			return
		}

		stored := s.store.Append(Message{
			ID:      s.newID(),
			ChatID:  c.chatID,
			Role:    RoleAssistant,
			Content: frag,
			Sequence: &SequenceMeta{
				IsMultiMessage: total > 1,
				IsFirst:        i == 0,
				IsAdditional:   i > 0,
				Index:          i + 1,
				Total:          total,
			},
			Timestamp: s.now(),
		})
		if i == 0 {
			lowered = true
			c.typing(false)
		}
		c.append(stored)
	}
	c.finish(nil)
}

// typingDelay scales with the visible length of the first fragment, capped
// so long replies do not stall the conversation.
func (s *Sequencer) typingDelay(frag string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(frag)) * s.pacing.PerChar
	if d > s.pacing.MaxTyping {
		d = s.pacing.MaxTyping
	}
	return d
}

func (s *Sequencer) sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case <-s.stop:
			return ErrSequencerClosed
		default:
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stop:
		return ErrSequencerClosed
	case <-t.C:
		return nil
	}
}
