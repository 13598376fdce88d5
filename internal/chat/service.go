package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mudler/xlog"

	"github.com/parleychat/parley/internal/common"
	"github.com/parleychat/parley/internal/gateway"
	"github.com/parleychat/parley/internal/session"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateSending       State = "sending"
	StateClosed        State = "closed"
)

var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrNotReady     = errors.New("chat: conversation not ready")
	ErrClosed       = errors.New("chat: conversation closed")
)

// NoticeFunc receives human-readable status lines (demo downgrade, auth
// trouble) meant for direct display.
type NoticeFunc func(string)

// Service drives one conversation: it owns the transcript, talks to the
// backend, and paces replies through the sequencer. Backend trouble degrades
// to demo replies instead of failing the conversation; only auth problems
// surface, since those need the user to act.
type Service struct {
	backend gateway.Backend
	demo    gateway.Responder
	store   *Store
	seq     *Sequencer
	sess    *session.Session
	agentID string

	onAppend AppendFunc
	onTyping TypingFunc
	onNotice NoticeFunc

	now   func() time.Time
	newID func() string

	mu       sync.Mutex
	state    State
	demoMode bool
	chat     gateway.Chat
}

type ServiceOption func(*Service)

func OnAppend(fn AppendFunc) ServiceOption {
	return func(s *Service) { s.onAppend = fn }
}

func OnTyping(fn TypingFunc) ServiceOption {
	return func(s *Service) { s.onTyping = fn }
}

func OnNotice(fn NoticeFunc) ServiceOption {
	return func(s *Service) { s.onNotice = fn }
}

// WithDemoMode skips the backend entirely: Init synthesizes a local chat and
// every turn is answered by the demo responder.
func WithDemoMode() ServiceOption {
	return func(s *Service) { s.demoMode = true }
}

func NewService(backend gateway.Backend, demo gateway.Responder, sess *session.Session, agentID string, pacing Pacing, opts ...ServiceOption) *Service {
	if agentID == "" {
		agentID = gateway.DefaultAgent
	}
	store := NewStore()
	s := &Service{
		backend: backend,
		demo:    demo,
		store:   store,
		seq:     NewSequencer(store, pacing),
		sess:    sess,
		agentID: agentID,
		state:   StateUninitialized,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init opens the conversation. A failing backend downgrades to demo mode for
// the life of the conversation; an auth rejection is returned instead, since
// demo replies would hide a fixable problem.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateUninitialized:
	case StateClosed:
		s.mu.Unlock()
		return ErrClosed
	default:
		s.mu.Unlock()
		return fmt.Errorf("chat: init from state %q", s.state)
	}
	s.state = StateInitializing
	forced := s.demoMode
	s.mu.Unlock()

	if forced {
		s.adopt(s.localChat())
		return nil
	}

	chat, err := s.backend.CreateChat(ctx, s.agentID)
	if err == nil {
		s.adopt(chat)
		return nil
	}

	var aerr *gateway.AuthError
	if errors.As(err, &aerr) || ctx.Err() != nil {
		s.mu.Lock()
		s.state = StateUninitialized
		s.mu.Unlock()
		return err
	}

	xlog.Warn("Backend chat creation failed, continuing in demo mode", "agent_id", s.agentID, "error", err)
	s.notice("Backend unreachable. Continuing with demo replies.")
	s.mu.Lock()
	s.demoMode = true
	s.mu.Unlock()
	s.adopt(s.localChat())
	return nil
}

func (s *Service) adopt(chat gateway.Chat) {
	s.mu.Lock()
	s.chat = chat
	s.state = StateReady
	s.mu.Unlock()
}

func (s *Service) localChat() gateway.Chat {
	now := s.now()
	return gateway.Chat{
		ID:        common.MustULID(),
		UserID:    s.userID(),
		AgentID:   s.agentID,
		Title:     "Chat with " + s.agentID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *Service) userID() string {
	if s.sess != nil && s.sess.User.ID != "" {
		return s.sess.User.ID
	}
	return session.Demo().User.ID
}

// Turn is the result of one Send. The user message is already in the store;
// the agent's reply reveals asynchronously through Cycle.
type Turn struct {
	UserMessage Message
	Cycle       *Cycle
	Fallback    bool
	Err         error
}

// Wait blocks until the reveal cycle finishes or ctx expires.
func (t *Turn) Wait(ctx context.Context) error {
	if t.Cycle == nil {
		return t.Err
	}
	return t.Cycle.Wait(ctx)
}

// Send appends the user's message and asks for a reply. The user message is
// stored before the backend is called, so it survives any failure. On a
// transport or protocol failure the turn is answered by the demo responder
// once, without flipping the conversation into demo mode.
func (s *Service) Send(ctx context.Context, content string) (*Turn, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	switch s.state {
	case StateReady:
	case StateClosed:
		s.mu.Unlock()
		return nil, ErrClosed
	default:
		s.mu.Unlock()
		return nil, ErrNotReady
	}
	s.state = StateSending
	demoMode := s.demoMode
	chatID := s.chat.ID
	s.mu.Unlock()
	defer s.setReady()

	user := s.store.Append(Message{
		ID:        s.newID(),
		ChatID:    chatID,
		Role:      RoleUser,
		Content:   content,
		Timestamp: s.now(),
	})
	s.record(user)
	turn := &Turn{UserMessage: user}

	responder := gateway.Responder(s.backend)
	if demoMode {
		responder = s.demo
	}

	batch, err := responder.Respond(ctx, chatID, s.agentID, content)
	if err != nil {
		var aerr *gateway.AuthError
		if errors.As(err, &aerr) {
			s.notice("Backend rejected the session. Log in again to reconnect.")
			turn.Err = err
			return turn, err
		}

		var terr *gateway.TransportError
		var perr *gateway.ProtocolError
		if !demoMode && ctx.Err() == nil && (errors.As(err, &terr) || errors.As(err, &perr)) {
			xlog.Warn("Backend reply failed, answering with demo reply", "chat_id", chatID, "error", err)
			s.notice("Backend unavailable. Showing a demo reply.")
			turn.Fallback = true
			batch, err = s.demo.Respond(ctx, chatID, s.agentID, content)
		}
		if err != nil {
			turn.Err = err
			return turn, err
		}
	}

	turn.Cycle = s.seq.Reveal(ctx, batch, chatID, s.record, s.typing)
	return turn, nil
}

func (s *Service) setReady() {
	s.mu.Lock()
	if s.state == StateSending {
		s.state = StateReady
	}
	s.mu.Unlock()
}

// record keeps the chat summary in step with the transcript and forwards the
// message to the append observer.
func (s *Service) record(m Message) {
	s.mu.Lock()
	s.chat.MessageCount++
	s.chat.LastMessage = m.Content
	s.chat.UpdatedAt = m.Timestamp
	s.mu.Unlock()
	if s.onAppend != nil {
		s.onAppend(m)
	}
}

func (s *Service) typing(on bool) {
	if s.onTyping != nil {
		s.onTyping(on)
	}
}

func (s *Service) notice(msg string) {
	if s.onNotice != nil {
		s.onNotice(msg)
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) DemoMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.demoMode
}

func (s *Service) Chat() gateway.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat
}

// Messages returns a copy of the transcript.
func (s *Service) Messages() []Message {
	return s.store.Messages()
}

// Close ends the conversation and stops the sequencer, waiting for its
// worker to exit. Further Sends return ErrClosed.
func (s *Service) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.mu.Unlock()
	s.seq.Close()
}
