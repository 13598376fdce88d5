package chat

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/parleychat/parley/internal/gateway"
	"github.com/parleychat/parley/internal/session"
)

type fakeBackend struct {
	mu         sync.Mutex
	creates    int
	sends      []string
	createErr  error
	respondErr error
	batch      gateway.ReplyBatch
}

func (b *fakeBackend) CreateChat(ctx context.Context, agentID string) (gateway.Chat, error) {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.creates++
	if b.createErr != nil {
		return gateway.Chat{}, b.createErr
	}
	return gateway.Chat{ID: "chat-1", AgentID: agentID, Title: "Chat with " + agentID}, nil
}

func (b *fakeBackend) Respond(ctx context.Context, chatID, agentID, content string) (gateway.ReplyBatch, error) {
	_ = ctx
	_ = chatID
	_ = agentID
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sends = append(b.sends, content)
	if b.respondErr != nil {
		return gateway.ReplyBatch{}, b.respondErr
	}
	return b.batch, nil
}

func (b *fakeBackend) sendCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sends)
}

type fakeResponder struct {
	mu    sync.Mutex
	calls int
	batch gateway.ReplyBatch
}

func (r *fakeResponder) Respond(ctx context.Context, chatID, agentID, content string) (gateway.ReplyBatch, error) {
	_ = ctx
	_ = chatID
	_ = agentID
	_ = content
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.batch, nil
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func newTestService(t *testing.T, backend *fakeBackend, demo gateway.Responder, opts ...ServiceOption) *Service {
	t.Helper()
	svc := NewService(backend, demo, session.Demo(), "mia", Pacing{}, opts...)
	t.Cleanup(svc.Close)
	return svc
}

func TestService_SendRevealsReply(t *testing.T) {
	backend := &fakeBackend{batch: gateway.ReplyBatch{AgentID: "mia", Fragments: []string{"one", "two"}}}
	svc := newTestService(t, backend, &fakeResponder{})

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if svc.State() != StateReady {
		t.Fatalf("state = %q", svc.State())
	}

	turn, err := svc.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := turn.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	msgs := svc.Messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "hello" {
		t.Fatalf("first message = %+v", msgs[0])
	}
	if msgs[1].Content != "one" || msgs[2].Content != "two" {
		t.Fatalf("replies = %q %q", msgs[1].Content, msgs[2].Content)
	}
	if chat := svc.Chat(); chat.MessageCount != 3 || chat.LastMessage != "two" {
		t.Fatalf("chat summary = %+v", chat)
	}
}

func TestService_UserMessageSurvivesBackendFailure(t *testing.T) {
	backend := &fakeBackend{respondErr: &gateway.TransportError{Op: "send message", Err: errors.New("connection refused")}}
	demo := &fakeResponder{batch: gateway.ReplyBatch{Fragments: []string{"canned"}}}
	svc := newTestService(t, backend, demo)

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	turn, err := svc.Send(context.Background(), "are you there")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !turn.Fallback {
		t.Fatalf("expected fallback turn")
	}
	if err := turn.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}

	msgs := svc.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + demo reply, got %d messages", len(msgs))
	}
	if msgs[0].Role != RoleUser || msgs[0].Content != "are you there" {
		t.Fatalf("user message = %+v", msgs[0])
	}
	if msgs[1].Content != "canned" {
		t.Fatalf("reply = %+v", msgs[1])
	}

	// the downgrade is per turn, not sticky
	if svc.DemoMode() {
		t.Fatalf("demo mode should not stick after a send failure")
	}
	if _, err := svc.Send(context.Background(), "again"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if backend.sendCount() != 2 {
		t.Fatalf("backend sends = %d, want 2", backend.sendCount())
	}
}

func TestService_InitFailureSticksToDemo(t *testing.T) {
	backend := &fakeBackend{createErr: &gateway.TransportError{Op: "create chat", Err: errors.New("no route to host")}}
	demo := &fakeResponder{batch: gateway.ReplyBatch{Fragments: []string{"canned"}}}

	var notices []string
	svc := newTestService(t, backend, demo, OnNotice(func(msg string) { notices = append(notices, msg) }))

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !svc.DemoMode() {
		t.Fatalf("expected sticky demo mode")
	}
	if svc.Chat().ID == "" {
		t.Fatalf("expected synthesized chat")
	}
	if len(notices) == 0 {
		t.Fatalf("expected a downgrade notice")
	}

	for i := 0; i < 3; i++ {
		turn, err := svc.Send(context.Background(), "hi")
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		if err := turn.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if backend.sendCount() != 0 {
		t.Fatalf("backend sends = %d, want 0", backend.sendCount())
	}
	if demo.callCount() != 3 {
		t.Fatalf("demo calls = %d, want 3", demo.callCount())
	}
}

func TestService_InitAuthErrorSurfaces(t *testing.T) {
	backend := &fakeBackend{createErr: &gateway.AuthError{Op: "create chat", Status: http.StatusUnauthorized}}
	svc := newTestService(t, backend, &fakeResponder{})

	err := svc.Init(context.Background())
	var aerr *gateway.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if svc.State() != StateUninitialized {
		t.Fatalf("state = %q", svc.State())
	}
	if svc.DemoMode() {
		t.Fatalf("auth failure must not downgrade to demo")
	}
}

func TestService_SendAuthErrorSkipsReveal(t *testing.T) {
	backend := &fakeBackend{respondErr: &gateway.AuthError{Op: "send message", Status: http.StatusForbidden}}
	demo := &fakeResponder{batch: gateway.ReplyBatch{Fragments: []string{"canned"}}}

	var notices []string
	svc := newTestService(t, backend, demo, OnNotice(func(msg string) { notices = append(notices, msg) }))

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	turn, err := svc.Send(context.Background(), "hello")
	var aerr *gateway.AuthError
	if !errors.As(err, &aerr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if turn == nil || turn.Err == nil {
		t.Fatalf("expected turn with recorded error")
	}
	if turn.Cycle != nil {
		t.Fatalf("expected no reveal cycle")
	}

	msgs := svc.Messages()
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("messages = %+v", msgs)
	}
	if demo.callCount() != 0 {
		t.Fatalf("demo must not answer auth failures")
	}
	if len(notices) == 0 {
		t.Fatalf("expected an auth notice")
	}
}

func TestService_EmptyMessageRejected(t *testing.T) {
	backend := &fakeBackend{batch: gateway.ReplyBatch{Fragments: []string{"x"}}}
	svc := newTestService(t, backend, &fakeResponder{})

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	for _, content := range []string{"", "   ", "\n\t"} {
		if _, err := svc.Send(context.Background(), content); !errors.Is(err, ErrEmptyMessage) {
			t.Fatalf("send %q: err = %v", content, err)
		}
	}
	if len(svc.Messages()) != 0 {
		t.Fatalf("empty sends must not append")
	}
	if backend.sendCount() != 0 {
		t.Fatalf("empty sends must not reach the backend")
	}
}

func TestService_SendBeforeInit(t *testing.T) {
	svc := newTestService(t, &fakeBackend{}, &fakeResponder{})
	if _, err := svc.Send(context.Background(), "hi"); !errors.Is(err, ErrNotReady) {
		t.Fatalf("err = %v, want not ready", err)
	}
}

func TestService_CloseRejectsSends(t *testing.T) {
	backend := &fakeBackend{batch: gateway.ReplyBatch{Fragments: []string{"x"}}}
	svc := newTestService(t, backend, &fakeResponder{})

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	svc.Close()

	if _, err := svc.Send(context.Background(), "hi"); !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v, want closed", err)
	}
	if err := svc.Init(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("init after close: %v", err)
	}
}

func TestService_ForcedDemoSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	demo := &fakeResponder{batch: gateway.ReplyBatch{Fragments: []string{"canned"}}}
	svc := newTestService(t, backend, demo, WithDemoMode())

	if err := svc.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if backend.creates != 0 {
		t.Fatalf("backend creates = %d, want 0", backend.creates)
	}

	turn, err := svc.Send(context.Background(), "hi")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := turn.Wait(context.Background()); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if demo.callCount() != 1 {
		t.Fatalf("demo calls = %d", demo.callCount())
	}
	if backend.sendCount() != 0 {
		t.Fatalf("backend sends = %d", backend.sendCount())
	}
}
