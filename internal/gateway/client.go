package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/parleychat/parley/internal/session"
)

// TransportMode selects how Client.Respond asks the backend for a reply.
type TransportMode string

const (
	TransportSingle TransportMode = "single"
	TransportMulti  TransportMode = "multi"
	TransportStream TransportMode = "stream"
)

const maxReplyBytes = 2 * 1024 * 1024

// Client talks to a chat backend over HTTP. The zero http.Client carries no
// timeout on purpose: a hung request holds its turn until the caller's
// context cancels it.
type Client struct {
	BaseURL   string
	Transport TransportMode
	Client    *http.Client

	sess *session.Session
}

func NewClient(baseURL string, sess *session.Session) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8780"
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Transport: TransportMulti,
		Client:    &http.Client{},
		sess:      sess,
	}
}

func (c *Client) do(ctx context.Context, op, method, path string, body any) (*http.Response, error) {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, &ProtocolError{Op: op, Err: err}
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, buf)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if auth := c.sess.Authorization(); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &AuthError{Op: op, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		resp.Body.Close()
		excerpt := strings.TrimSpace(string(msg))
		if excerpt == "" {
			excerpt = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return nil, &TransportError{Op: op, Status: resp.StatusCode, Err: errors.New(excerpt)}
	}
	return resp, nil
}

// CreateChat opens a new conversation with the given agent.
func (c *Client) CreateChat(ctx context.Context, agentID string) (Chat, error) {
	const op = "create chat"
	resp, err := c.do(ctx, op, http.MethodPost, "/chats", map[string]string{"agentId": agentID})
	if err != nil {
		return Chat{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Data Chat `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Chat{}, &ProtocolError{Op: op, Err: err}
	}
	if out.Data.ID == "" {
		return Chat{}, &ProtocolError{Op: op, Err: errors.New("response carries no chat id")}
	}
	return out.Data, nil
}

// Respond sends one user turn and returns the normalized reply batch,
// dispatching on the configured transport mode.
func (c *Client) Respond(ctx context.Context, chatID, agentID, content string) (ReplyBatch, error) {
	switch c.Transport {
	case TransportStream:
		var frags []string
		err := c.StreamMessage(ctx, chatID, agentID, content, func(f string) {
			frags = append(frags, f)
		})
		if err != nil {
			return ReplyBatch{}, err
		}
		if len(frags) == 0 {
			frags = []string{PlaceholderReply}
		}
		return ReplyBatch{AgentID: agentID, Fragments: frags}, nil
	case TransportSingle:
		return c.SendMessage(ctx, chatID, agentID, content)
	default:
		return c.SendMessageMulti(ctx, chatID, agentID, content)
	}
}

// SendMessage posts a turn to the single-reply endpoint.
func (c *Client) SendMessage(ctx context.Context, chatID, agentID, content string) (ReplyBatch, error) {
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	return c.send(ctx, "send message", path, chatID, agentID, content)
}

// SendMessageMulti posts a turn to the multi-reply endpoint. The reply may
// still be a single fragment; normalization decides.
func (c *Client) SendMessageMulti(ctx context.Context, chatID, agentID, content string) (ReplyBatch, error) {
	path := fmt.Sprintf("/chats/%s/messages/multi", url.PathEscape(chatID))
	return c.send(ctx, "send message multi", path, chatID, agentID, content)
}

func (c *Client) send(ctx context.Context, op, path, chatID, agentID, content string) (ReplyBatch, error) {
	body := map[string]string{"content": content, "agentId": agentID}
	resp, err := c.do(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return ReplyBatch{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return ReplyBatch{}, &TransportError{Op: op, Err: err}
	}
	return Normalize(agentID, raw)
}

// ListChats returns the caller's conversations, most recently active first.
func (c *Client) ListChats(ctx context.Context) ([]Chat, error) {
	const op = "list chats"
	resp, err := c.do(ctx, op, http.MethodGet, "/chats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Data []Chat `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}
	return out.Data, nil
}

func (c *Client) GetChat(ctx context.Context, chatID string) (Chat, error) {
	const op = "get chat"
	resp, err := c.do(ctx, op, http.MethodGet, "/chats/"+url.PathEscape(chatID), nil)
	if err != nil {
		return Chat{}, err
	}
	defer resp.Body.Close()

	var out struct {
		Data Chat `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Chat{}, &ProtocolError{Op: op, Err: err}
	}
	return out.Data, nil
}

// ListMessages fetches one page of a conversation's history.
func (c *Client) ListMessages(ctx context.Context, chatID string, page, limit int) ([]Message, error) {
	const op = "list messages"
	q := url.Values{}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := fmt.Sprintf("/chats/%s/messages", url.PathEscape(chatID))
	if enc := q.Encode(); enc != "" {
		path += "?" + enc
	}

	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Messages []Message `json:"messages"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}
	return out.Data.Messages, nil
}

// PollMessages returns messages appended after lastMessageID. An empty
// lastMessageID returns the whole conversation.
func (c *Client) PollMessages(ctx context.Context, chatID, lastMessageID string) ([]Message, error) {
	const op = "poll messages"
	path := fmt.Sprintf("/chats/%s/messages/poll", url.PathEscape(chatID))
	if lastMessageID != "" {
		path += "?lastMessageId=" + url.QueryEscape(lastMessageID)
	}

	resp, err := c.do(ctx, op, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Data struct {
			Messages []Message `json:"messages"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &ProtocolError{Op: op, Err: err}
	}
	return out.Data.Messages, nil
}
