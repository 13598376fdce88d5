package gateway

import (
	"encoding/json"
	"strings"
)

// PlaceholderReply is revealed when the backend answers successfully but
// carries no usable text. Normalization never yields an empty batch.
const PlaceholderReply = "No response received."

// replyEnvelope captures every field any known backend reply shape uses. The
// raw body parses into this one shape first; conversion happens afterwards in
// strict priority order, so adding a shape means adding a field here, not
// another parsing pass.
type replyEnvelope struct {
	Success        *bool             `json:"success"`
	IsMultiMessage *bool             `json:"isMultiMessage"`
	MultiSnake     *bool             `json:"is_multi_message"`
	TotalMessages  int               `json:"totalMessages"`
	Messages       []json.RawMessage `json:"messages"`
	Content        string            `json:"content"`
	Message        json.RawMessage   `json:"message"`
	Data           *replyEnvelope    `json:"data"`
}

func (e *replyEnvelope) multiFlag() bool {
	if e.IsMultiMessage != nil {
		return *e.IsMultiMessage
	}
	if e.MultiSnake != nil {
		return *e.MultiSnake
	}
	return false
}

// Normalize turns a raw reply body into a ReplyBatch:
//
//  1. an explicit multi-message flag with a message list wins outright;
//  2. failing that, a list that still carries several messages is a batch;
//  3. failing that, the most specific single text field wins: nested content,
//     then top-level content, then the lone extracted list fragment;
//  4. a body that parsed but yields nothing becomes the placeholder.
//
// Only an unparseable body is an error.
func Normalize(agentID string, body []byte) (ReplyBatch, error) {
	var env replyEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return ReplyBatch{}, &ProtocolError{Op: "normalize reply", Err: err}
	}

	// A {data: {...}} wrapper is transparent; the interesting fields may sit
	// at either level.
	payload := &env
	if env.Data != nil {
		payload = env.Data
	}

	frags := extractFragments(payload.Messages)
	if len(frags) == 0 {
		frags = extractFragments(env.Messages)
	}

	if env.multiFlag() || payload.multiFlag() {
		if len(frags) > 0 {
			return ReplyBatch{AgentID: agentID, Fragments: frags}, nil
		}
	}
	if len(frags) > 1 {
		return ReplyBatch{AgentID: agentID, Fragments: frags}, nil
	}

	for _, text := range []string{
		payload.Content,
		textOf(payload.Message),
		env.Content,
		textOf(env.Message),
	} {
		if text = strings.TrimSpace(text); text != "" {
			return ReplyBatch{AgentID: agentID, Fragments: []string{text}}, nil
		}
	}
	if len(frags) == 1 {
		return ReplyBatch{AgentID: agentID, Fragments: frags}, nil
	}

	return ReplyBatch{AgentID: agentID, Fragments: []string{PlaceholderReply}}, nil
}

// extractFragments pulls display text out of a message list. Elements may be
// bare strings or objects carrying their text under content, text, or
// message; anything unusable is dropped.
func extractFragments(raw []json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if t := strings.TrimSpace(textOf(r)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func textOf(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Content string `json:"content"`
		Text    string `json:"text"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, t := range []string{obj.Content, obj.Text, obj.Message} {
			if t != "" {
				return t
			}
		}
	}
	return ""
}
