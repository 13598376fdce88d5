package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/mudler/xlog"
)

const (
	eventConnected = "connected"
	eventMessage   = "message"
	eventComplete  = "complete"
	eventError     = "error"
)

type streamRecord struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
	Reason  string `json:"reason"`
}

// StreamMessage posts a turn to the streaming endpoint and calls onFragment
// for each message record, in order. It returns nil only after the backend
// sends a complete record; a stream that errors out or ends early is a
// transport failure, and the caller should not trust fragments it already
// received.
func (c *Client) StreamMessage(ctx context.Context, chatID, agentID, content string, onFragment func(string)) error {
	const op = "stream message"
	path := fmt.Sprintf("/chats/%s/messages/stream", url.PathEscape(chatID))
	body := map[string]string{"content": content, "agentId": agentID}

	resp, err := c.do(ctx, op, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	sc := bufio.NewScanner(resp.Body)
	buf := make([]byte, 0, 64*1024)
	sc.Buffer(buf, 2*1024*1024)

	connected := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if line == "" {
			continue
		}

		var rec streamRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			xlog.Warn("Skipping malformed stream record", "chat_id", chatID, "error", err)
			continue
		}

		switch rec.Type {
		case eventConnected:
			connected = true
		case eventMessage:
			if !connected {
				xlog.Warn("Dropping stream fragment received before connected record", "chat_id", chatID)
				continue
			}
			if rec.Payload != "" {
				onFragment(rec.Payload)
			}
		case eventComplete:
			return nil
		case eventError:
			reason := rec.Reason
			if reason == "" {
				reason = "stream error"
			}
			return &TransportError{Op: op, Err: errors.New(reason)}
		default:
			xlog.Warn("Ignoring unknown stream record type", "chat_id", chatID, "type", rec.Type)
		}
	}
	if err := sc.Err(); err != nil {
		return &TransportError{Op: op, Err: err}
	}
	return &TransportError{Op: op, Err: errors.New("stream ended without a complete record")}
}
