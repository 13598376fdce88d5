package chat

import (
	"fmt"
	"testing"
	"time"
)

func TestStore_AppendPreservesOrder(t *testing.T) {
	st := NewStore()
	for i := 0; i < 5; i++ {
		st.Append(Message{ID: fmt.Sprintf("m%d", i), Role: RoleUser, Content: fmt.Sprintf("msg %d", i)})
	}

	msgs := st.Messages()
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.ID != fmt.Sprintf("m%d", i) {
			t.Fatalf("message %d has id %q", i, m.ID)
		}
	}
	if st.Len() != 5 {
		t.Fatalf("len = %d", st.Len())
	}
}

func TestStore_FillsZeroTimestamp(t *testing.T) {
	st := NewStore()
	before := time.Now()
	m := st.Append(Message{ID: "m1", Role: RoleUser, Content: "hi"})
	if m.Timestamp.Before(before) {
		t.Fatalf("timestamp %v not filled", m.Timestamp)
	}
}

func TestStore_ClampsBackwardsTimestamps(t *testing.T) {
	st := NewStore()
	base := time.Now()

	first := st.Append(Message{ID: "m1", Timestamp: base})
	second := st.Append(Message{ID: "m2", Timestamp: base.Add(-time.Hour)})

	if second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("timestamp went backwards: %v < %v", second.Timestamp, first.Timestamp)
	}
	if !second.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("expected clamp to %v, got %v", first.Timestamp, second.Timestamp)
	}

	third := st.Append(Message{ID: "m3", Timestamp: base.Add(time.Minute)})
	if !third.Timestamp.Equal(base.Add(time.Minute)) {
		t.Fatalf("forward timestamp altered: %v", third.Timestamp)
	}
}

func TestStore_MessagesReturnsCopy(t *testing.T) {
	st := NewStore()
	st.Append(Message{ID: "m1", Content: "original"})

	msgs := st.Messages()
	msgs[0].Content = "mutated"

	if got := st.Messages()[0].Content; got != "original" {
		t.Fatalf("store content = %q", got)
	}
}

func TestStore_Last(t *testing.T) {
	st := NewStore()
	if _, ok := st.Last(); ok {
		t.Fatalf("expected no last message on empty store")
	}
	st.Append(Message{ID: "m1"})
	st.Append(Message{ID: "m2"})
	last, ok := st.Last()
	if !ok || last.ID != "m2" {
		t.Fatalf("last = %+v ok=%v", last, ok)
	}
}
