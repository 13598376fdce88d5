package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func streamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "%s\n", line)
		}
	}))
}

func collectStream(t *testing.T, srv *httptest.Server) ([]string, error) {
	t.Helper()
	c := NewClient(srv.URL, testSession())
	var frags []string
	err := c.StreamMessage(context.Background(), "c1", "mia", "hi", func(f string) {
		frags = append(frags, f)
	})
	return frags, err
}

func TestStreamMessage_OrderedFragments(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"connected"}`,
		`data: {"type":"message","payload":"first"}`,
		``,
		`data: {"type":"message","payload":"second"}`,
		`data: {"type":"complete"}`,
	)
	defer srv.Close()

	frags, err := collectStream(t, srv)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	want := []string{"first", "second"}
	if !reflect.DeepEqual(frags, want) {
		t.Fatalf("fragments = %q, want %q", frags, want)
	}
}

func TestStreamMessage_SkipsMalformedRecords(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"connected"}`,
		`data: {not json at all`,
		`: comment line`,
		`data: {"type":"message","payload":"kept"}`,
		`data: {"type":"complete"}`,
	)
	defer srv.Close()

	frags, err := collectStream(t, srv)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(frags) != 1 || frags[0] != "kept" {
		t.Fatalf("fragments = %q", frags)
	}
}

func TestStreamMessage_DropsFragmentsBeforeConnected(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"message","payload":"too early"}`,
		`data: {"type":"connected"}`,
		`data: {"type":"message","payload":"on time"}`,
		`data: {"type":"complete"}`,
	)
	defer srv.Close()

	frags, err := collectStream(t, srv)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	if len(frags) != 1 || frags[0] != "on time" {
		t.Fatalf("fragments = %q", frags)
	}
}

func TestStreamMessage_ErrorRecord(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"connected"}`,
		`data: {"type":"message","payload":"partial"}`,
		`data: {"type":"error","reason":"model overloaded"}`,
	)
	defer srv.Close()

	_, err := collectStream(t, srv)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestStreamMessage_TruncatedStream(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"connected"}`,
		`data: {"type":"message","payload":"partial"}`,
	)
	defer srv.Close()

	_, err := collectStream(t, srv)
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %T: %v", err, err)
	}
}

func TestStreamMessage_RespondFallsBackToPlaceholder(t *testing.T) {
	srv := streamServer(t,
		`data: {"type":"connected"}`,
		`data: {"type":"complete"}`,
	)
	defer srv.Close()

	c := NewClient(srv.URL, testSession())
	c.Transport = TransportStream
	batch, err := c.Respond(context.Background(), "c1", "mia", "hi")
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if len(batch.Fragments) != 1 || batch.Fragments[0] != PlaceholderReply {
		t.Fatalf("fragments = %q", batch.Fragments)
	}
}
