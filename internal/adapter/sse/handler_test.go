package sse

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sst-platform/incidentd/internal/domain/event"
	"github.com/sst-platform/incidentd/internal/domain/incident"
	"github.com/sst-platform/incidentd/internal/realtime"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// openStream connects to the SSE endpoint and returns a line reader.
func openStream(t *testing.T, srv *httptest.Server) (*http.Response, *bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, http.NoBody)
	if err != nil {
		cancel()
		t.Fatal(err)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		cancel()
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = resp.Body.Close()
	})
	return resp, bufio.NewReader(resp.Body), cancel
}

// readFrame reads up to and including the blank line that ends a frame.
func readFrame(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read frame: %v (partial %q)", err, sb.String())
		}
		sb.WriteString(line)
		if line == "\n" {
			return sb.String()
		}
	}
}

func TestHandler_StreamsPublishedEnvelope(t *testing.T) {
	hub := realtime.NewBroadcaster()
	srv := httptest.NewServer(NewHandler(hub, 0))
	defer srv.Close()

	resp, r, _ := openStream(t, srv)
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := resp.Header.Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	waitFor(t, "subscriber registration", func() bool { return hub.SubscriberCount() == 1 })

	lat := 54.786
	env := event.NewIncidentCreated(&incident.Incident{
		ID:        3,
		Title:     "Pothole near Central Park",
		Status:    incident.StatusActive,
		Latitude:  &lat,
		CreatedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
	})
	if err := hub.Publish(context.Background(), env); err != nil {
		t.Fatal(err)
	}

	want := `data: {"type":"incident.created","data":{"id":3,"title":"Pothole near Central Park","status":"active","latitude":54.786,"longitude":null,"created_at":"2024-05-01T09:30:00"}}` + "\n\n"
	if got := readFrame(t, r); got != want {
		t.Errorf("frame mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestHandler_ClientDisconnectUnregisters(t *testing.T) {
	hub := realtime.NewBroadcaster()
	srv := httptest.NewServer(NewHandler(hub, 0))
	defer srv.Close()

	_, _, cancel := openStream(t, srv)
	waitFor(t, "subscriber registration", func() bool { return hub.SubscriberCount() == 1 })

	cancel()
	waitFor(t, "subscriber removal", func() bool { return hub.SubscriberCount() == 0 })
}

func TestHandler_ServerShutdownEndsSession(t *testing.T) {
	hub := realtime.NewBroadcaster()
	base, stop := context.WithCancel(context.Background())
	srv := httptest.NewUnstartedServer(NewHandler(hub, 0))
	srv.Config.BaseContext = func(_ net.Listener) context.Context { return base }
	srv.Start()
	defer srv.Close()

	openStream(t, srv)
	waitFor(t, "subscriber registration", func() bool { return hub.SubscriberCount() == 1 })

	stop()
	waitFor(t, "subscriber removal", func() bool { return hub.SubscriberCount() == 0 })
}

func TestHandler_Heartbeat(t *testing.T) {
	hub := realtime.NewBroadcaster()
	srv := httptest.NewServer(NewHandler(hub, 20*time.Millisecond))
	defer srv.Close()

	_, r, _ := openStream(t, srv)
	if got := readFrame(t, r); got != ": keepalive\n\n" {
		t.Errorf("expected keepalive comment, got %q", got)
	}
}

func TestWriter_Framing(t *testing.T) {
	rec := httptest.NewRecorder()
	w := NewWriter(rec)

	if err := w.WriteEvent([]byte(`{"a":1}`)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteEvent([]byte("line1\nline2")); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteHeartbeat(); err != nil {
		t.Fatal(err)
	}

	want := "data: {\"a\":1}\n\n" + "data: line1\ndata: line2\n\n" + ": keepalive\n\n"
	if got := rec.Body.String(); got != want {
		t.Errorf("body = %q, want %q", got, want)
	}
	if !rec.Flushed {
		t.Error("expected frames to be flushed")
	}
}

// plainWriter hides the recorder's Flush method.
type plainWriter struct {
	header http.Header
	code   int
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(code int)        { p.code = code }

func TestHandler_FlushUnsupportedDoesNotRegister(t *testing.T) {
	hub := realtime.NewBroadcaster()
	h := NewHandler(hub, 0)

	w := &plainWriter{header: http.Header{}}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/stream", http.NoBody))

	if hub.Stats().Subscribers != 0 {
		t.Error("no subscriber may remain registered")
	}
	if n := hub.Stats().Published; n != 0 {
		t.Errorf("published = %d", n)
	}
}
