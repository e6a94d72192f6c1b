package gemini

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
)

// dialIdle returns a client connection to a server that accepts and then
// waits for the test to finish.
func dialIdle(t *testing.T) *websocket.Conn {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.CloseNow()
		<-done
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(done) })

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return conn
}

func TestWriteLoop_FailureClosesSession(t *testing.T) {
	t.Parallel()

	conn := dialIdle(t)
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		conn:   conn,
		log:    slog.New(slog.DiscardHandler),
		events: make(chan s2s.Event, eventBuffer),
		out:    make(chan []byte, 4),
		ready:  true,
		ctx:    ctx,
		cancel: cancel,
	}
	t.Cleanup(func() { _ = s.Close() })

	conn.CloseNow()
	go s.writeLoop()

	blob := s2s.Blob{MIMEType: "audio/pcm;rate=16000", Data: "AAAA"}
	if err := s.SendRealtimeInput(blob); err != nil {
		t.Fatalf("first SendRealtimeInput: %v", err)
	}

	select {
	case ev := <-s.events:
		e, ok := ev.(s2s.ErrorEvent)
		if !ok {
			t.Fatalf("event = %T, want ErrorEvent", ev)
		}
		if !strings.Contains(e.Err.Error(), "gemini: write") {
			t.Errorf("err = %v, want a write error", e.Err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no terminal event after the write failed")
	}

	if err := s.SendRealtimeInput(blob); !errors.Is(err, s2s.ErrClosed) {
		t.Errorf("SendRealtimeInput after write failure = %v, want ErrClosed", err)
	}
	if s.Err() == nil {
		t.Error("Err() = nil after write failure")
	}
}

func TestMarkClosed_FirstCallerWins(t *testing.T) {
	t.Parallel()

	s := &session{}
	first := errors.New("write failed")
	if !s.markClosed(first) {
		t.Fatal("first markClosed = false")
	}
	if s.markClosed(errors.New("read failed")) {
		t.Error("second markClosed = true")
	}
	if !errors.Is(s.Err(), first) {
		t.Errorf("Err() = %v, want %v", s.Err(), first)
	}
}
