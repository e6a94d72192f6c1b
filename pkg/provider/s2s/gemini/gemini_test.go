package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/peridot-guide/pkg/provider/s2s"
	"github.com/MrWong99/peridot-guide/pkg/provider/s2s/gemini"
	"github.com/coder/websocket"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startGeminiServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startGeminiServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Errorf("readJSON: %v", err)
		return
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Errorf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server acknowledgement that opens the session.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// drainUntilClosed keeps reading until the client goes away.
func drainUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

// nextEvent waits for the next event on ch.
func nextEvent(t *testing.T, ch <-chan s2s.Event) s2s.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("events channel closed unexpectedly")
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return nil
}

// waitClosed asserts that ch is closed without delivering further events.
func waitClosed(t *testing.T, ch <-chan s2s.Event) {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event %T after terminal event", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("events channel was not closed")
	}
}

func connect(t *testing.T, srv *httptest.Server, cfg s2s.SessionConfig, opts ...gemini.Option) s2s.SessionHandle {
	t.Helper()
	opts = append([]gemini.Option{gemini.WithBaseURL(wsURL(srv)), gemini.WithModel("test-model")}, opts...)
	p := gemini.New("test-key", opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sess, err := p.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// ── Tests ─────────────────────────────────────────────────────────────────────

func TestConnect_SendsSetup(t *testing.T) {
	t.Parallel()

	type setupMsg struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			InputAudioTranscription  *struct{} `json:"inputAudioTranscription"`
			OutputAudioTranscription *struct{} `json:"outputAudioTranscription"`
		} `json:"setup"`
	}

	got := make(chan setupMsg, 1)
	keys := make(chan string, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, r *http.Request) {
		keys <- r.URL.Query().Get("key")
		var msg setupMsg
		readJSON(t, conn, &msg)
		got <- msg
		drainUntilClosed(conn)
	})

	connect(t, srv, s2s.SessionConfig{Instructions: "be cheerful", Transcribe: true})

	msg := <-got
	if key := <-keys; key != "test-key" {
		t.Errorf("api key = %q, want test-key", key)
	}
	if msg.Setup.Model != "models/test-model" {
		t.Errorf("model = %q, want models/test-model", msg.Setup.Model)
	}
	if m := msg.Setup.GenerationConfig.ResponseModalities; len(m) != 1 || m[0] != "AUDIO" {
		t.Errorf("responseModalities = %v, want [AUDIO]", m)
	}
	if v := msg.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; v != gemini.DefaultVoice {
		t.Errorf("voice = %q, want %q", v, gemini.DefaultVoice)
	}
	if p := msg.Setup.SystemInstruction.Parts; len(p) != 1 || p[0].Text != "be cheerful" {
		t.Errorf("systemInstruction = %+v", p)
	}
	if msg.Setup.InputAudioTranscription == nil || msg.Setup.OutputAudioTranscription == nil {
		t.Error("transcription not requested")
	}
}

func TestSendRealtimeInput_GatedOnSetupComplete(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	received := make(chan map[string]any, 1)
	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		<-release
		sendSetupComplete(t, conn)
		var in map[string]any
		readJSON(t, conn, &in)
		received <- in
		drainUntilClosed(conn)
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	blob := s2s.Blob{Data: "AAAA", MIMEType: "audio/pcm;rate=16000"}

	if err := sess.SendRealtimeInput(blob); !errors.Is(err, s2s.ErrNotReady) {
		t.Fatalf("SendRealtimeInput before ready = %v, want ErrNotReady", err)
	}

	close(release)
	if _, ok := nextEvent(t, sess.Events()).(s2s.Connected); !ok {
		t.Fatal("first event is not Connected")
	}
	if err := sess.SendRealtimeInput(blob); err != nil {
		t.Fatalf("SendRealtimeInput: %v", err)
	}

	select {
	case in := <-received:
		ri, _ := in["realtimeInput"].(map[string]any)
		audio, _ := ri["audio"].(map[string]any)
		if audio["data"] != "AAAA" || audio["mimeType"] != "audio/pcm;rate=16000" {
			t.Errorf("realtimeInput = %v", in)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received realtimeInput")
	}
}

func TestEvents_ServerContent(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		ctx := context.Background()
		_ = conn.Write(ctx, websocket.MessageText, []byte("{not json"))
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"modelTurn": map[string]any{"parts": []any{
				map[string]any{"inlineData": map[string]any{"mimeType": "audio/pcm;rate=24000", "data": "AQID"}},
				map[string]any{"text": "ignored"},
			}},
		}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{"interrupted": true}})
		writeJSON(t, conn, map[string]any{"serverContent": map[string]any{
			"inputTranscription":  map[string]any{"text": "when is season 3"},
			"outputTranscription": map[string]any{"text": "soon"},
			"turnComplete":        true,
		}})
		drainUntilClosed(conn)
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	ch := sess.Events()

	if _, ok := nextEvent(t, ch).(s2s.Connected); !ok {
		t.Fatal("expected Connected after malformed frame was skipped")
	}
	chunk, ok := nextEvent(t, ch).(s2s.AudioChunk)
	if !ok {
		t.Fatal("expected AudioChunk")
	}
	if chunk.Data != "AQID" || chunk.MIMEType != "audio/pcm;rate=24000" {
		t.Errorf("chunk = %+v", chunk)
	}
	if _, ok := nextEvent(t, ch).(s2s.Interrupted); !ok {
		t.Fatal("expected Interrupted")
	}
	if tr, ok := nextEvent(t, ch).(s2s.Transcript); !ok || tr.Role != s2s.RoleUser || tr.Text != "when is season 3" {
		t.Errorf("expected user transcript, got %v", tr)
	}
	if tr, ok := nextEvent(t, ch).(s2s.Transcript); !ok || tr.Role != s2s.RoleModel || tr.Text != "soon" {
		t.Errorf("expected model transcript, got %v", tr)
	}
	if _, ok := nextEvent(t, ch).(s2s.TurnComplete); !ok {
		t.Fatal("expected TurnComplete")
	}
}

func TestEvents_NormalCloseIsClosed(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		conn.Close(websocket.StatusNormalClosure, "bye")
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	ch := sess.Events()
	if _, ok := nextEvent(t, ch).(s2s.Connected); !ok {
		t.Fatal("expected Connected")
	}
	closed, ok := nextEvent(t, ch).(s2s.Closed)
	if !ok {
		t.Fatal("expected Closed")
	}
	if closed.Reason != "bye" {
		t.Errorf("reason = %q, want bye", closed.Reason)
	}
	waitClosed(t, ch)

	if err := sess.Err(); err != nil {
		t.Errorf("Err = %v, want nil", err)
	}
	if err := sess.SendRealtimeInput(s2s.Blob{Data: "AA=="}); !errors.Is(err, s2s.ErrClosed) {
		t.Errorf("SendRealtimeInput after close = %v, want ErrClosed", err)
	}
}

func TestEvents_AbnormalCloseIsError(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		conn.Close(websocket.StatusInternalError, "boom")
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	ch := sess.Events()
	nextEvent(t, ch) // Connected
	ev, ok := nextEvent(t, ch).(s2s.ErrorEvent)
	if !ok {
		t.Fatal("expected ErrorEvent")
	}
	if websocket.CloseStatus(ev.Err) != websocket.StatusInternalError {
		t.Errorf("close status = %v, want StatusInternalError", websocket.CloseStatus(ev.Err))
	}
	waitClosed(t, ch)
	if sess.Err() == nil {
		t.Error("Err should report the transport failure")
	}
}

func TestEvents_ServerErrorIsTerminal(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{"error": map[string]any{
			"code": 400, "message": "invalid model", "status": "INVALID_ARGUMENT",
		}})
		drainUntilClosed(conn)
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	ch := sess.Events()
	ev, ok := nextEvent(t, ch).(s2s.ErrorEvent)
	if !ok {
		t.Fatal("expected ErrorEvent before Connected")
	}
	if !strings.Contains(ev.Error(), "invalid model") {
		t.Errorf("error = %q, want it to mention the server message", ev.Error())
	}
	waitClosed(t, ch)
}

func TestClose_Idempotent(t *testing.T) {
	t.Parallel()

	srv := startGeminiServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		drainUntilClosed(conn)
	})

	sess := connect(t, srv, s2s.SessionConfig{})
	nextEvent(t, sess.Events())

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	waitClosed(t, sess.Events())
	if err := sess.SendRealtimeInput(s2s.Blob{}); !errors.Is(err, s2s.ErrClosed) {
		t.Errorf("SendRealtimeInput after Close = %v, want ErrClosed", err)
	}
	if err := sess.Err(); err != nil {
		t.Errorf("Err after local Close = %v, want nil", err)
	}
}

func TestConnect_DialFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	p := gemini.New("k", gemini.WithBaseURL(wsURL(srv)))
	if _, err := p.Connect(context.Background(), s2s.SessionConfig{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestCapabilities(t *testing.T) {
	t.Parallel()

	caps := gemini.New("k").Capabilities()
	if caps.Model != gemini.DefaultModel {
		t.Errorf("Model = %q, want %q", caps.Model, gemini.DefaultModel)
	}
	if caps.InputSampleRate != 16000 || caps.OutputSampleRate != 24000 {
		t.Errorf("sample rates = %d/%d, want 16000/24000", caps.InputSampleRate, caps.OutputSampleRate)
	}
	found := false
	for _, v := range caps.Voices {
		if v == gemini.DefaultVoice {
			found = true
		}
	}
	if !found {
		t.Errorf("Voices %v missing default voice", caps.Voices)
	}
}
