package transcriber

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/amanullahtanweer/interview-orchestrator/internal/audio"
)

func writeRecording(t *testing.T, seconds int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audio.wav")
	w, err := audio.CreateWAV(path, audio.SampleRate)
	if err != nil {
		t.Fatalf("CreateWAV: %v", err)
	}
	if _, err := w.Write(make([]byte, seconds*audio.SampleRate*2)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestVoskTranscribe(t *testing.T) {
	var upgrader websocket.Upgrader
	var received int
	var sampleRate string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sampleRate = r.URL.Query().Get("sample_rate")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				received += len(msg)
				_ = conn.WriteJSON(map[string]string{"partial": "hel"})
				if received == 8000 {
					_ = conn.WriteJSON(map[string]string{"text": "hello there"})
				}
				continue
			}
			_ = conn.WriteJSON(map[string]string{"text": "I like Go"})
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}))
	defer srv.Close()

	text, err := NewVoskTranscriber(wsURL(srv)).Transcribe(context.Background(), writeRecording(t, 2))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello there I like Go" {
		t.Errorf("text = %q", text)
	}
	if received != 32000 || sampleRate != "8000" {
		t.Errorf("received %d bytes at %s Hz", received, sampleRate)
	}
}

func TestVoskMissingRecording(t *testing.T) {
	_, err := NewVoskTranscriber("ws://127.0.0.1:1").Transcribe(context.Background(), "/nonexistent.wav")
	if err == nil {
		t.Fatal("expected error for missing recording")
	}
}

func TestAssemblyAITranscribe(t *testing.T) {
	var upgrader websocket.Upgrader
	var auth string
	var chunks []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(AssemblyAIMessage{Type: "Begin", ID: "sess-1"})
		for {
			kind, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.BinaryMessage {
				chunks = append(chunks, len(msg))
				continue
			}
			var m AssemblyAIMessage
			_ = json.Unmarshal(msg, &m)
			if m.Type == "Terminate" {
				_ = conn.WriteJSON(AssemblyAIMessage{Type: "Turn", Transcript: "i worked on", TurnIsFormatted: false})
				_ = conn.WriteJSON(AssemblyAIMessage{Type: "Turn", Transcript: "I worked on payments.", TurnIsFormatted: true})
				_ = conn.WriteJSON(AssemblyAIMessage{Type: "Termination", AudioDurationSec: 2})
			}
		}
	}))
	defer srv.Close()

	at, err := NewAssemblyAITranscriber("aai-key", wsURL(srv))
	if err != nil {
		t.Fatal(err)
	}
	at.interval = time.Millisecond

	text, err := at.Transcribe(context.Background(), writeRecording(t, 2))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I worked on payments." {
		t.Errorf("text = %q", text)
	}
	if auth != "aai-key" {
		t.Errorf("Authorization = %q", auth)
	}
	total := 0
	for _, n := range chunks {
		if n < minChunkSize || n > maxChunkSize {
			t.Errorf("chunk of %d bytes outside limits", n)
		}
		total += n
	}
	// 2s at 16kHz, 16-bit
	if total != 64000 {
		t.Errorf("sent %d bytes", total)
	}
}

func TestAssemblyAIRequiresKey(t *testing.T) {
	if _, err := NewAssemblyAITranscriber("", ""); err == nil {
		t.Fatal("expected error without API key")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text": "  Thanks for having me.  "}`))
	}))
	defer srv.Close()

	wt, err := NewWhisperTranscriber("sk-test", "", srv.URL+"/v1")
	if err != nil {
		t.Fatal(err)
	}
	text, err := wt.Transcribe(context.Background(), writeRecording(t, 1))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Thanks for having me." {
		t.Errorf("text = %q", text)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	tests := []struct {
		cfg     Config
		wantNil bool
		wantErr bool
	}{
		{cfg: Config{Provider: "none"}, wantNil: true},
		{cfg: Config{}, wantNil: true},
		{cfg: Config{Provider: "vosk"}, wantErr: true},
		{cfg: Config{Provider: "vosk", URL: "ws://localhost:2700"}},
		{cfg: Config{Provider: "AssemblyAI", APIKey: "k"}},
		{cfg: Config{Provider: "whisper", APIKey: "k"}},
		{cfg: Config{Provider: "whisper"}, wantErr: true},
		{cfg: Config{Provider: "deepgram"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.cfg.Provider, func(t *testing.T) {
			tr, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if !tt.wantErr && (tr == nil) != tt.wantNil {
				t.Errorf("transcriber = %v", tr)
			}
		})
	}
}

func TestJoinFinals(t *testing.T) {
	if got := joinFinals([]string{" a ", "", "b"}); got != "a b" {
		t.Errorf("joinFinals = %q", got)
	}
}
