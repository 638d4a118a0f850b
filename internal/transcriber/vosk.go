package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/audio"
)

// voskChunkBytes is half a second of 8kHz audio.
const voskChunkBytes = 8000

// finalResultWait bounds how long the server may take to answer EOF.
const finalResultWait = 30 * time.Second

type VoskTranscriber struct {
	serverURL string
	dialer    *websocket.Dialer
}

type VoskResult struct {
	Text   string `json:"text"`
	Result []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Conf  float64 `json:"conf"`
	} `json:"result"`
	Partial string `json:"partial"`
}

func NewVoskTranscriber(serverURL string) *VoskTranscriber {
	return &VoskTranscriber{
		serverURL: strings.TrimRight(serverURL, "/"),
		dialer:    websocket.DefaultDialer,
	}
}

// Transcribe streams the recording to a Vosk server and collects every final result.
func (vt *VoskTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	pcm, sampleRate, err := audio.ReadWAV(audioPath)
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}

	url := fmt.Sprintf("%s/ws?sample_rate=%d", vt.serverURL, sampleRate)
	conn, _, err := vt.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to connect to Vosk server: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	results := make(chan TranscriptionResult, 100)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		vt.handleResults(conn, results)
	}()

	var finals []string
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range results {
			if r.IsFinal {
				finals = append(finals, r.Text)
			}
		}
	}()

	sendErr := vt.send(conn, pcm)
	if sendErr != nil {
		conn.Close()
	}
	wg.Wait()
	<-collected

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sendErr != nil {
		return "", sendErr
	}
	return joinFinals(finals), nil
}

func (vt *VoskTranscriber) send(conn *websocket.Conn, pcm []byte) error {
	for i := 0; i < len(pcm); i += voskChunkBytes {
		end := i + voskChunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[i:end]); err != nil {
			return fmt.Errorf("failed to send audio to Vosk: %w", err)
		}
	}
	// EOF asks Vosk for the final result.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"eof": 1}`)); err != nil {
		return fmt.Errorf("failed to send EOF to Vosk: %w", err)
	}
	return conn.SetReadDeadline(time.Now().Add(finalResultWait))
}

func (vt *VoskTranscriber) handleResults(conn *websocket.Conn, results chan<- TranscriptionResult) {
	defer close(results)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Msgf("Vosk WebSocket error: %v", err)
			}
			return
		}

		var result VoskResult
		if err := json.Unmarshal(message, &result); err != nil {
			log.Warn().Msgf("Failed to parse Vosk result: %v", err)
			continue
		}
		if result.Partial != "" {
			results <- TranscriptionResult{Text: result.Partial}
		}
		if result.Text != "" {
			results <- TranscriptionResult{Text: result.Text, IsFinal: true}
		}
	}
}
