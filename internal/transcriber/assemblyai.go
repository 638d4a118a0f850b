package transcriber

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/audio"
)

const (
	AssemblyAIWebSocketURL = "wss://streaming.assemblyai.com/v3/ws"
	assemblyAISampleRate   = 16000

	// AssemblyAI requires chunks between 50ms and 1000ms.
	// At 16kHz, 16-bit audio: 50ms = 1600 bytes, 950ms = 30400 bytes.
	minChunkSize = 1600
	maxChunkSize = 30400

	terminationWait = 30 * time.Second
)

type AssemblyAITranscriber struct {
	apiKey   string
	endpoint string
	dialer   *websocket.Dialer
	// interval paces chunk sends.
	interval time.Duration
}

// AssemblyAI message types
type AssemblyAIMessage struct {
	Type               string  `json:"type"`
	ID                 string  `json:"id,omitempty"`
	ExpiresAt          int64   `json:"expires_at,omitempty"`
	Transcript         string  `json:"transcript,omitempty"`
	TurnIsFormatted    bool    `json:"turn_is_formatted,omitempty"`
	AudioDurationSec   float64 `json:"audio_duration_seconds,omitempty"`
	SessionDurationSec float64 `json:"session_duration_seconds,omitempty"`
}

func NewAssemblyAITranscriber(apiKey, endpoint string) (*AssemblyAITranscriber, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("AssemblyAI API key is required")
	}
	if endpoint == "" {
		endpoint = AssemblyAIWebSocketURL
	}
	return &AssemblyAITranscriber{
		apiKey:   apiKey,
		endpoint: endpoint,
		dialer:   websocket.DefaultDialer,
		interval: 50 * time.Millisecond,
	}, nil
}

// Transcribe replays the recording through the streaming API and joins the
// formatted turns.
func (at *AssemblyAITranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	pcm, sampleRate, err := audio.ReadWAV(audioPath)
	if err != nil {
		return "", fmt.Errorf("read recording: %w", err)
	}
	pcm = audio.Resample(pcm, sampleRate, assemblyAISampleRate)

	url := fmt.Sprintf("%s?sample_rate=%d&format_turns=true", at.endpoint, assemblyAISampleRate)
	header := http.Header{}
	header.Add("Authorization", at.apiKey)

	conn, _, err := at.dialer.DialContext(ctx, url, header)
	if err != nil {
		return "", fmt.Errorf("failed to connect to AssemblyAI: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	turns := make(chan []string, 1)
	go func() { turns <- at.handleResults(conn) }()

	sendErr := at.send(conn, pcm)
	if sendErr != nil {
		conn.Close()
	}
	finals := <-turns

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if sendErr != nil {
		return "", sendErr
	}
	return joinFinals(finals), nil
}

func (at *AssemblyAITranscriber) send(conn *websocket.Conn, pcm []byte) error {
	ticker := time.NewTicker(at.interval)
	defer ticker.Stop()

	for len(pcm) > 0 {
		chunkSize := len(pcm)
		if chunkSize > maxChunkSize {
			chunkSize = maxChunkSize
		}
		// Fold a short tail into the last chunk rather than send it alone.
		if rest := len(pcm) - chunkSize; rest > 0 && rest < minChunkSize {
			chunkSize = len(pcm) - minChunkSize
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[:chunkSize]); err != nil {
			return fmt.Errorf("failed to send audio to AssemblyAI: %w", err)
		}
		pcm = pcm[chunkSize:]
		<-ticker.C
	}

	msgBytes, err := json.Marshal(AssemblyAIMessage{Type: "Terminate"})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
		return fmt.Errorf("failed to terminate AssemblyAI session: %w", err)
	}
	return conn.SetReadDeadline(time.Now().Add(terminationWait))
}

// handleResults reads until Termination or close, returning formatted turns.
func (at *AssemblyAITranscriber) handleResults(conn *websocket.Conn) []string {
	var finals []string
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Msgf("AssemblyAI WebSocket error: %v", err)
			}
			return finals
		}

		var msg AssemblyAIMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Warn().Msgf("Failed to parse AssemblyAI message: %v", err)
			continue
		}

		switch msg.Type {
		case "Begin":
			log.Info().Msgf("AssemblyAI session started: %s", msg.ID)
		case "Turn":
			if msg.TurnIsFormatted && strings.TrimSpace(msg.Transcript) != "" {
				finals = append(finals, msg.Transcript)
			}
		case "Termination":
			log.Info().Msgf("AssemblyAI session terminated. Audio duration: %.2fs, Session duration: %.2fs",
				msg.AudioDurationSec, msg.SessionDurationSec)
			return finals
		}
	}
}
