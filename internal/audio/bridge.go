package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/CyCoreSystems/audiosocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultFrameQueue bounds captured frames waiting for the file writer.
const DefaultFrameQueue = 256

const hangupWriteTimeout = time.Second

// Synthesizer renders text as 8kHz signed linear PCM.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// DialFunc opens the AudioSocket connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// BridgeConfig configures a Bridge.
type BridgeConfig struct {
	// Address of the AudioSocket endpoint relaying the meeting audio.
	Address    string
	OutputPath string
	Voice      Synthesizer
	QueueSize  int
	Dial       DialFunc
}

// Bridge records meeting audio arriving over AudioSocket into a WAV file and
// speaks synthesized questions back over the same connection.
type Bridge struct {
	cfg BridgeConfig

	mu          sync.Mutex
	running     bool
	id          uuid.UUID
	conn        net.Conn
	captureDone chan struct{}
	writerDone  chan struct{}
	writerErr   error

	writeMu sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string][]byte

	frames atomic.Int64
	bytes  atomic.Int64
}

// NewBridge creates an idle bridge.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultFrameQueue
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	return &Bridge{cfg: cfg, cache: make(map[string][]byte)}
}

// Start connects, identifies the call and begins recording. It returns once
// capture is running.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("audio bridge already started")
	}
	if b.cfg.Address == "" {
		return errors.New("no capture device configured")
	}

	out, err := CreateWAV(b.cfg.OutputPath, SampleRate)
	if err != nil {
		return fmt.Errorf("open recording: %w", err)
	}
	conn, err := b.cfg.Dial(ctx, "tcp", b.cfg.Address)
	if err != nil {
		out.Close()
		return fmt.Errorf("connect to %s: %w", b.cfg.Address, err)
	}

	id := uuid.New()
	if _, err := conn.Write(audiosocket.IDMessage(id)); err != nil {
		conn.Close()
		out.Close()
		return fmt.Errorf("send call id: %w", err)
	}

	b.frames.Store(0)
	b.bytes.Store(0)
	b.id = id
	b.conn = conn
	b.running = true
	b.writerErr = nil
	b.captureDone = make(chan struct{})
	b.writerDone = make(chan struct{})

	frames := make(chan []byte, b.cfg.QueueSize)
	go b.capture(conn, frames, b.captureDone)
	go b.record(out, frames, b.writerDone)

	log.Info().Msgf("Call %s: capturing audio from %s into %s", id, b.cfg.Address, b.cfg.OutputPath)
	return nil
}

// capture reads AudioSocket messages until hangup, error or close. Every
// audio payload is queued before the queue is closed.
func (b *Bridge) capture(conn net.Conn, frames chan<- []byte, done chan<- struct{}) {
	defer close(done)
	defer close(frames)

	for {
		msg, err := audiosocket.NextMessage(conn)
		if err != nil {
			if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				log.Debug().Msgf("Call %s: capture ended: %v", b.id, err)
			}
			return
		}

		switch msg.Kind() {
		case audiosocket.KindSlin:
			payload := append([]byte(nil), msg.Payload()...)
			frames <- payload
			b.frames.Add(1)
			b.bytes.Add(int64(len(payload)))
		case audiosocket.KindHangup:
			log.Info().Msgf("Call %s: remote hangup", b.id)
			return
		case audiosocket.KindError:
			log.Warn().Msgf("Call %s: audiosocket error message received", b.id)
			return
		}
	}
}

// record drains frames into the WAV file.
func (b *Bridge) record(out *WAVWriter, frames <-chan []byte, done chan<- struct{}) {
	defer close(done)

	var writeErr error
	for frame := range frames {
		if writeErr != nil {
			continue
		}
		if _, err := out.Write(frame); err != nil {
			writeErr = fmt.Errorf("write recording: %w", err)
			log.Error().Msgf("Call %s: %v", b.id, writeErr)
		}
	}
	if err := out.Close(); err != nil && writeErr == nil {
		writeErr = err
	}
	b.writerErr = writeErr
}

// Stop hangs up and waits until every captured frame is on disk. It is a
// no-op when the bridge is not running.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false

	b.writeMu.Lock()
	_ = b.conn.SetWriteDeadline(time.Now().Add(hangupWriteTimeout))
	if _, err := b.conn.Write(audiosocket.HangupMessage()); err != nil {
		log.Debug().Msgf("Call %s: hangup not sent: %v", b.id, err)
	}
	closeErr := b.conn.Close()
	b.writeMu.Unlock()

	<-b.captureDone
	<-b.writerDone

	log.Info().Msgf("Call %s: recording finished (%d frames, %d bytes)", b.id, b.frames.Load(), b.bytes.Load())
	if b.writerErr != nil {
		return b.writerErr
	}
	if closeErr != nil && !errors.Is(closeErr, net.ErrClosed) {
		return closeErr
	}
	return nil
}

// Speak synthesizes text and sends it to the call, returning once sent.
func (b *Bridge) Speak(ctx context.Context, text string) error {
	b.mu.Lock()
	conn, running := b.conn, b.running
	b.mu.Unlock()
	if !running {
		return errors.New("audio bridge not started")
	}

	pcm, err := b.synthesize(ctx, text)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := audiosocket.SendSlinChunks(conn, audiosocket.DefaultSlinChunkSize, pcm); err != nil {
		return fmt.Errorf("failed to send audio: %w", err)
	}
	log.Debug().Msgf("Call %s: spoke %d bytes", b.id, len(pcm))
	return nil
}

func (b *Bridge) synthesize(ctx context.Context, text string) ([]byte, error) {
	b.cacheMu.RLock()
	pcm, ok := b.cache[text]
	b.cacheMu.RUnlock()
	if ok {
		return pcm, nil
	}
	if b.cfg.Voice == nil {
		return nil, errors.New("no speech synthesizer configured")
	}

	pcm, err := b.cfg.Voice.Synthesize(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("synthesize speech: %w", err)
	}
	b.cacheMu.Lock()
	b.cache[text] = pcm
	b.cacheMu.Unlock()
	return pcm, nil
}

// CaptureStats reports frames and bytes captured by the latest Start.
func (b *Bridge) CaptureStats() (int, int) {
	return int(b.frames.Load()), int(b.bytes.Load())
}
