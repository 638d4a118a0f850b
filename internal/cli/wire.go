package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/amanullahtanweer/interview-orchestrator/internal/audio"
	"github.com/amanullahtanweer/interview-orchestrator/internal/config"
	"github.com/amanullahtanweer/interview-orchestrator/internal/document"
	"github.com/amanullahtanweer/interview-orchestrator/internal/flow"
	"github.com/amanullahtanweer/interview-orchestrator/internal/meet"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
	"github.com/amanullahtanweer/interview-orchestrator/internal/report"
	"github.com/amanullahtanweer/interview-orchestrator/internal/transcriber"
	"github.com/amanullahtanweer/interview-orchestrator/internal/tts"
)

const redisPingTimeout = 2 * time.Second

// buildController wires the production collaborators. The returned cleanup
// closes whatever the wiring opened.
func buildController(cfg *config.Config, observers ...notify.Observer) (*flow.Controller, func(), error) {
	settings := cfg.Settings()
	var closers []func() error
	cleanup := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn().Msgf("cleanup: %v", err)
			}
		}
	}

	voice, err := newSynthesizer(cfg, settings.QuestionVoice)
	if err != nil {
		return nil, cleanup, err
	}
	bridge := audio.NewBridge(audio.BridgeConfig{
		Address:    settings.CaptureDevice,
		OutputPath: settings.AudioOutputPath,
		Voice:      voice,
	})

	tr, err := transcriber.New(transcriber.Config{
		Provider: cfg.Transcription.Provider,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		URL:      cfg.Transcription.URL,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("transcription: %w", err)
	}

	if cfg.Redis.Addr != "" {
		pub := notify.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, cfg.Redis.Prefix)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		if err := pub.Ping(ctx); err != nil {
			log.Warn().Msgf("Redis at %s unreachable, events will not be mirrored: %v", cfg.Redis.Addr, err)
		}
		cancel()
		observers = append(observers, pub)
		closers = append(closers, pub.Close)
	}
	if cfg.Output.Report != "" {
		observers = append(observers, &report.Writer{
			Path:          cfg.Output.Report,
			CandidateName: settings.CandidateName,
			MeetingURL:    settings.MeetingURL,
		})
	}

	deps := flow.Deps{
		Extractor: document.Extractor{},
		Connector: meet.Connector{
			Headless:    cfg.Meet.Headless,
			VideoDir:    settings.VideoOutputPath,
			PrejoinWait: time.Duration(cfg.Meet.PrejoinWait),
			JoinWait:    time.Duration(cfg.Meet.JoinWait),
		},
		Bridge:      bridge,
		Transcriber: tr,
		Observer:    notify.Multi(observers),
	}

	ctl, err := flow.NewController(settings, deps)
	if err != nil {
		return nil, cleanup, err
	}
	return ctl, cleanup, nil
}

func newSynthesizer(cfg *config.Config, voice string) (audio.Synthesizer, error) {
	switch strings.ToLower(cfg.Audio.TTS) {
	case "silence", "none":
		return tts.Silence{}, nil
	case "openai", "":
		if cfg.Audio.TTSAPIKey == "" {
			log.Warn().Msg("No OPENAI_API_KEY for speech, questions will only be recorded, not spoken")
			return tts.Silence{}, nil
		}
		return tts.NewOpenAI(cfg.Audio.TTSAPIKey, voice, cfg.Audio.TTSURL), nil
	default:
		return nil, fmt.Errorf("unsupported tts %q", cfg.Audio.TTS)
	}
}
