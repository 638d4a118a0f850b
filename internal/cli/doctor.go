package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/interview-orchestrator/internal/config"
	"github.com/amanullahtanweer/interview-orchestrator/internal/meet"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
	"github.com/amanullahtanweer/interview-orchestrator/internal/output"
	"github.com/amanullahtanweer/interview-orchestrator/internal/transcriber"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	var installBrowsers, printConfig bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.load(); err != nil {
				return err
			}
			f := output.NewFormatter(os.Stdout)

			if printConfig {
				data, err := yaml.Marshal(deps.Config.Redacted())
				if err != nil {
					return err
				}
				fmt.Fprintf(os.Stdout, "%s\n", data)
			}
			if installBrowsers {
				f.Info("Installing Chromium for Playwright...")
				if err := meet.Install(); err != nil {
					return fmt.Errorf("install browsers: %w", err)
				}
				f.Success("Chromium installed")
			}

			if doctor(deps.Config, f) {
				f.Success("\nAll prerequisites met. Ready to interview!")
			} else {
				f.Warning("\nSome prerequisites are missing.")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&installBrowsers, "install-browsers", false, "Install the Playwright Chromium build")
	cmd.Flags().BoolVar(&printConfig, "print-config", false, "Print the effective configuration with secrets masked")
	return cmd
}

func doctor(cfg *config.Config, f *output.Formatter) bool {
	ok := true
	check := func(name string, passed bool, good, bad string) {
		if passed {
			f.SetupCheck(name, true, good)
			return
		}
		f.SetupCheck(name, false, bad)
		ok = false
	}

	check("Meeting URL", cfg.MeetingURL != "", cfg.MeetingURL, "not set. Use --meeting or INTERVIEWER_MEETING_URL")

	if cfg.Document == "" {
		check("Candidate CV", false, "", "not set. Use --document or INTERVIEWER_DOCUMENT")
	} else {
		_, err := os.Stat(cfg.Document)
		check("Candidate CV", err == nil, cfg.Document, fmt.Sprintf("%s not readable", cfg.Document))
	}

	check(cfg.Provider.Name+" API key", cfg.Provider.APIKey != "", "configured",
		"not set. Set INTERVIEWER_API_KEY or the provider's own key variable")

	check("Audio capture", cfg.Audio.CaptureDevice != "", cfg.Audio.CaptureDevice,
		"not set. Point audio.capture_device at the AudioSocket relay")

	if cfg.Audio.TTS == "openai" {
		check("Speech", cfg.Audio.TTSAPIKey != "", "OpenAI "+cfg.Audio.Voice, "no OPENAI_API_KEY; questions will not be spoken")
	} else {
		f.SetupCheck("Speech", true, cfg.Audio.TTS)
	}

	if tr, err := transcriber.New(transcriber.Config{
		Provider: cfg.Transcription.Provider,
		APIKey:   cfg.Transcription.APIKey,
		Model:    cfg.Transcription.Model,
		URL:      cfg.Transcription.URL,
	}); err != nil {
		check("Transcription", false, "", err.Error())
	} else if tr == nil {
		f.SetupCheck("Transcription", true, "disabled, transcript will hold a placeholder")
	} else {
		f.SetupCheck("Transcription", true, cfg.Transcription.Provider)
	}

	if cfg.Redis.Addr != "" {
		pub := notify.NewRedisPublisher(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel, cfg.Redis.Prefix)
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		err := pub.Ping(ctx)
		cancel()
		_ = pub.Close()
		check("Redis", err == nil, cfg.Redis.Addr, fmt.Sprintf("%s: %v", cfg.Redis.Addr, err))
	}

	f.SetupCheck("Artifacts directory", true, cfg.Output.ArtifactsDir)
	return ok
}
