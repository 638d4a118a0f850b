// Package config loads interview settings from yaml or toml files and the
// environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/amanullahtanweer/interview-orchestrator/internal/flow"
)

const (
	DefaultInterviewerName = "AI Interviewer"
	DefaultModel           = "gpt-4o-mini"
	DefaultServerAddr      = ":8080"
)

// Duration accepts "20s" style strings in both yaml and toml.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.UnmarshalText([]byte(node.Value))
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

type Provider struct {
	Name   string            `yaml:"name" toml:"name"`
	Model  string            `yaml:"model" toml:"model"`
	APIKey string            `yaml:"api_key" toml:"api_key"`
	Extra  map[string]string `yaml:"extra" toml:"extra"`
}

type Output struct {
	// ArtifactsDir roots the default transcript, audio and video paths.
	ArtifactsDir string `yaml:"artifacts_dir" toml:"artifacts_dir"`
	Transcript   string `yaml:"transcript" toml:"transcript"`
	Audio        string `yaml:"audio" toml:"audio"`
	Video        string `yaml:"video" toml:"video"`
	EventLogDir  string `yaml:"event_log_dir" toml:"event_log_dir"`
	Report       string `yaml:"report" toml:"report"`
}

type Interview struct {
	Outline        string   `yaml:"outline" toml:"outline"`
	Warmup         string   `yaml:"warmup" toml:"warmup"`
	SettleDelay    Duration `yaml:"settle_delay" toml:"settle_delay"`
	ResponseWindow Duration `yaml:"response_window" toml:"response_window"`
	ClosingMessage string   `yaml:"closing_message" toml:"closing_message"`
}

type Audio struct {
	// CaptureDevice is the AudioSocket endpoint relaying the meeting audio.
	CaptureDevice string `yaml:"capture_device" toml:"capture_device"`
	Voice         string `yaml:"voice" toml:"voice"`
	// TTS is "openai" or "silence".
	TTS       string `yaml:"tts" toml:"tts"`
	TTSAPIKey string `yaml:"tts_api_key" toml:"tts_api_key"`
	TTSURL    string `yaml:"tts_url" toml:"tts_url"`
}

type Transcription struct {
	Provider string `yaml:"provider" toml:"provider"`
	APIKey   string `yaml:"api_key" toml:"api_key"`
	Model    string `yaml:"model" toml:"model"`
	URL      string `yaml:"url" toml:"url"`
}

type Meet struct {
	Headless    bool     `yaml:"headless" toml:"headless"`
	PrejoinWait Duration `yaml:"prejoin_wait" toml:"prejoin_wait"`
	JoinWait    Duration `yaml:"join_wait" toml:"join_wait"`
}

type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
	Channel  string `yaml:"channel" toml:"channel"`
	Prefix   string `yaml:"prefix" toml:"prefix"`
}

type Server struct {
	Addr         string   `yaml:"addr" toml:"addr"`
	AllowOrigins []string `yaml:"allow_origins" toml:"allow_origins"`
}

type Log struct {
	Level string `yaml:"level" toml:"level"`
	// Format is "console" or "json".
	Format string `yaml:"format" toml:"format"`
}

// Config is the full file layout.
type Config struct {
	MeetingURL      string `yaml:"meeting_url" toml:"meeting_url"`
	CandidateName   string `yaml:"candidate_name" toml:"candidate_name"`
	InterviewerName string `yaml:"interviewer_name" toml:"interviewer_name"`
	Document        string `yaml:"document" toml:"document"`

	Provider      Provider      `yaml:"provider" toml:"provider"`
	Output        Output        `yaml:"output" toml:"output"`
	Interview     Interview     `yaml:"interview" toml:"interview"`
	Audio         Audio         `yaml:"audio" toml:"audio"`
	Transcription Transcription `yaml:"transcription" toml:"transcription"`
	Meet          Meet          `yaml:"meet" toml:"meet"`
	Redis         Redis         `yaml:"redis" toml:"redis"`
	Server        Server        `yaml:"server" toml:"server"`
	Log           Log           `yaml:"log" toml:"log"`
}

// Load reads path (yaml unless it ends in .toml) and applies environment
// overrides, then the given overrides, then defaults. An empty path skips
// the file.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnvOverrides(cfg)
	for _, o := range overrides {
		o(cfg)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		return nil
	default:
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		return nil
	}
}

func applyEnvOverrides(cfg *Config) {
	setString := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	setString(&cfg.MeetingURL, "INTERVIEWER_MEETING_URL")
	setString(&cfg.CandidateName, "INTERVIEWER_CANDIDATE_NAME")
	setString(&cfg.InterviewerName, "INTERVIEWER_DISPLAY_NAME")
	setString(&cfg.Document, "INTERVIEWER_DOCUMENT")
	setString(&cfg.Provider.Name, "INTERVIEWER_PROVIDER")
	setString(&cfg.Provider.Model, "INTERVIEWER_MODEL")
	setString(&cfg.Provider.APIKey, "INTERVIEWER_API_KEY")
	setString(&cfg.Output.ArtifactsDir, "INTERVIEWER_ARTIFACTS_DIR")
	setString(&cfg.Audio.CaptureDevice, "INTERVIEWER_CAPTURE_DEVICE")
	setString(&cfg.Transcription.Provider, "INTERVIEWER_TRANSCRIPTION")
	setString(&cfg.Redis.Addr, "INTERVIEWER_REDIS_ADDR", "REDIS_ADDR")
	setString(&cfg.Server.Addr, "INTERVIEWER_SERVER_ADDR")
	setString(&cfg.Log.Level, "INTERVIEWER_LOG_LEVEL")

	if v := os.Getenv("INTERVIEWER_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Meet.Headless = b
		}
	}

	// Vendor key variables fill in whatever the file left empty.
	if cfg.Provider.APIKey == "" {
		setString(&cfg.Provider.APIKey, providerKeyEnv(cfg.Provider.Name)...)
	}
	if cfg.Audio.TTSAPIKey == "" {
		setString(&cfg.Audio.TTSAPIKey, "OPENAI_API_KEY")
	}
	if cfg.Transcription.APIKey == "" {
		switch strings.ToLower(cfg.Transcription.Provider) {
		case "assemblyai":
			setString(&cfg.Transcription.APIKey, "ASSEMBLYAI_API_KEY")
		case "whisper", "openai":
			setString(&cfg.Transcription.APIKey, "OPENAI_API_KEY")
		}
	}
}

func providerKeyEnv(provider string) []string {
	switch strings.ToLower(provider) {
	case "anthropic":
		return []string{"ANTHROPIC_API_KEY"}
	case "google", "gemini", "google-genai":
		return []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	default:
		return []string{"OPENAI_API_KEY"}
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "openai"
	}
	if cfg.Provider.Model == "" {
		cfg.Provider.Model = DefaultModel
	}
	if cfg.InterviewerName == "" {
		cfg.InterviewerName = DefaultInterviewerName
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultServerAddr
	}
	if cfg.Audio.TTS == "" {
		cfg.Audio.TTS = "openai"
	}
	if cfg.Output.ArtifactsDir == "" {
		cfg.Output.ArtifactsDir = defaultArtifactsDir()
	}
	cfg.Document = expandTilde(cfg.Document)
	cfg.Output.ArtifactsDir = expandTilde(cfg.Output.ArtifactsDir)

	// Artifacts are named after the document, like "jane_doe.txt".
	stem := strings.TrimSuffix(filepath.Base(cfg.Document), filepath.Ext(cfg.Document))
	if cfg.Document == "" {
		stem = "session"
	}
	if cfg.CandidateName == "" && cfg.Document != "" {
		cfg.CandidateName = stem
	}
	if cfg.Output.Transcript == "" {
		cfg.Output.Transcript = filepath.Join(cfg.Output.ArtifactsDir, "transcripts", stem+".txt")
	}
	if cfg.Output.Audio == "" {
		cfg.Output.Audio = filepath.Join(cfg.Output.ArtifactsDir, "audio", stem+".wav")
	}
	if cfg.Output.Video == "" {
		cfg.Output.Video = filepath.Join(cfg.Output.ArtifactsDir, "video")
	}
	cfg.Output.Transcript = expandTilde(cfg.Output.Transcript)
	cfg.Output.Audio = expandTilde(cfg.Output.Audio)
	cfg.Output.Video = expandTilde(cfg.Output.Video)
	cfg.Output.Report = expandTilde(cfg.Output.Report)
}

// Settings converts the file into session settings.
func (cfg *Config) Settings() flow.Settings {
	return flow.Settings{
		MeetingURL:      cfg.MeetingURL,
		CandidateName:   cfg.CandidateName,
		InterviewerName: cfg.InterviewerName,
		DocumentPath:    cfg.Document,
		Provider: flow.ProviderConfig{
			Provider: cfg.Provider.Name,
			Model:    cfg.Provider.Model,
			APIKey:   cfg.Provider.APIKey,
			Extra:    cfg.Provider.Extra,
		},
		TranscriptPath:  cfg.Output.Transcript,
		AudioOutputPath: cfg.Output.Audio,
		VideoOutputPath: cfg.Output.Video,
		Outline:         cfg.Interview.Outline,
		WarmupPrompt:    cfg.Interview.Warmup,
		CaptureDevice:   cfg.Audio.CaptureDevice,
		QuestionVoice:   cfg.Audio.Voice,
		SettleDelay:     time.Duration(cfg.Interview.SettleDelay),
		ResponseWindow:  time.Duration(cfg.Interview.ResponseWindow),
		ClosingMessage:  cfg.Interview.ClosingMessage,
		EventLogDir:     expandTilde(cfg.Output.EventLogDir),
	}.WithDefaults()
}

// Redacted returns a copy safe to print.
func (cfg Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		if len(s) <= 8 {
			return "****"
		}
		return s[:4] + "****" + s[len(s)-2:]
	}
	cfg.Provider.APIKey = mask(cfg.Provider.APIKey)
	cfg.Audio.TTSAPIKey = mask(cfg.Audio.TTSAPIKey)
	cfg.Transcription.APIKey = mask(cfg.Transcription.APIKey)
	cfg.Redis.Password = mask(cfg.Redis.Password)
	return cfg
}

func defaultArtifactsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "AI-Interviewer", "artifacts")
	}
	return filepath.Join(".", "artifacts")
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
