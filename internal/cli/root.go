package cli

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/interview-orchestrator/internal/config"
	"github.com/amanullahtanweer/interview-orchestrator/internal/version"
)

// Dependencies is filled in before any subcommand runs.
type Dependencies struct {
	ConfigPath string
	Config     *config.Config
}

func NewRootCmd(deps *Dependencies) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "interviewer",
		Short:         "Run AI-led interviews in Google Meet",
		Long:          "Joins a meeting, asks questions generated from a candidate's CV, records the answers, and writes a transcript and summary.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(version.Full() + "\n")
	rootCmd.PersistentFlags().StringVarP(&deps.ConfigPath, "config", "c", defaultConfigPath(), "Configuration file (yaml or toml)")

	rootCmd.AddCommand(NewRunCmd(deps))
	rootCmd.AddCommand(NewServeCmd(deps))
	rootCmd.AddCommand(NewDoctorCmd(deps))

	return rootCmd
}

func defaultConfigPath() string {
	for _, p := range []string{"config.yaml", "config.yml", "config.toml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// load reads the configuration and sets up logging.
func (d *Dependencies) load(overrides ...func(*config.Config)) error {
	cfg, err := config.Load(d.ConfigPath, overrides...)
	if err != nil {
		return err
	}
	d.Config = cfg
	setupLogging(cfg.Log)
	return nil
}

func setupLogging(cfg config.Log) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}
}
