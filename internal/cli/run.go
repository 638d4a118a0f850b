package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/amanullahtanweer/interview-orchestrator/internal/config"
	"github.com/amanullahtanweer/interview-orchestrator/internal/flow"
	"github.com/amanullahtanweer/interview-orchestrator/internal/notify"
	"github.com/amanullahtanweer/interview-orchestrator/internal/output"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	var meetingURL, document, candidate string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one interview in the foreground",
		Long:  "Join the meeting, ask the generated questions, then transcribe and summarize.\nCtrl+C skips the remaining questions; a second Ctrl+C aborts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := deps.load(func(c *config.Config) {
				if meetingURL != "" {
					c.MeetingURL = meetingURL
				}
				if document != "" {
					c.Document = document
				}
				if candidate != "" {
					c.CandidateName = candidate
				}
			})
			if err != nil {
				return err
			}
			return runInterview(deps.Config, output.NewFormatter(os.Stdout))
		},
	}

	cmd.Flags().StringVarP(&meetingURL, "meeting", "m", "", "Meeting URL")
	cmd.Flags().StringVarP(&document, "document", "d", "", "Candidate CV (pdf, docx or text)")
	cmd.Flags().StringVarP(&candidate, "candidate", "n", "", "Candidate name (defaults to the document name)")

	return cmd
}

func runInterview(cfg *config.Config, f *output.Formatter) error {
	ctl, cleanup, err := buildController(cfg, notify.Sinks{
		OnStatus:     f.Status,
		OnTranscript: f.Transcript,
		OnSummary:    f.Summary,
	})
	defer cleanup()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}
		f.Warning("Stopping after the current question. Press Ctrl+C again to abort.")
		ctl.Stop()
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	if err := ctl.Start(ctx); err != nil {
		return err
	}
	res, err := ctl.Wait(context.Background())
	if err != nil {
		return err
	}

	settings := ctl.Settings()
	f.SessionEnded(res.State.String(), time.Since(start), settings.TranscriptPath, settings.AudioOutputPath, cfg.Output.Report)
	log.Debug().Msgf("Session %s metrics:\n%s", res.SessionID, res.Metrics)

	if res.State == flow.StateFailed {
		return res.Err
	}
	return nil
}
