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
	"github.com/amanullahtanweer/interview-orchestrator/internal/server"
)

const drainTimeout = 30 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the control API",
		Long:  "Expose start, stop and live session status over HTTP and WebSocket.",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := deps.load(func(c *config.Config) {
				if addr != "" {
					c.Server.Addr = addr
				}
			})
			if err != nil {
				return err
			}
			return serve(deps.Config)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default "+config.DefaultServerAddr+")")
	return cmd
}

func serve(cfg *config.Config) error {
	tracker := server.NewTracker()
	ctl, cleanup, err := buildController(cfg, tracker)
	defer cleanup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(ctx, server.Config{Addr: cfg.Server.Addr, AllowOrigins: cfg.Server.AllowOrigins}, ctl, tracker)
	runErr := srv.Run(ctx)

	// Let an interrupted session tear down and write its transcript.
	ctl.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if res, err := ctl.Wait(waitCtx); err != nil {
		log.Warn().Msgf("Session did not finish within %s", drainTimeout)
	} else if res.SessionID != "" {
		log.Info().Msgf("Session %s ended: %s", res.SessionID, res.State)
	}
	return runErr
}
