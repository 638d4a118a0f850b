package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/amanullahtanweer/interview-orchestrator/internal/cli"
	"github.com/amanullahtanweer/interview-orchestrator/internal/output"
)

func main() {
	_ = godotenv.Load()

	if err := cli.NewRootCmd(&cli.Dependencies{}).Execute(); err != nil {
		output.NewFormatter(os.Stderr).Error(err.Error())
		os.Exit(1)
	}
}
