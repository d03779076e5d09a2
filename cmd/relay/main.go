package main

import (
	"log"

	"audio-relay/internal/cli"
	"audio-relay/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := cli.NewRootCmd(&cli.Dependencies{Config: cfg}).Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}
