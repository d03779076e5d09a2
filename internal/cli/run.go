package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"audio-relay/internal/app"
	"audio-relay/internal/version"
)

func NewRunCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture and publish audio until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			log.Printf("Starting audio relay %s...", version.Version)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			relay, err := app.New(ctx, cfg)
			if err != nil {
				return err
			}
			defer relay.Close()

			log.Println("=== Audio relay is running ===")
			log.Printf("Device: %s", cfg.DeviceID)
			log.Printf("Broker: %s (client %s)", cfg.MQTTBroker, cfg.MQTTClientID)
			log.Printf("Topic:  %s", app.Topic(cfg))
			log.Printf("Audio:  %s, %d Hz, %d samples/frame, %d-byte chunks (%s)",
				cfg.AudioSource, cfg.AudioSampleRate, cfg.AudioFrameSamples, cfg.ChunkMaxBytes, cfg.ChunkFraming)
			log.Println("Press Ctrl+C to exit...")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)
			go func() {
				select {
				case <-sigChan:
					log.Println("Shutdown signal received, stopping relay...")
					cancel()
				case <-ctx.Done():
				}
			}()

			if err := relay.Run(ctx); err != nil {
				return err
			}

			log.Println("Shutdown complete. Goodbye!")
			return nil
		},
	}
}
