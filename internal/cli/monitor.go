package cli

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"audio-relay/internal/app"
	"audio-relay/internal/chunker"
	"audio-relay/internal/models"
	"audio-relay/internal/mqtt"
)

func NewMonitorCmd(deps *Dependencies) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Subscribe to the audio topic and print arriving chunks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			framing, err := chunker.ParseFraming(cfg.ChunkFraming)
			if err != nil {
				return err
			}

			session := app.NewSession(cfg)
			if err := session.Connect(cfg.MQTTClientID + "-monitor"); err != nil {
				return err
			}
			defer session.Close()

			monitor := mqtt.NewMonitor(session, app.Topic(cfg), 256)
			if err := monitor.Subscribe(); err != nil {
				return err
			}
			defer monitor.Unsubscribe()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := cmd.OutOrStdout()
			for seen := 0; limit <= 0 || seen < limit; seen++ {
				select {
				case <-ctx.Done():
					return nil
				case chunk := <-monitor.Chunks:
					fmt.Fprintln(out, describeChunk(chunk, framing))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "count", "c", 0, "Stop after this many chunks (0 = until interrupted)")
	return cmd
}

func describeChunk(chunk models.ByteChunk, framing chunker.Framing) string {
	line := fmt.Sprintf("#%d offset=%d bytes=%d", chunk.Index, chunk.Offset, len(chunk.Payload))
	if framing != chunker.FramingSequenced {
		return line
	}
	h, data, err := chunker.ParseHeader(chunk.Payload)
	if err != nil {
		return line + " (" + err.Error() + ")"
	}
	return fmt.Sprintf("%s frame=%d chunk=%d/%d data=%d", line, h.FrameSeq, h.ChunkIndex+1, h.ChunkCount, len(data))
}
