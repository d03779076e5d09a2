package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"audio-relay/internal/aggregator"
	"audio-relay/internal/app"
)

var errDoctorFailed = errors.New("doctor: some checks failed")

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check link, broker and audio source once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := deps.Config
			out := cmd.OutOrStdout()
			ok := true

			l := app.NewLink(cfg)
			if l.IsConnected() {
				check(out, "Network link", true, fmt.Sprintf("interface %q is up", cfg.LinkInterface))
			} else {
				check(out, "Network link", false, fmt.Sprintf("interface %q has no usable address", cfg.LinkInterface))
				ok = false
			}

			session := app.NewSession(cfg)
			if err := session.Connect(cfg.MQTTClientID + "-doctor"); err != nil {
				check(out, "MQTT broker", false, err.Error())
				ok = false
			} else {
				check(out, "MQTT broker", true, cfg.MQTTBroker)
				session.Close()
			}

			if err := checkCapture(cmd.Context(), out, deps); err != nil {
				check(out, "Audio source", false, err.Error())
				ok = false
			}

			if !ok {
				fmt.Fprintln(out, "\nSome checks failed.")
				return errDoctorFailed
			}
			fmt.Fprintln(out, "\nAll checks passed. Ready to stream.")
			return nil
		},
	}
}

func checkCapture(ctx context.Context, out io.Writer, deps *Dependencies) error {
	cfg := deps.Config
	source, err := app.NewSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := source.Start(ctx); err != nil {
		return err
	}

	frame, err := source.Capture(ctx, cfg.AudioCaptureWait)
	if err != nil {
		return err
	}
	level := aggregator.AnalyzeFrame(frame)
	check(out, "Audio source", true, fmt.Sprintf("%s: %d/%d samples, %.1f dBFS, peak %d",
		cfg.AudioSource, frame.Captured, frame.Declared(), level.VolumeDB, level.Peak))
	return nil
}

func check(out io.Writer, name string, ok bool, detail string) {
	mark := "✓"
	if !ok {
		mark = "✗"
	}
	fmt.Fprintf(out, "%s %s: %s\n", mark, name, detail)
}
