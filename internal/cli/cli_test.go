package cli

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"audio-relay/internal/chunker"
	"audio-relay/internal/models"
	"audio-relay/pkg/config"
)

func TestRootCmd_Subcommands(t *testing.T) {
	cfg := config.Defaults()
	root := NewRootCmd(&Dependencies{Config: &cfg})

	want := map[string]bool{"run": false, "doctor": false, "monitor": false, "version": false}
	for _, c := range root.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	cfg := config.Defaults()
	root := NewRootCmd(&Dependencies{Config: &cfg})

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"version"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "relay dev") {
		t.Errorf("version output = %q", buf.String())
	}
}

func TestDescribeChunk(t *testing.T) {
	frame := models.NewAudioFrame(12, 8)
	frame.Captured = 8
	chunks, err := chunker.New(chunker.FramingSequenced).Chunks(frame, 12)
	if err != nil {
		t.Fatal(err)
	}

	got := describeChunk(models.ByteChunk{Index: 1, Offset: 12, Payload: chunks[1].Payload}, chunker.FramingSequenced)
	if got != "#1 offset=12 bytes=12 frame=12 chunk=2/4 data=4" {
		t.Errorf("sequenced description = %q", got)
	}

	raw := describeChunk(models.ByteChunk{Index: 0, Payload: make([]byte, 512)}, chunker.FramingRaw)
	if raw != "#0 offset=0 bytes=512" {
		t.Errorf("raw description = %q", raw)
	}
}

func TestDoctorCmd_FailsWhenChecksFail(t *testing.T) {
	cfg := config.Defaults()
	cfg.LinkInterface = "nonexistent0"
	cfg.MQTTBroker = "tcp://127.0.0.1:1"
	cfg.AudioSource = "file"
	cfg.AudioFile = filepath.Join(t.TempDir(), "missing.raw")
	root := NewRootCmd(&Dependencies{Config: &cfg})

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs([]string{"doctor"})

	err := root.Execute()
	if !errors.Is(err, errDoctorFailed) {
		t.Fatalf("Execute = %v, want %v", err, errDoctorFailed)
	}
	out := buf.String()
	for _, want := range []string{"✗ Network link", "✗ MQTT broker", "✗ Audio source", "Some checks failed."} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
