package database

import (
	"strings"
	"testing"
	"time"

	"audio-relay/internal/models"
)

func TestCycleRow_MatchesInsertColumns(t *testing.T) {
	report := models.CycleReport{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		DeviceID:  "esp32-01",
		FrameSeq:  42,
		Declared:  1024,
		Captured:  600,
		Send:      models.FrameSendResult{ChunksSent: 2, ChunksTotal: 3, Aborted: true, FailedIndex: 2},
		Level:     models.FrameLevel{RMS: 0.1, VolumeDB: -20, Peak: 1200},
		Outcome:   models.OutcomeAborted,
		Duration:  1500 * time.Microsecond,
	}

	row := cycleRow(&report)

	start := strings.Index(insertCyclesSQL, "(")
	end := strings.Index(insertCyclesSQL, ")")
	columns := strings.Split(insertCyclesSQL[start+1:end], ",")
	if len(row) != len(columns) {
		t.Fatalf("row has %d values for %d columns", len(row), len(columns))
	}

	if got := row[6].(uint16); got != 3 {
		t.Errorf("chunks_total = %d, want 3", got)
	}
	if got := row[8].(string); got != "aborted" {
		t.Errorf("outcome = %q", got)
	}
	if got := row[14].(float64); got != 1.5 {
		t.Errorf("duration_ms = %v, want 1.5", got)
	}
}

func TestChunkCount_Saturates(t *testing.T) {
	tests := []struct {
		in   int
		want uint16
	}{
		{-1, 0},
		{0, 0},
		{4, 4},
		{65535, 65535},
		{70000, 65535},
	}
	for _, tt := range tests {
		if got := chunkCount(tt.in); got != tt.want {
			t.Errorf("chunkCount(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestAllTables(t *testing.T) {
	tables := AllTables()
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	for _, sql := range tables {
		if !strings.Contains(sql, "CREATE TABLE IF NOT EXISTS") {
			t.Errorf("table statement is not idempotent: %s", sql)
		}
	}
}
