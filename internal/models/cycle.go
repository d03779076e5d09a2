package models

import "time"

// FrameSendResult summarizes the publication of one frame
type FrameSendResult struct {
	ChunksSent  int  `json:"chunks_sent"`
	ChunksTotal int  `json:"chunks_total"`
	Aborted     bool `json:"aborted"`
	FailedIndex int  `json:"failed_index"` // -1 when no publish failed
}

// Complete reports whether every chunk of the frame was published
func (r FrameSendResult) Complete() bool {
	return !r.Aborted && r.ChunksSent == r.ChunksTotal
}

// CycleOutcome classifies how a pipeline cycle ended
type CycleOutcome string

const (
	OutcomePublished      CycleOutcome = "published"
	OutcomeAborted        CycleOutcome = "aborted"
	OutcomeCaptureTimeout CycleOutcome = "capture_timeout"
	OutcomeCaptureError   CycleOutcome = "capture_error"
	OutcomeLinkDown       CycleOutcome = "link_down"
	OutcomeSessionDown    CycleOutcome = "session_down"
	OutcomeCancelled      CycleOutcome = "cancelled"
)

// FrameLevel holds per-frame signal statistics
type FrameLevel struct {
	RMS        float64 `json:"rms"`
	VolumeDB   float64 `json:"volume_db"`
	Peak       int16   `json:"peak"`
	IsClipping bool    `json:"is_clipping"`
	IsSilent   bool    `json:"is_silent"`
}

// CycleReport represents the result of one pipeline cycle
type CycleReport struct {
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"device_id"`
	FrameSeq  uint64          `json:"frame_seq"`
	Declared  int             `json:"declared"`
	Captured  int             `json:"captured"`
	Send      FrameSendResult `json:"send"`
	Level     FrameLevel      `json:"level"`
	Outcome   CycleOutcome    `json:"outcome"`
	Duration  time.Duration   `json:"duration"`
}

// LinkEvent records the end of one connectivity recovery
type LinkEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	DeviceID  string        `json:"device_id"`
	Layer     string        `json:"layer"` // "link" or "broker"
	Recovered bool          `json:"recovered"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}
