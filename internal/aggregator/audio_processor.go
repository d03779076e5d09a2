package aggregator

import (
	"math"

	"audio-relay/internal/models"
)

// AudioConfig holds configuration for frame level analysis
type AudioConfig struct {
	ReferenceLevel    float64 // Reference level for dB calculation (32768.0 for 16-bit)
	MinimumRMS        float64 // RMS below this is treated as silence, avoids log(0)
	ClippingThreshold int16   // Absolute sample value treated as clipping
}

// DefaultAudioConfig returns default analysis configuration
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		ReferenceLevel:    32768.0, // Maximum value for signed 16-bit audio
		MinimumRMS:        1.0,
		ClippingThreshold: 32000, // Close to max value of 32767
	}
}

// AnalyzeFrame computes level statistics over the captured samples of a frame
func AnalyzeFrame(frame *models.AudioFrame) models.FrameLevel {
	return AnalyzeSamples(frame.Valid(), DefaultAudioConfig())
}

// AnalyzeSamples computes RMS, dBFS, peak, clipping and silence for samples
func AnalyzeSamples(samples []int16, config AudioConfig) models.FrameLevel {
	level := models.FrameLevel{}

	if len(samples) == 0 {
		level.IsSilent = true
		level.RMS = config.MinimumRMS
		level.VolumeDB = -80.0
		return level
	}

	var sumSquares float64
	var peak int16

	for _, sample := range samples {
		abs := absSample(sample)
		if abs > peak {
			peak = abs
		}
		if abs > config.ClippingThreshold {
			level.IsClipping = true
		}

		f := float64(sample)
		sumSquares += f * f
	}

	level.RMS = math.Sqrt(sumSquares / float64(len(samples)))
	level.Peak = peak

	if level.RMS < config.MinimumRMS {
		level.IsSilent = true
		level.RMS = config.MinimumRMS
	}

	level.VolumeDB = calculateDecibels(level.RMS, config.ReferenceLevel)
	return level
}

// absSample returns |s|, saturating -32768 to 32767
func absSample(s int16) int16 {
	if s == math.MinInt16 {
		return math.MaxInt16
	}
	if s < 0 {
		return -s
	}
	return s
}

// calculateDecibels converts RMS value to decibels
// Formula: dB = 20 * log10(RMS / reference)
func calculateDecibels(rms float64, reference float64) float64 {
	if rms <= 0 || reference <= 0 {
		return -60.0
	}

	db := 20.0 * math.Log10(rms/reference)

	// Typical range for 16-bit audio: -60 dB (quiet) to 0 dB (maximum)
	if db < -80.0 {
		db = -80.0
	}
	if db > 0.0 {
		db = 0.0
	}

	return db
}
