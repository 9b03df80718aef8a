package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/LdDl/mot-reid/mot"
	"github.com/pkg/errors"
)

const maxTuningFileSize = 1 * 1024 * 1024 // 1MB

// tuningConfig is an optional JSON file with tracker and detector parameters.
// Omitted fields keep their defaults, so partial files are safe.
type tuningConfig struct {
	// Tracker params
	MaxDisappeared    *int     `json:"max_disappeared,omitempty"`
	GatingDistance    *float64 `json:"gating_distance,omitempty"`
	AppearanceWeight  *float64 `json:"appearance_weight,omitempty"`
	ReidThreshold     *float64 `json:"reid_threshold,omitempty"`
	HistogramBins     *int     `json:"histogram_bins,omitempty"`
	Algorithm         *string  `json:"algorithm,omitempty"` // "greedy" or "hungarian"
	MaxInactiveFrames *int     `json:"max_inactive_frames,omitempty"`
	UsePrediction     *bool    `json:"use_prediction,omitempty"`
	FrameDT           *float64 `json:"frame_dt,omitempty"`
	MaxTrackLen       *int     `json:"max_track_len,omitempty"`
	ExtractWorkers    *int     `json:"extract_workers,omitempty"`

	// Detector params (ONNX model only)
	InputSize      *int     `json:"input_size,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
	NMSThreshold   *float64 `json:"nms_threshold,omitempty"`
}

// detectorParams are knobs of the ONNX YOLO detector
type detectorParams struct {
	InputSize      int
	ScoreThreshold float32
	NMSThreshold   float32
}

func defaultDetectorParams() detectorParams {
	return detectorParams{
		InputSize:      640,
		ScoreThreshold: 0.25,
		NMSThreshold:   0.45,
	}
}

// loadTuningConfig reads tuning file. It must have .json extension and be under 1MB.
func loadTuningConfig(path string) (*tuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errors.Errorf("config file must have .json extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't stat config file")
	}
	if fileInfo.Size() > maxTuningFileSize {
		return nil, errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxTuningFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read config file")
	}
	cfg := &tuningConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "Can't parse config JSON")
	}
	return cfg, nil
}

// apply overrides tracker and detector parameters with fields present in file. Result is validated.
func (c *tuningConfig) apply(trackerCfg *mot.TrackerConfig, detCfg *detectorParams) error {
	if c.MaxDisappeared != nil {
		trackerCfg.MaxDisappeared = *c.MaxDisappeared
	}
	if c.GatingDistance != nil {
		trackerCfg.GatingDistance = *c.GatingDistance
	}
	if c.AppearanceWeight != nil {
		trackerCfg.AppearanceWeight = *c.AppearanceWeight
	}
	if c.ReidThreshold != nil {
		trackerCfg.ReidThreshold = *c.ReidThreshold
	}
	if c.HistogramBins != nil {
		trackerCfg.HistogramBins = *c.HistogramBins
	}
	if c.Algorithm != nil {
		switch *c.Algorithm {
		case "greedy":
			trackerCfg.Algorithm = mot.MatchingAlgorithmGreedy
		case "hungarian":
			trackerCfg.Algorithm = mot.MatchingAlgorithmHungarian
		default:
			return errors.Errorf("unknown algorithm %q, expected \"greedy\" or \"hungarian\"", *c.Algorithm)
		}
	}
	if c.MaxInactiveFrames != nil {
		trackerCfg.MaxInactiveFrames = *c.MaxInactiveFrames
	}
	if c.UsePrediction != nil {
		trackerCfg.UsePrediction = *c.UsePrediction
	}
	if c.FrameDT != nil {
		trackerCfg.FrameDT = *c.FrameDT
	}
	if c.MaxTrackLen != nil {
		trackerCfg.MaxTrackLen = *c.MaxTrackLen
	}
	if c.ExtractWorkers != nil {
		trackerCfg.ExtractWorkers = *c.ExtractWorkers
	}
	if c.InputSize != nil {
		if *c.InputSize <= 0 || *c.InputSize%32 != 0 {
			return errors.Errorf("input_size must be positive multiple of 32, got %d", *c.InputSize)
		}
		detCfg.InputSize = *c.InputSize
	}
	if c.ScoreThreshold != nil {
		detCfg.ScoreThreshold = float32(*c.ScoreThreshold)
	}
	if c.NMSThreshold != nil {
		if *c.NMSThreshold <= 0 || *c.NMSThreshold > 1 {
			return errors.Errorf("nms_threshold must be in (0, 1], got %f", *c.NMSThreshold)
		}
		detCfg.NMSThreshold = float32(*c.NMSThreshold)
	}
	return trackerCfg.Validate()
}
