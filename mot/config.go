package mot

import (
	"github.com/pkg/errors"
)

// TrackerConfig holds configuration parameters for ReIDTracker
type TrackerConfig struct {
	MaxDisappeared    int               // Track becomes inactive once it misses more than this number of consecutive frames
	GatingDistance    float64           // Max center distance (pixels, exclusive) for detection-track pair
	AppearanceWeight  float64           // Multiplier of (1 - correlation) in combined score
	ReidThreshold     float64           // Correlation must be strictly greater than this value to reidentify
	HistogramBins     int               // Bins per color channel for default extractor
	Algorithm         MatchingAlgorithm // Assignment strategy
	MaxInactiveFrames int               // Evict inactive tracks not seen for more than this number of frames. Zero disables eviction
	UsePrediction     bool              // Gate and score against Kalman-predicted centers instead of last known centers
	FrameDT           float64           // Time step for Kalman filter
	MaxTrackLen       int               // Max length of center history per track
	ExtractWorkers    int               // Number of goroutines for feature extraction. Values below 2 mean sequential extraction
}

// DefaultTrackerConfig returns default configuration: gate 100px, 10 missed frames, reidentification above 0.7
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxDisappeared:    10,
		GatingDistance:    100.0,
		AppearanceWeight:  100.0,
		ReidThreshold:     0.7,
		HistogramBins:     DefaultHistogramBins,
		Algorithm:         MatchingAlgorithmGreedy,
		MaxInactiveFrames: 0,
		UsePrediction:     false,
		FrameDT:           1.0,
		MaxTrackLen:       150,
		ExtractWorkers:    1,
	}
}

// Validate checks configuration for values tracker can't work with
func (cfg TrackerConfig) Validate() error {
	if cfg.MaxDisappeared < 0 {
		return errors.Errorf("max disappeared must be non-negative, got %d", cfg.MaxDisappeared)
	}
	if cfg.GatingDistance <= 0 {
		return errors.Errorf("gating distance must be positive, got %f", cfg.GatingDistance)
	}
	if cfg.AppearanceWeight < 0 {
		return errors.Errorf("appearance weight must be non-negative, got %f", cfg.AppearanceWeight)
	}
	if cfg.ReidThreshold < -1 || cfg.ReidThreshold > 1 {
		return errors.Errorf("reidentification threshold must be in [-1, 1], got %f", cfg.ReidThreshold)
	}
	if cfg.HistogramBins <= 0 || cfg.HistogramBins > 256 || cfg.HistogramBins&(cfg.HistogramBins-1) != 0 {
		return errors.Errorf("histogram bins must be power of two in [1, 256], got %d", cfg.HistogramBins)
	}
	if cfg.FrameDT <= 0 {
		return errors.Errorf("frame dt must be positive, got %f", cfg.FrameDT)
	}
	if cfg.MaxTrackLen < 0 {
		return errors.Errorf("max track length must be non-negative, got %d", cfg.MaxTrackLen)
	}
	switch cfg.Algorithm {
	case MatchingAlgorithmGreedy, MatchingAlgorithmHungarian:
	default:
		return errors.Errorf("unknown matching algorithm %d", cfg.Algorithm)
	}
	return nil
}
