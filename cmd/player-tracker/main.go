// Command player-tracker assigns persistent "Player N" identities to people in a sports video
// and writes annotated copy of the video.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/LdDl/mot-reid/mot"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

const (
	exitRuntimeError = 1
	exitNoVideo      = 2
	exitNoModel      = 3

	progressEvery = 30
)

type options struct {
	videoPath     string
	modelPath     string
	outputPath    string
	configPath    string
	tracksPath    string
	historyPath   string
	playerClass   int
	minConfidence float64
	logLevel      string
}

func main() {
	opts := options{}
	flag.StringVar(&opts.videoPath, "video", "15sec_input_720p.mp4", "Input video file")
	flag.StringVar(&opts.modelPath, "model", "best.onnx", "ONNX detector model, or .jsonl file with precomputed detections")
	flag.StringVar(&opts.outputPath, "output", "output/output_tracked.mp4", "Annotated output video")
	flag.StringVar(&opts.configPath, "config", "", "Optional JSON tuning file")
	flag.StringVar(&opts.tracksPath, "tracks", "", "Optional JSON lines file with per-frame identities")
	flag.StringVar(&opts.historyPath, "history", "", "Optional CSV file with track histories")
	flag.IntVar(&opts.playerClass, "player-class", mot.DefaultPlayerClass, "Detector class index of players")
	flag.Float64Var(&opts.minConfidence, "min-confidence", mot.DefaultMinConfidence, "Detections with confidence not greater than this value are dropped")
	flag.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	// Fail fast before any frame is touched
	if _, err := os.Stat(opts.videoPath); err != nil {
		fmt.Fprintf(os.Stderr, "Video file not found: %s\n", opts.videoPath)
		os.Exit(exitNoVideo)
	}
	if _, err := os.Stat(opts.modelPath); err != nil {
		fmt.Fprintf(os.Stderr, "Model file not found: %s\n", opts.modelPath)
		os.Exit(exitNoModel)
	}

	logger, err := newLogger(opts.logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitRuntimeError)
	}
	defer logger.Sync()

	if err := run(opts, logger); err != nil {
		logger.Error("processing failed", zap.Error(err))
		logger.Sync()
		os.Exit(exitRuntimeError)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	atomicLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "Bad log level '%s'", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = atomicLevel
	logger, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "Can't build logger")
	}
	return logger, nil
}

func run(opts options, logger *zap.Logger) error {
	trackerCfg := mot.DefaultTrackerConfig()
	detCfg := defaultDetectorParams()
	if opts.configPath != "" {
		tuning, err := loadTuningConfig(opts.configPath)
		if err != nil {
			return err
		}
		if err := tuning.apply(&trackerCfg, &detCfg); err != nil {
			return errors.Wrap(err, "Invalid configuration")
		}
	}

	detector, err := newDetector(opts.modelPath, detCfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	tracker, err := mot.NewReIDTracker(trackerCfg, nil, logger)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("session", tracker.SessionID().String()))

	src, err := openVideo(opts.videoPath)
	if err != nil {
		return err
	}
	defer src.Close()

	writer, err := createVideoWriter(opts.outputPath, src)
	if err != nil {
		return err
	}
	defer writer.Close()

	var tracks *tracksWriter
	if opts.tracksPath != "" {
		tracks, err = newTracksWriter(opts.tracksPath, tracker.SessionID().String())
		if err != nil {
			return err
		}
		// Keeps lines written before an early error
		defer tracks.Close()
	}

	logger.Info("processing started",
		zap.String("video", opts.videoPath),
		zap.Float64("fps", src.fps),
		zap.Int("width", src.width),
		zap.Int("height", src.height),
		zap.String("algorithm", trackerCfg.Algorithm.String()),
	)

	frame := gocv.NewMat()
	defer frame.Close()
	frameNum := 0
	for src.Read(&frame) {
		frameNum++
		raw, err := detector.Detect(frame, frameNum)
		if err != nil {
			return errors.Wrapf(err, "Can't detect players on frame %d", frameNum)
		}
		detections := mot.FilterDetections(raw, opts.playerClass, opts.minConfidence)
		img, err := matToImage(frame)
		if err != nil {
			return err
		}
		results, err := tracker.MatchObjects(img, detections)
		if err != nil {
			return err
		}
		drawResults(&frame, results)
		if err := writer.Write(frame); err != nil {
			return errors.Wrapf(err, "Can't write frame %d", frameNum)
		}
		if tracks != nil {
			if err := tracks.WriteFrame(frameNum, results); err != nil {
				return err
			}
		}
		if frameNum%progressEvery == 0 {
			logger.Info("progress", zap.Int("frames", frameNum), zap.Int("tracks", tracker.Store().Len()))
		}
	}

	if tracks != nil {
		if err := tracks.Close(); err != nil {
			return err
		}
		logger.Info("identities saved", zap.String("path", opts.tracksPath))
	}
	if opts.historyPath != "" {
		if err := writeHistory(opts.historyPath, tracker); err != nil {
			return err
		}
		logger.Info("track histories saved", zap.String("path", opts.historyPath))
	}
	logger.Info("video saved",
		zap.String("path", opts.outputPath),
		zap.Int("frames", frameNum),
		zap.Int64("identities", tracker.Store().NextID()-1),
	)
	return nil
}

func writeHistory(path string, tracker *mot.ReIDTracker) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "Can't create history file '%s'", path)
	}
	defer file.Close()
	return tracker.WriteTracksCSV(file)
}
