package main

import (
	"image"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// videoSource is decoded input video with its properties
type videoSource struct {
	capture *gocv.VideoCapture
	fps     float64
	width   int
	height  int
}

func openVideo(path string) (*videoSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open video '%s'", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("Can't open video '%s'", path)
	}
	fps := capture.Get(gocv.VideoCaptureFPS)
	if fps <= 0 {
		fps = 25.0
	}
	return &videoSource{
		capture: capture,
		fps:     fps,
		width:   int(capture.Get(gocv.VideoCaptureFrameWidth)),
		height:  int(capture.Get(gocv.VideoCaptureFrameHeight)),
	}, nil
}

// Read decodes next frame into dst. Returns false at end of stream.
func (src *videoSource) Read(dst *gocv.Mat) bool {
	if ok := src.capture.Read(dst); !ok {
		return false
	}
	return !dst.Empty()
}

func (src *videoSource) Close() error {
	return src.capture.Close()
}

// createVideoWriter makes parent directory and opens mp4v encoder of the same geometry and rate as input
func createVideoWriter(path string, src *videoSource) (*gocv.VideoWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "Can't create output directory '%s'", dir)
		}
	}
	writer, err := gocv.VideoWriterFile(path, "mp4v", src.fps, src.width, src.height, true)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't create video writer '%s'", path)
	}
	return writer, nil
}

// matToImage converts BGR frame into image.Image with regular RGB channel semantics
func matToImage(frame gocv.Mat) (image.Image, error) {
	img, err := frame.ToImage()
	if err != nil {
		return nil, errors.Wrap(err, "Can't convert frame to image")
	}
	return img, nil
}
