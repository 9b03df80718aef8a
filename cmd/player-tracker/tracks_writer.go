package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/LdDl/mot-reid/mot"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"
)

// tracksWriter stores per-frame identities as JSON lines:
//
//	{"session":"...","frame":1,"objects":[{"id":1,"source":"created","confidence":0.9,"bbox":[x1,y1,x2,y2]}]}
type tracksWriter struct {
	file    *os.File
	buf     *bufio.Writer
	session string
}

func newTracksWriter(path string, session string) (*tracksWriter, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "Can't create directory '%s'", dir)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't create tracks file '%s'", path)
	}
	return &tracksWriter{
		file:    file,
		buf:     bufio.NewWriter(file),
		session: session,
	}, nil
}

// encodeFrameResults builds single JSON line for frame
func encodeFrameResults(session string, frameNum int, results []mot.TrackResult) (string, error) {
	line, err := sjson.Set("", "session", session)
	if err != nil {
		return "", err
	}
	if line, err = sjson.Set(line, "frame", frameNum); err != nil {
		return "", err
	}
	if line, err = sjson.SetRaw(line, "objects", "[]"); err != nil {
		return "", err
	}
	for i, result := range results {
		x1, y1, x2, y2 := result.Detection.BBox.Corners()
		prefix := fmt.Sprintf("objects.%d.", i)
		if line, err = sjson.Set(line, prefix+"id", result.ID()); err != nil {
			return "", err
		}
		if line, err = sjson.Set(line, prefix+"source", result.Source.String()); err != nil {
			return "", err
		}
		if line, err = sjson.Set(line, prefix+"confidence", result.Detection.Confidence); err != nil {
			return "", err
		}
		if line, err = sjson.Set(line, prefix+"bbox", []float64{x1, y1, x2, y2}); err != nil {
			return "", err
		}
	}
	return line, nil
}

func (writer *tracksWriter) WriteFrame(frameNum int, results []mot.TrackResult) error {
	line, err := encodeFrameResults(writer.session, frameNum, results)
	if err != nil {
		return errors.Wrapf(err, "Can't encode results of frame %d", frameNum)
	}
	if _, err := writer.buf.WriteString(line + "\n"); err != nil {
		return errors.Wrapf(err, "Can't write results of frame %d", frameNum)
	}
	return nil
}

// Close flushes buffered lines and closes file. Subsequent calls are no-op.
func (writer *tracksWriter) Close() error {
	if writer.file == nil {
		return nil
	}
	file := writer.file
	writer.file = nil
	if err := writer.buf.Flush(); err != nil {
		file.Close()
		return errors.Wrap(err, "Can't flush tracks file")
	}
	return file.Close()
}
