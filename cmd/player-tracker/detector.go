package main

import (
	"bufio"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/LdDl/mot-reid/mot"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"gocv.io/x/gocv"
)

// Detector produces raw detections for a single frame. Class and confidence filtering happens later.
type Detector interface {
	Detect(frame gocv.Mat, frameNum int) ([]mot.RawDetection, error)
	Close() error
}

// newDetector picks implementation by model extension: .jsonl means precomputed detections, anything else is ONNX model
func newDetector(modelPath string, params detectorParams) (Detector, error) {
	if strings.ToLower(filepath.Ext(modelPath)) == ".jsonl" {
		return newJSONLDetector(modelPath)
	}
	return newYOLODetector(modelPath, params)
}

// yoloDetector runs YOLOv8-family ONNX model via OpenCV DNN.
// Expected output shape is [1, 4+classes, anchors] with (cx, cy, w, h) boxes in network input scale.
type yoloDetector struct {
	net    gocv.Net
	params detectorParams
}

func newYOLODetector(modelPath string, params detectorParams) (*yoloDetector, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, errors.Errorf("Can't load ONNX model from '%s'", modelPath)
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "Can't set DNN backend")
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, errors.Wrap(err, "Can't set DNN target")
	}
	return &yoloDetector{
		net:    net,
		params: params,
	}, nil
}

func (detector *yoloDetector) Detect(frame gocv.Mat, frameNum int) ([]mot.RawDetection, error) {
	size := detector.params.InputSize
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(size, size), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()
	detector.net.SetInput(blob, "")
	output := detector.net.Forward("")
	defer output.Close()

	shape := output.Size()
	if len(shape) != 3 || shape[1] <= 4 {
		return nil, errors.Errorf("unexpected model output shape %v on frame %d", shape, frameNum)
	}
	rows, anchors := shape[1], shape[2]
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrapf(err, "Can't read model output on frame %d", frameNum)
	}

	xScale := float64(frame.Cols()) / float64(size)
	yScale := float64(frame.Rows()) / float64(size)
	boxes := make([]image.Rectangle, 0)
	nmsBoxes := make([]image.Rectangle, 0)
	scores := make([]float32, 0)
	classes := make([]int, 0)
	for i := 0; i < anchors; i++ {
		bestClass := -1
		bestScore := float32(0)
		for c := 4; c < rows; c++ {
			if score := data[c*anchors+i]; score > bestScore {
				bestScore = score
				bestClass = c - 4
			}
		}
		if bestClass < 0 || bestScore < detector.params.ScoreThreshold {
			continue
		}
		cx := float64(data[i])
		cy := float64(data[anchors+i])
		w := float64(data[2*anchors+i])
		h := float64(data[3*anchors+i])
		x1 := int((cx - w/2) * xScale)
		y1 := int((cy - h/2) * yScale)
		x2 := int((cx + w/2) * xScale)
		y2 := int((cy + h/2) * yScale)
		box := image.Rect(x1, y1, x2, y2)
		boxes = append(boxes, box)
		// Shift boxes of different classes apart so NMS never suppresses across classes
		nmsBoxes = append(nmsBoxes, box.Add(image.Pt(bestClass*8192, 0)))
		scores = append(scores, bestScore)
		classes = append(classes, bestClass)
	}
	if len(boxes) == 0 {
		return []mot.RawDetection{}, nil
	}
	indices := gocv.NMSBoxes(nmsBoxes, scores, detector.params.ScoreThreshold, detector.params.NMSThreshold)
	detections := make([]mot.RawDetection, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, mot.RawDetection{
			BBox:       mot.NewRectFrom(boxes[idx]),
			Class:      classes[idx],
			Confidence: float64(scores[idx]),
		})
	}
	return detections, nil
}

func (detector *yoloDetector) Close() error {
	return detector.net.Close()
}

// jsonlDetector replays precomputed detections. Each line of file describes single frame:
//
//	{"frame": 1, "detections": [{"bbox": [x1, y1, x2, y2], "class": 0, "confidence": 0.91}]}
//
// Frames are numbered from 1. Frames absent from file have no detections.
type jsonlDetector struct {
	frames map[int][]mot.RawDetection
}

func newJSONLDetector(path string) (*jsonlDetector, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "Can't open detections file")
	}
	defer file.Close()
	detector := &jsonlDetector{
		frames: make(map[int][]mot.RawDetection),
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		frameNum, detections, err := parseDetectionsLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "Bad detections line %d", lineNum)
		}
		detector.frames[frameNum] = append(detector.frames[frameNum], detections...)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "Can't read detections file")
	}
	return detector, nil
}

// parseDetectionsLine extracts frame number and detections from single JSON line
func parseDetectionsLine(line string) (int, []mot.RawDetection, error) {
	if !gjson.Valid(line) {
		return 0, nil, errors.New("invalid JSON")
	}
	parsed := gjson.Parse(line)
	frame := parsed.Get("frame")
	if !frame.Exists() || frame.Int() < 1 {
		return 0, nil, errors.New("missing or non-positive 'frame'")
	}
	detections := make([]mot.RawDetection, 0)
	var parseErr error
	parsed.Get("detections").ForEach(func(key, value gjson.Result) bool {
		bbox := value.Get("bbox").Array()
		if len(bbox) != 4 {
			parseErr = errors.Errorf("detection %d: 'bbox' must have 4 numbers, got %d", key.Int(), len(bbox))
			return false
		}
		confidence := value.Get("confidence")
		if !confidence.Exists() {
			parseErr = errors.Errorf("detection %d: missing 'confidence'", key.Int())
			return false
		}
		detections = append(detections, mot.RawDetection{
			BBox:       mot.NewRectFromCorners(bbox[0].Float(), bbox[1].Float(), bbox[2].Float(), bbox[3].Float()),
			Class:      int(value.Get("class").Int()),
			Confidence: confidence.Float(),
		})
		return true
	})
	if parseErr != nil {
		return 0, nil, parseErr
	}
	return int(frame.Int()), detections, nil
}

func (detector *jsonlDetector) Detect(frame gocv.Mat, frameNum int) ([]mot.RawDetection, error) {
	return detector.frames[frameNum], nil
}

func (detector *jsonlDetector) Close() error {
	return nil
}
