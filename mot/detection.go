package mot

import "fmt"

const (
	// DefaultPlayerClass is class index of "player" in detector output
	DefaultPlayerClass = 0
	// DefaultMinConfidence is exclusive lower bound for detection confidence
	DefaultMinConfidence = 0.5
)

// RawDetection is a single detector output before filtering.
type RawDetection struct {
	BBox       Rectangle
	Class      int
	Confidence float64
}

// Detection is a single per-frame observation consumed by the tracker.
type Detection struct {
	BBox       Rectangle
	Center     Point
	Confidence float64
}

// NewDetection creates detection from corners (x1, y1, x2, y2) and confidence
func NewDetection(x1, y1, x2, y2, confidence float64) Detection {
	bbox := NewRectFromCorners(x1, y1, x2, y2)
	return Detection{
		BBox:       bbox,
		Center:     bbox.Center(),
		Confidence: confidence,
	}
}

// NewDetectionFromRect creates detection from rectangle and confidence
func NewDetectionFromRect(bbox Rectangle, confidence float64) Detection {
	return Detection{
		BBox:       bbox,
		Center:     bbox.Center(),
		Confidence: confidence,
	}
}

// FilterDetections keeps only detections of playerClass with confidence strictly greater than minConfidence.
// Input order is preserved since assignment is order-dependent.
func FilterDetections(raw []RawDetection, playerClass int, minConfidence float64) []Detection {
	out := make([]Detection, 0, len(raw))
	for _, det := range raw {
		if det.Class != playerClass {
			continue
		}
		if det.Confidence > minConfidence {
			out = append(out, NewDetectionFromRect(det.BBox, det.Confidence))
		}
	}
	return out
}

// Identity is an optional track identity. The zero value is unassigned.
type Identity struct {
	id int64
}

// Unassigned returns identity without track
func Unassigned() Identity {
	return Identity{}
}

// Assigned returns identity bound to track id
func Assigned(id int64) Identity {
	return Identity{id: id}
}

// Get returns track id and whether identity is assigned
func (identity Identity) Get() (int64, bool) {
	return identity.id, identity.id > 0
}

// IsAssigned returns true if identity is bound to some track
func (identity Identity) IsAssigned() bool {
	return identity.id > 0
}

func (identity Identity) String() string {
	if !identity.IsAssigned() {
		return "unassigned"
	}
	return fmt.Sprintf("%d", identity.id)
}

// MatchSource tells which stage bound detection to its identity
type MatchSource uint16

const (
	// SourceUnassigned - detection has not been bound yet
	SourceUnassigned MatchSource = iota
	// SourceMatched - detection continued active track
	SourceMatched
	// SourceReidentified - detection recovered inactive track
	SourceReidentified
	// SourceCreated - detection started new track
	SourceCreated
)

func (source MatchSource) String() string {
	switch source {
	case SourceMatched:
		return "matched"
	case SourceReidentified:
		return "reidentified"
	case SourceCreated:
		return "created"
	default:
		return "unassigned"
	}
}

// TrackResult is per-detection output of a single frame
type TrackResult struct {
	Detection Detection
	Identity  Identity
	Source    MatchSource
}

// ID returns assigned track id or zero
func (result TrackResult) ID() int64 {
	id, _ := result.Identity.Get()
	return id
}
