package mot

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/pkg/errors"
)

// Track is a persistent identity with remembered position and appearance.
// Tracks are owned by TrackStore; use its methods to mutate them.
type Track struct {
	id                    int64
	currentBBox           Rectangle
	currentCenter         Point
	predictedNextPosition Point
	feature               Feature
	track                 []Point
	maxTrackLen           int
	active                bool
	disappeared           int
	lastSeenFrame         int
	dt                    float64
	tracker               *kalman_filter.Kalman2D
}

func newKalman(center Point, dt float64) *kalman_filter.Kalman2D {
	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	return kalman_filter.NewKalman2D(dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(center.X, center.Y))
}

func newTrack(id int64, detection Detection, feature Feature, frame int, dt float64, maxTrackLen int) *Track {
	track := Track{
		id:                    id,
		currentBBox:           detection.BBox,
		currentCenter:         detection.Center,
		predictedNextPosition: detection.Center,
		feature:               feature.Clone(),
		track:                 make([]Point, 0, maxTrackLen),
		maxTrackLen:           maxTrackLen,
		active:                true,
		disappeared:           0,
		lastSeenFrame:         frame,
		dt:                    dt,
		tracker:               newKalman(detection.Center, dt),
	}
	track.appendTrack(detection.Center)
	return &track
}

// GetID returns track's identifier
func (track *Track) GetID() int64 {
	return track.id
}

// GetCenter returns last known center
func (track *Track) GetCenter() Point {
	return track.currentCenter
}

// GetBBox returns last known bounding box
func (track *Track) GetBBox() Rectangle {
	return track.currentBBox
}

// GetPredictedCenter returns center predicted by Kalman filter for current frame
func (track *Track) GetPredictedCenter() Point {
	return track.predictedNextPosition
}

// GetFeature returns copy of appearance descriptor from most recent match
func (track *Track) GetFeature() Feature {
	return track.feature.Clone()
}

// GetDisappeared returns number of consecutive frames without match
func (track *Track) GetDisappeared() int {
	return track.disappeared
}

// IsActive returns lifecycle flag
func (track *Track) IsActive() bool {
	return track.active
}

// GetLastSeenFrame returns frame number of most recent match, reidentification or creation
func (track *Track) GetLastSeenFrame() int {
	return track.lastSeenFrame
}

// GetTrack returns track's center history. Be careful: this is not copy of track, but reference to it
func (track *Track) GetTrack() []Point {
	return track.track
}

func (track *Track) appendTrack(center Point) {
	track.track = append(track.track, center)
	if track.maxTrackLen > 0 && len(track.track) > track.maxTrackLen {
		track.track = track.track[1:]
	}
}

// predictNextPosition executes Kalman filter's first step
func (track *Track) predictNextPosition() {
	track.tracker.Predict()
	stateX, stateY := track.tracker.GetState()
	track.predictedNextPosition.X = stateX
	track.predictedNextPosition.Y = stateY
}

// update executes Kalman filter's second step and then overwrites position and appearance with detection's values.
// Center stays the raw detection center, the filter only drives prediction.
// On filter error the track is left untouched.
func (track *Track) update(detection Detection, feature Feature, frame int) error {
	err := track.tracker.Update(detection.Center.X, detection.Center.Y)
	if err != nil {
		return errors.Wrap(err, "Can't update object tracker")
	}
	track.currentCenter = detection.Center
	track.currentBBox = detection.BBox
	track.feature = feature.Clone()
	track.disappeared = 0
	track.lastSeenFrame = frame
	track.appendTrack(detection.Center)
	return nil
}

// reactivate brings inactive track back. Motion state restarts at detection center.
func (track *Track) reactivate(detection Detection, feature Feature, frame int) {
	track.active = true
	track.currentCenter = detection.Center
	track.currentBBox = detection.BBox
	track.predictedNextPosition = detection.Center
	track.feature = feature.Clone()
	track.disappeared = 0
	track.lastSeenFrame = frame
	track.tracker = newKalman(detection.Center, track.dt)
	track.appendTrack(detection.Center)
}

// incDisappeared increases no match counter and deactivates track once it exceeds maxDisappeared.
// Returns true if track has been deactivated by this call.
func (track *Track) incDisappeared(maxDisappeared int) bool {
	track.disappeared++
	if track.active && track.disappeared > maxDisappeared {
		track.active = false
		return true
	}
	return false
}

func (track *Track) deactivate() {
	track.active = false
}
