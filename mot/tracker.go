package mot

import (
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReIDTracker is multi-object tracker (MOT) which keeps stable integer identities using
// spatial proximity plus color-histogram appearance, and recovers identities after occlusion via reidentification.
// It is not safe for concurrent use: frames must be fed one at a time.
type ReIDTracker struct {
	// Main storage
	store             *TrackStore
	extractor         FeatureExtractor
	assignment        assignmentEngine
	reid              reidentificationEngine
	maxInactiveFrames int
	extractWorkers    int
	// Number of processed frames
	frameNum  int
	sessionID uuid.UUID
	logger    *zap.Logger
}

// DefaultReIDTracker creates tracker with default parameters, 8x8x8 histogram extractor and no logging
func DefaultReIDTracker() *ReIDTracker {
	cfg := DefaultTrackerConfig()
	tracker, err := NewReIDTracker(cfg, nil, nil)
	if err != nil {
		// default configuration is always valid
		panic(err)
	}
	return tracker
}

// NewReIDTracker creates new instance of ReIDTracker.
// nil extractor means histogram extractor with cfg.HistogramBins bins per channel. nil logger means no logging.
func NewReIDTracker(cfg TrackerConfig, extractor FeatureExtractor, logger *zap.Logger) (*ReIDTracker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, errors.Wrap(err, "Invalid tracker configuration")
	}
	if extractor == nil {
		extractor = NewHistogramExtractor(cfg.HistogramBins)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sessionID := uuid.New()
	return &ReIDTracker{
		store:     NewTrackStore(cfg.MaxDisappeared, cfg.MaxTrackLen, cfg.FrameDT),
		extractor: extractor,
		assignment: assignmentEngine{
			gatingDistance:   cfg.GatingDistance,
			appearanceWeight: cfg.AppearanceWeight,
			usePrediction:    cfg.UsePrediction,
			algorithm:        cfg.Algorithm,
		},
		reid: reidentificationEngine{
			threshold: cfg.ReidThreshold,
		},
		maxInactiveFrames: cfg.MaxInactiveFrames,
		extractWorkers:    cfg.ExtractWorkers,
		sessionID:         sessionID,
		logger:            logger.With(zap.String("session", sessionID.String())),
	}, nil
}

// Store returns underlying track storage. Mutating it between frames is allowed, during MatchObjects is not.
func (tracker *ReIDTracker) Store() *TrackStore {
	return tracker.store
}

// SessionID returns unique identifier of this tracker instance
func (tracker *ReIDTracker) SessionID() uuid.UUID {
	return tracker.sessionID
}

// FrameNum returns number of processed frames
func (tracker *ReIDTracker) FrameNum() int {
	return tracker.frameNum
}

// MatchObjects processes single frame: detections are matched against active tracks, leftovers are reidentified
// against inactive tracks, and anything still unmatched starts a new track.
// Returns one result per detection in input order; every result carries assigned identity.
// Error is possible only from Kalman update of matched track. In that case tracks bound earlier in the same frame
// keep their new state, while aging, reidentification and eviction are skipped for this frame.
// The failed track itself stays unchanged, so the store remains consistent and next frame can be processed.
func (tracker *ReIDTracker) MatchObjects(frame image.Image, detections []Detection) ([]TrackResult, error) {
	tracker.frameNum++
	features := tracker.extractFeatures(frame, detections)
	results := make([]TrackResult, len(detections))
	for i := range detections {
		results[i] = TrackResult{
			Detection: detections[i],
			Identity:  Unassigned(),
			Source:    SourceUnassigned,
		}
	}

	// Nothing known yet: every detection is brand-new track
	if tracker.store.Len() == 0 {
		for i := range detections {
			tracker.register(&results[i], features[i])
		}
		return results, nil
	}

	// Predict next positions for all active tracks via Kalman filter
	tracker.store.Predict()

	active := tracker.store.Active()
	matches := tracker.assignment.assign(detections, features, active)
	// Prevent double update of tracks
	claimed := make(map[int64]struct{}, len(active))
	for i, trackIdx := range matches {
		if trackIdx == -1 {
			continue
		}
		trackID := active[trackIdx].id
		err := tracker.store.Update(trackID, detections[i], features[i], tracker.frameNum)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't bind detection %d on frame %d", i, tracker.frameNum)
		}
		claimed[trackID] = struct{}{}
		results[i].Identity = Assigned(trackID)
		results[i].Source = SourceMatched
	}

	for _, trackID := range tracker.store.Age(claimed) {
		tracker.logger.Debug("track deactivated", zap.Int64("track_id", trackID), zap.Int("frame", tracker.frameNum))
	}

	for i := range results {
		if results[i].Identity.IsAssigned() {
			continue
		}
		trackID, ok, err := tracker.reidentify(detections[i], features[i])
		if err != nil {
			return nil, errors.Wrapf(err, "Can't reidentify detection %d on frame %d", i, tracker.frameNum)
		}
		if ok {
			results[i].Identity = Assigned(trackID)
			results[i].Source = SourceReidentified
			continue
		}
		tracker.register(&results[i], features[i])
	}

	for _, trackID := range tracker.store.Evict(tracker.frameNum, tracker.maxInactiveFrames) {
		tracker.logger.Debug("track evicted", zap.Int64("track_id", trackID), zap.Int("frame", tracker.frameNum))
	}
	return results, nil
}

// Reidentify tries to recover inactive identity for single detection on given frame.
// Returns unassigned identity when no inactive track qualifies.
func (tracker *ReIDTracker) Reidentify(frame image.Image, detection Detection) (Identity, error) {
	feature := tracker.extractor.Extract(frame, detection.BBox)
	trackID, ok, err := tracker.reidentify(detection, feature)
	if err != nil {
		return Unassigned(), err
	}
	if !ok {
		return Unassigned(), nil
	}
	return Assigned(trackID), nil
}

func (tracker *ReIDTracker) reidentify(detection Detection, feature Feature) (int64, bool, error) {
	candidate, ok := tracker.reid.findCandidate(feature, tracker.store.Inactive())
	if !ok {
		return 0, false, nil
	}
	err := tracker.store.Reactivate(candidate.id, detection, feature, tracker.frameNum)
	if err != nil {
		return 0, false, err
	}
	tracker.logger.Debug("track reidentified", zap.Int64("track_id", candidate.id), zap.Int("frame", tracker.frameNum))
	return candidate.id, true, nil
}

func (tracker *ReIDTracker) register(result *TrackResult, feature Feature) {
	track := tracker.store.Create(result.Detection, feature, tracker.frameNum)
	result.Identity = Assigned(track.id)
	result.Source = SourceCreated
	tracker.logger.Debug("track created", zap.Int64("track_id", track.id), zap.Int("frame", tracker.frameNum))
}

// extractFeatures returns descriptor per detection. Extraction has no shared mutable state,
// so with several workers each goroutine writes its own indices only.
func (tracker *ReIDTracker) extractFeatures(frame image.Image, detections []Detection) []Feature {
	features := make([]Feature, len(detections))
	workers := tracker.extractWorkers
	if workers < 2 || len(detections) < 2 {
		for i := range detections {
			features[i] = tracker.extractor.Extract(frame, detections[i].BBox)
		}
		return features
	}
	if workers > len(detections) {
		workers = len(detections)
	}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < len(detections); i += workers {
				features[i] = tracker.extractor.Extract(frame, detections[i].BBox)
			}
		}(w)
	}
	wg.Wait()
	return features
}
