package mot

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// stubExtractor returns preset descriptor per bbox X coordinate
type stubExtractor struct {
	size     int
	features map[float64]Feature
}

func (extractor *stubExtractor) Size() int {
	return extractor.size
}

func (extractor *stubExtractor) Extract(frame image.Image, bbox Rectangle) Feature {
	if feature, ok := extractor.features[bbox.X]; ok {
		return feature.Clone()
	}
	return make(Feature, extractor.size)
}

// detectionAt returns 40x80 detection centered at (cx, cy)
func detectionAt(cx, cy float64) Detection {
	return NewDetection(cx-20, cy-40, cx+20, cy+40, 0.9)
}

func resultIDs(results []TrackResult) []int64 {
	ids := make([]int64, len(results))
	for i, result := range results {
		ids[i] = result.ID()
	}
	return ids
}

func mustTracker(t *testing.T, cfg TrackerConfig, extractor FeatureExtractor) *ReIDTracker {
	t.Helper()
	tracker, err := NewReIDTracker(cfg, extractor, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tracker
}

func mustMatch(t *testing.T, tracker *ReIDTracker, frame image.Image, detections []Detection) []TrackResult {
	t.Helper()
	results, err := tracker.MatchObjects(frame, detections)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != len(detections) {
		t.Fatalf("Expected %d results, got %d", len(detections), len(results))
	}
	return results
}

func TestMatchObjectsLifecycle(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 255, G: 0, B: 0, A: 255})
	tracker := DefaultReIDTracker()

	results := mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})
	if results[0].ID() != 1 || results[0].Source != SourceCreated {
		t.Fatalf("Expected new track 1, got %s (%s)", results[0].Identity, results[0].Source)
	}

	results = mustMatch(t, tracker, frame, []Detection{detectionAt(105, 100)})
	if results[0].ID() != 1 || results[0].Source != SourceMatched {
		t.Fatalf("Expected match with track 1, got %s (%s)", results[0].Identity, results[0].Source)
	}
	track, _ := tracker.Store().Get(1)
	if track.GetCenter() != (Point{X: 105, Y: 100}) {
		t.Errorf("Expected center to be overwritten with (105, 100), got %v", track.GetCenter())
	}

	// 10 missed frames keep track active, 11th deactivates it
	for i := 0; i < 10; i++ {
		mustMatch(t, tracker, frame, nil)
	}
	if !track.IsActive() || track.GetDisappeared() != 10 {
		t.Fatalf("Expected active track with 10 misses, got active=%v misses=%d", track.IsActive(), track.GetDisappeared())
	}
	mustMatch(t, tracker, frame, nil)
	if track.IsActive() {
		t.Fatal("Track should be inactive after 11 missed frames")
	}

	// Far away from last position, recovered by appearance only
	results = mustMatch(t, tracker, frame, []Detection{detectionAt(400, 300)})
	if results[0].ID() != 1 || results[0].Source != SourceReidentified {
		t.Fatalf("Expected track 1 to be reidentified, got %s (%s)", results[0].Identity, results[0].Source)
	}
	if !track.IsActive() || track.GetDisappeared() != 0 {
		t.Errorf("Reidentified track should be active with zero misses")
	}
	if tracker.Store().NextID() != 2 {
		t.Errorf("No new id should be issued, next id is %d", tracker.Store().NextID())
	}
	if tracker.FrameNum() != 14 {
		t.Errorf("Expected 14 processed frames, got %d", tracker.FrameNum())
	}
}

func TestMatchObjectsCompetingDetections(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 0, G: 255, B: 0, A: 255})
	tracker := DefaultReIDTracker()
	mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})

	// First detection claims the only track even though second one is closer
	results := mustMatch(t, tracker, frame, []Detection{detectionAt(110, 100), detectionAt(105, 100)})
	if diff := cmp.Diff([]int64{1, 2}, resultIDs(results)); diff != "" {
		t.Errorf("Unexpected ids (-want +got):\n%s", diff)
	}
	if results[1].Source != SourceCreated {
		t.Errorf("Second detection should start new track, got %s", results[1].Source)
	}
}

func TestMatchObjectsGateIsExclusive(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 0, G: 0, B: 255, A: 255})
	tracker := DefaultReIDTracker()
	mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})

	// Exactly 100 pixels away: outside of gate, and track 1 is still active so can't be reidentified
	results := mustMatch(t, tracker, frame, []Detection{detectionAt(200, 100)})
	if results[0].ID() != 2 || results[0].Source != SourceCreated {
		t.Fatalf("Expected new track 2, got %s (%s)", results[0].Identity, results[0].Source)
	}
	track, _ := tracker.Store().Get(1)
	if track.GetDisappeared() != 1 {
		t.Errorf("Unmatched track should age, got %d misses", track.GetDisappeared())
	}
}

func TestMatchObjectsAppearanceBeatsDistance(t *testing.T) {
	red := color.RGBA{R: 255, G: 0, B: 0, A: 255}
	blue := color.RGBA{R: 0, G: 0, B: 255, A: 255}

	first := uniformFrame(640, 480, color.Black)
	paintRegion(first, image.Rect(80, 60, 120, 140), red)
	paintRegion(first, image.Rect(140, 60, 180, 140), blue)

	tracker := DefaultReIDTracker()
	results := mustMatch(t, tracker, first, []Detection{detectionAt(100, 100), detectionAt(160, 100)})
	if diff := cmp.Diff([]int64{1, 2}, resultIDs(results)); diff != "" {
		t.Fatalf("Unexpected ids (-want +got):\n%s", diff)
	}

	// Red player moved right: 40 pixels from red track, 20 pixels from blue track
	second := uniformFrame(640, 480, color.Black)
	paintRegion(second, image.Rect(120, 60, 160, 140), red)
	results = mustMatch(t, tracker, second, []Detection{detectionAt(140, 100)})
	if results[0].ID() != 1 {
		t.Errorf("Expected red track 1, got %s", results[0].Identity)
	}
}

func TestMatchObjectsReidThresholdIsStrict(t *testing.T) {
	f1 := Feature{1, 2, 3, 4}
	f2 := Feature{1, 3, 2, 4}
	// Same argument order as reidentification: detection first, track second
	similarity, ok := Correlation(f2, f1)
	if !ok {
		t.Fatal("Correlation should be defined")
	}
	near := detectionAt(100, 100)
	far := detectionAt(500, 300)
	extractor := &stubExtractor{
		size: 4,
		features: map[float64]Feature{
			near.BBox.X: f1,
			far.BBox.X:  f2,
		},
	}
	run := func(threshold float64) TrackResult {
		cfg := DefaultTrackerConfig()
		cfg.MaxDisappeared = 0
		cfg.ReidThreshold = threshold
		tracker := mustTracker(t, cfg, extractor)
		mustMatch(t, tracker, nil, []Detection{near})
		mustMatch(t, tracker, nil, nil)
		return mustMatch(t, tracker, nil, []Detection{far})[0]
	}

	result := run(similarity)
	if result.Source != SourceCreated || result.ID() != 2 {
		t.Errorf("Correlation equal to threshold must not reidentify, got %s (%s)", result.Identity, result.Source)
	}
	result = run(similarity - 1e-9)
	if result.Source != SourceReidentified || result.ID() != 1 {
		t.Errorf("Correlation above threshold must reidentify, got %s (%s)", result.Identity, result.Source)
	}
}

func TestMatchObjectsReidTieKeepsFirst(t *testing.T) {
	f := Feature{1, 2, 3, 4}
	a := detectionAt(100, 100)
	b := detectionAt(400, 100)
	c := detectionAt(250, 400)
	extractor := &stubExtractor{
		size:     4,
		features: map[float64]Feature{a.BBox.X: f, b.BBox.X: f, c.BBox.X: f},
	}
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	tracker := mustTracker(t, cfg, extractor)
	mustMatch(t, tracker, nil, []Detection{a, b})
	mustMatch(t, tracker, nil, nil)
	if len(tracker.Store().Inactive()) != 2 {
		t.Fatalf("Expected 2 inactive tracks, got %d", len(tracker.Store().Inactive()))
	}
	results := mustMatch(t, tracker, nil, []Detection{c})
	if results[0].ID() != 1 {
		t.Errorf("Equal similarity should keep first inactive track, got %s", results[0].Identity)
	}
}

func TestMatchObjectsNegativeCorrelationNeverReidentifies(t *testing.T) {
	a := detectionAt(100, 100)
	b := detectionAt(500, 300)
	extractor := &stubExtractor{
		size:     4,
		features: map[float64]Feature{a.BBox.X: {1, 2, 3, 4}, b.BBox.X: {4, 3, 1, 2}},
	}
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	cfg.ReidThreshold = -0.9
	tracker := mustTracker(t, cfg, extractor)
	mustMatch(t, tracker, nil, []Detection{a})
	mustMatch(t, tracker, nil, nil)
	results := mustMatch(t, tracker, nil, []Detection{b})
	if results[0].Source != SourceCreated {
		t.Errorf("Negative similarity should not reidentify, got %s", results[0].Source)
	}
}

func TestReidentify(t *testing.T) {
	known := Feature{1, 2, 3, 4}
	a := detectionAt(100, 100)
	stranger := detectionAt(500, 300)
	returning := detectionAt(300, 200)
	extractor := &stubExtractor{
		size:     4,
		features: map[float64]Feature{a.BBox.X: known, stranger.BBox.X: {4, 3, 1, 2}, returning.BBox.X: known},
	}
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	tracker := mustTracker(t, cfg, extractor)
	mustMatch(t, tracker, nil, []Detection{a})
	mustMatch(t, tracker, nil, nil)
	track, _ := tracker.Store().Get(1)
	if track.IsActive() {
		t.Fatal("Track 1 should be inactive after missed frame")
	}

	identity, err := tracker.Reidentify(nil, stranger)
	if err != nil {
		t.Fatal(err)
	}
	if identity != Unassigned() {
		t.Errorf("Dissimilar detection should stay unassigned, got %s", identity)
	}
	if track.IsActive() || track.GetCenter() != a.Center {
		t.Errorf("Failed reidentification should not touch track, got active=%v center=%v", track.IsActive(), track.GetCenter())
	}

	identity, err = tracker.Reidentify(nil, returning)
	if err != nil {
		t.Fatal(err)
	}
	if identity != Assigned(1) {
		t.Fatalf("Expected track 1 to be recovered, got %s", identity)
	}
	if !track.IsActive() {
		t.Error("Recovered track should be active")
	}
	if track.GetCenter() != returning.Center || track.GetPredictedCenter() != returning.Center {
		t.Errorf("Expected center and prediction at %v, got %v and %v", returning.Center, track.GetCenter(), track.GetPredictedCenter())
	}
	if track.GetDisappeared() != 0 || track.GetLastSeenFrame() != 2 {
		t.Errorf("Expected fresh track seen on frame 2, got disappeared=%d last seen=%d", track.GetDisappeared(), track.GetLastSeenFrame())
	}
	if diff := cmp.Diff(known, track.GetFeature()); diff != "" {
		t.Errorf("Feature mismatch (-want +got):\n%s", diff)
	}
	if len(tracker.Store().Inactive()) != 0 {
		t.Errorf("Expected no inactive tracks left, got %d", len(tracker.Store().Inactive()))
	}
}

func TestMatchObjectsSameFrameDeactivationIsCandidate(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 200, G: 200, B: 0, A: 255})
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	tracker := mustTracker(t, cfg, nil)
	mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})
	// Out of gate: track 1 misses this frame, turns inactive and is recovered right away
	results := mustMatch(t, tracker, frame, []Detection{detectionAt(500, 400)})
	if results[0].ID() != 1 || results[0].Source != SourceReidentified {
		t.Errorf("Expected track 1 to be reidentified in the same frame, got %s (%s)", results[0].Identity, results[0].Source)
	}
}

func TestMatchObjectsEviction(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	cfg := DefaultTrackerConfig()
	cfg.MaxDisappeared = 0
	cfg.MaxInactiveFrames = 2
	tracker := mustTracker(t, cfg, nil)
	mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})
	mustMatch(t, tracker, frame, nil)
	mustMatch(t, tracker, frame, nil)
	if tracker.Store().Len() != 1 {
		t.Fatalf("Track should not be evicted yet")
	}
	mustMatch(t, tracker, frame, nil)
	if tracker.Store().Len() != 0 {
		t.Fatalf("Track should be evicted, store has %d tracks", tracker.Store().Len())
	}
	// Empty store bootstraps again, evicted id is not reused
	results := mustMatch(t, tracker, frame, []Detection{detectionAt(100, 100)})
	if results[0].ID() != 2 || results[0].Source != SourceCreated {
		t.Errorf("Expected new track 2, got %s (%s)", results[0].Identity, results[0].Source)
	}
}

func TestMatchObjectsDeterministic(t *testing.T) {
	frame := uniformFrame(800, 600, color.Black)
	paintRegion(frame, image.Rect(50, 50, 150, 250), color.RGBA{R: 255, A: 255})
	paintRegion(frame, image.Rect(300, 100, 400, 300), color.RGBA{G: 255, A: 255})
	paintRegion(frame, image.Rect(600, 200, 700, 400), color.RGBA{B: 255, A: 255})
	sequence := [][]Detection{
		{NewDetection(50, 50, 150, 250, 0.9), NewDetection(300, 100, 400, 300, 0.8)},
		{NewDetection(55, 50, 155, 250, 0.9), NewDetection(600, 200, 700, 400, 0.7), NewDetection(300, 105, 400, 305, 0.8)},
		{},
		{NewDetection(600, 200, 700, 400, 0.7), NewDetection(60, 55, 160, 255, 0.9)},
	}
	run := func(workers int) [][]int64 {
		cfg := DefaultTrackerConfig()
		cfg.ExtractWorkers = workers
		tracker := mustTracker(t, cfg, nil)
		out := make([][]int64, 0, len(sequence))
		for _, detections := range sequence {
			out = append(out, resultIDs(mustMatch(t, tracker, frame, detections)))
		}
		return out
	}
	want := [][]int64{{1, 2}, {1, 3, 2}, {}, {3, 1}}
	if diff := cmp.Diff(want, run(1)); diff != "" {
		t.Errorf("Unexpected ids (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(run(1), run(4)); diff != "" {
		t.Errorf("Parallel extraction changed ids (-sequential +parallel):\n%s", diff)
	}
}

func TestExtractFeaturesParallel(t *testing.T) {
	frame := uniformFrame(300, 300, color.Black)
	paintRegion(frame, image.Rect(0, 0, 150, 150), color.RGBA{R: 255, A: 255})
	paintRegion(frame, image.Rect(150, 150, 300, 300), color.RGBA{G: 128, B: 64, A: 255})
	detections := []Detection{
		NewDetection(0, 0, 100, 100, 0.9),
		NewDetection(100, 100, 200, 200, 0.9),
		NewDetection(120, 20, 280, 260, 0.9),
		NewDetection(200, 200, 300, 300, 0.9),
		NewDetection(10, 140, 160, 290, 0.9),
	}
	sequential := mustTracker(t, DefaultTrackerConfig(), nil)
	cfg := DefaultTrackerConfig()
	cfg.ExtractWorkers = 3
	parallel := mustTracker(t, cfg, nil)
	if diff := cmp.Diff(sequential.extractFeatures(frame, detections), parallel.extractFeatures(frame, detections)); diff != "" {
		t.Errorf("Features mismatch (-sequential +parallel):\n%s", diff)
	}
}

func TestMatchObjectsWithPrediction(t *testing.T) {
	frame := uniformFrame(1000, 300, color.RGBA{R: 90, G: 30, B: 160, A: 255})
	cfg := DefaultTrackerConfig()
	cfg.UsePrediction = true
	tracker := mustTracker(t, cfg, nil)
	for i := 0; i < 20; i++ {
		results := mustMatch(t, tracker, frame, []Detection{detectionAt(100+float64(i)*20, 150)})
		if results[0].ID() != 1 {
			t.Fatalf("Frame %d: expected track 1, got %s", i, results[0].Identity)
		}
	}
	track, _ := tracker.Store().Get(1)
	if len(track.GetTrack()) != 20 {
		t.Errorf("Expected 20 history points, got %d", len(track.GetTrack()))
	}
}

func TestMatchObjectsSpread(t *testing.T) {
	bboxesIterations := [][]Rectangle{
		// Each nested vector represents set of bounding boxes on a single frame
		{NewRect(378.0, 147.0, 173.0, 243.0)},
		{NewRect(374.0, 147.0, 180.0, 253.0)},
		{NewRect(375.0, 154.0, 178.0, 256.0)},
		{NewRect(376.0, 162.0, 177.0, 267.0)},
		{NewRect(375.0, 166.0, 178.0, 268.0)},
		{NewRect(375.0, 177.0, 186.0, 266.0)},
		{NewRect(370.0, 185.0, 197.0, 273.0)},
		{NewRect(363.0, 209.0, 203.0, 264.0)},
		{NewRect(70.0, 14.0, 227.0, 254.0), NewRect(364.0, 214.0, 200.0, 262.0)},
		{NewRect(365.0, 218.0, 205.0, 263.0)},
		{NewRect(67.0, 23.0, 236.0, 246.0), NewRect(366.0, 231.0, 209.0, 260.0)},
		{NewRect(73.0, 18.0, 227.0, 264.0), NewRect(610.0, 47.0, 324.0, 355.0), NewRect(370.0, 238.0, 199.0, 259.0), NewRect(381.0, -1.0, 103.0, 60.0)},
		{NewRect(67.0, 16.0, 229.0, 271.0), NewRect(370.0, 250.0, 195.0, 264.0), NewRect(381.0, -2.0, 106.0, 58.0)},
		{NewRect(62.0, 15.0, 233.0, 268.0), NewRect(365.0, 257.0, 205.0, 264.0), NewRect(379.0, -1.0, 109.0, 59.0)},
		{NewRect(60.0, 7.0, 234.0, 279.0), NewRect(360.0, 269.0, 212.0, 260.0), NewRect(380.0, -1.0, 109.0, 60.0)},
		{NewRect(50.0, 41.0, 251.0, 295.0), NewRect(619.0, 25.0, 308.0, 399.0), NewRect(361.0, 276.0, 215.0, 265.0), NewRect(380.0, -1.0, 110.0, 63.0)},
		{NewRect(48.0, 36.0, 242.0, 302.0), NewRect(622.0, 21.0, 299.0, 411.0), NewRect(357.0, 283.0, 222.0, 255.0), NewRect(379.0, 0.0, 113.0, 64.0)},
		{NewRect(41.0, 28.0, 245.0, 319.0), NewRect(625.0, 31.0, 308.0, 392.0), NewRect(350.0, 306.0, 239.0, 231.0), NewRect(377.0, 0.0, 116.0, 65.0)},
		{NewRect(630.0, 98.0, 294.0, 324.0), NewRect(346.0, 310.0, 250.0, 239.0), NewRect(378.0, 0.0, 112.0, 65.0)},
		{NewRect(636.0, 99.0, 290.0, 323.0), NewRect(344.0, 320.0, 254.0, 229.0), NewRect(378.0, 2.0, 114.0, 65.0)},
		{NewRect(636.0, 103.0, 295.0, 318.0), NewRect(347.0, 332.0, 251.0, 211.0)},
		{NewRect(362.0, 1.0, 147.0, 90.0), NewRect(637.0, 104.0, 292.0, 321.0), NewRect(337.0, 344.0, 272.0, 196.0)},
		{NewRect(360.0, -2.0, 152.0, 97.0), NewRect(12.0, 74.0, 237.0, 324.0), NewRect(639.0, 104.0, 293.0, 316.0), NewRect(347.0, 350.0, 258.0, 185.0)},
		{NewRect(361.0, -4.0, 149.0, 99.0), NewRect(9.0, 112.0, 251.0, 313.0), NewRect(627.0, 106.0, 314.0, 321.0)},
		{NewRect(360.0, -3.0, 151.0, 99.0), NewRect(15.0, 115.0, 231.0, 311.0), NewRect(633.0, 91.0, 297.0, 346.0)},
		{NewRect(362.0, -7.0, 148.0, 106.0), NewRect(10.0, 109.0, 241.0, 320.0), NewRect(639.0, 93.0, 294.0, 347.0)},
		{NewRect(362.0, -9.0, 146.0, 109.0), NewRect(12.0, 109.0, 233.0, 326.0), NewRect(639.0, 95.0, 288.0, 347.0)},
	}

	// Same jersey color everywhere: identities are kept by motion alone
	frame := uniformFrame(1000, 600, color.RGBA{R: 240, G: 240, B: 20, A: 255})
	tracker := DefaultReIDTracker()
	for _, iteration := range bboxesIterations {
		detections := make([]Detection, len(iteration))
		for j, bbox := range iteration {
			detections[j] = NewDetectionFromRect(bbox, 0.9)
		}
		results := mustMatch(t, tracker, frame, detections)
		for _, result := range results {
			if !result.Identity.IsAssigned() {
				t.Fatal("Every detection should get identity")
			}
		}
	}

	correctNumOfObjects := 4
	numOfObjects := tracker.Store().Len()
	if numOfObjects != correctNumOfObjects {
		t.Errorf("incorrect number of objects: %d, expected: %d", numOfObjects, correctNumOfObjects)
	}
	if len(tracker.Store().Active()) != correctNumOfObjects {
		t.Errorf("incorrect number of active objects: %d, expected: %d", len(tracker.Store().Active()), correctNumOfObjects)
	}
}

func TestNewReIDTrackerRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultTrackerConfig()
	cfg.GatingDistance = 0
	if _, err := NewReIDTracker(cfg, nil, nil); err == nil {
		t.Error("Expected error for zero gating distance")
	}
}

func TestMatchObjectsIdempotence(t *testing.T) {
	frame := uniformFrame(640, 480, color.RGBA{R: 30, G: 160, B: 90, A: 255})
	tracker := DefaultReIDTracker()
	detections := []Detection{detectionAt(100, 100), detectionAt(300, 300)}

	first := mustMatch(t, tracker, frame, detections)
	second := mustMatch(t, tracker, frame, detections)
	if diff := cmp.Diff(resultIDs(first), resultIDs(second)); diff != "" {
		t.Errorf("Same detections should keep ids (-first +second):\n%s", diff)
	}
	for i := range second {
		if first[i].Source != SourceCreated || second[i].Source != SourceMatched {
			t.Errorf("Detection %d: expected created then matched, got %s then %s", i, first[i].Source, second[i].Source)
		}
	}
}
