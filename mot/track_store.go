package mot

import (
	"github.com/pkg/errors"
)

// TrackStore owns every known identity. Ids start at 1, grow monotonically and are never reused (even after eviction).
// Iteration helpers return tracks in ascending id order, which is creation order.
type TrackStore struct {
	tracks map[int64]*Track
	// ids in ascending order
	order          []int64
	nextID         int64
	maxDisappeared int
	maxTrackLen    int
	dt             float64
}

// NewTrackStore creates empty store.
// Track becomes inactive once its disappeared counter exceeds maxDisappeared.
func NewTrackStore(maxDisappeared int, maxTrackLen int, dt float64) *TrackStore {
	return &TrackStore{
		tracks:         make(map[int64]*Track),
		order:          make([]int64, 0),
		nextID:         1,
		maxDisappeared: maxDisappeared,
		maxTrackLen:    maxTrackLen,
		dt:             dt,
	}
}

// Len returns number of stored tracks, both active and inactive
func (store *TrackStore) Len() int {
	return len(store.tracks)
}

// NextID returns id which will be issued to next created track
func (store *TrackStore) NextID() int64 {
	return store.nextID
}

// Get returns track by id
func (store *TrackStore) Get(id int64) (*Track, bool) {
	track, ok := store.tracks[id]
	return track, ok
}

// All returns every track in ascending id order
func (store *TrackStore) All() []*Track {
	out := make([]*Track, 0, len(store.order))
	for _, id := range store.order {
		out = append(out, store.tracks[id])
	}
	return out
}

// Active returns active tracks in ascending id order
func (store *TrackStore) Active() []*Track {
	out := make([]*Track, 0, len(store.order))
	for _, id := range store.order {
		if track := store.tracks[id]; track.active {
			out = append(out, track)
		}
	}
	return out
}

// Inactive returns inactive tracks in ascending id order
func (store *TrackStore) Inactive() []*Track {
	out := make([]*Track, 0)
	for _, id := range store.order {
		if track := store.tracks[id]; !track.active {
			out = append(out, track)
		}
	}
	return out
}

// Create registers detection as brand-new active track and returns it
func (store *TrackStore) Create(detection Detection, feature Feature, frame int) *Track {
	id := store.nextID
	store.nextID++
	track := newTrack(id, detection, feature, frame, store.dt, store.maxTrackLen)
	store.tracks[id] = track
	// ids are issued in increasing order so appending keeps order sorted
	store.order = append(store.order, id)
	return track
}

// Update binds detection to existing track: position and appearance are overwritten, disappeared counter is reset
func (store *TrackStore) Update(id int64, detection Detection, feature Feature, frame int) error {
	track, ok := store.tracks[id]
	if !ok {
		return errors.Errorf("no track with id %d", id)
	}
	err := track.update(detection, feature, frame)
	if err != nil {
		return errors.Wrapf(err, "Can't update track with id %d", id)
	}
	return nil
}

// Reactivate brings inactive track back with detection's position and appearance
func (store *TrackStore) Reactivate(id int64, detection Detection, feature Feature, frame int) error {
	track, ok := store.tracks[id]
	if !ok {
		return errors.Errorf("no track with id %d", id)
	}
	if track.active {
		return errors.Errorf("track with id %d is already active", id)
	}
	track.reactivate(detection, feature, frame)
	return nil
}

// Deactivate flips track to inactive state
func (store *TrackStore) Deactivate(id int64) error {
	track, ok := store.tracks[id]
	if !ok {
		return errors.Errorf("no track with id %d", id)
	}
	track.deactivate()
	return nil
}

// Predict executes Kalman prediction step for every active track
func (store *TrackStore) Predict() {
	for _, id := range store.order {
		if track := store.tracks[id]; track.active {
			track.predictNextPosition()
		}
	}
}

// Age increments disappeared counter of every active track not present in claimed.
// Returns ids of tracks which became inactive, in ascending order.
func (store *TrackStore) Age(claimed map[int64]struct{}) []int64 {
	deactivated := make([]int64, 0)
	for _, id := range store.order {
		track := store.tracks[id]
		if !track.active {
			continue
		}
		if _, ok := claimed[id]; ok {
			continue
		}
		if track.incDisappeared(store.maxDisappeared) {
			deactivated = append(deactivated, id)
		}
	}
	return deactivated
}

// Evict removes inactive tracks not seen for more than maxInactiveFrames frames.
// Non-positive maxInactiveFrames disables eviction. Returns ids of removed tracks in ascending order.
func (store *TrackStore) Evict(currentFrame int, maxInactiveFrames int) []int64 {
	evicted := make([]int64, 0)
	if maxInactiveFrames <= 0 {
		return evicted
	}
	kept := store.order[:0]
	for _, id := range store.order {
		track := store.tracks[id]
		if !track.active && currentFrame-track.lastSeenFrame > maxInactiveFrames {
			delete(store.tracks, id)
			evicted = append(evicted, id)
			continue
		}
		kept = append(kept, id)
	}
	store.order = kept
	return evicted
}

// IDs returns every stored id in ascending order
func (store *TrackStore) IDs() []int64 {
	ids := make([]int64, len(store.order))
	copy(ids, store.order)
	return ids
}
