package mot

// reidentificationEngine recovers inactive identities by appearance only
type reidentificationEngine struct {
	// Correlation must be strictly greater than this value
	threshold float64
}

// findCandidate returns inactive track with highest defined correlation strictly above threshold.
// Ties keep the first track in iteration order. Second value is false if nothing qualifies.
func (engine *reidentificationEngine) findCandidate(feature Feature, inactive []*Track) (*Track, bool) {
	var best *Track
	bestSimilarity := 0.0
	for _, track := range inactive {
		similarity, ok := Correlation(feature, track.feature)
		if !ok {
			continue
		}
		if similarity > engine.threshold && similarity > bestSimilarity {
			bestSimilarity = similarity
			best = track
		}
	}
	if best == nil {
		return nil, false
	}
	return best, true
}
