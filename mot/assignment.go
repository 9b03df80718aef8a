package mot

import (
	"math"

	"github.com/arthurkushman/go-hungarian"
	"gonum.org/v1/gonum/mat"
)

// MatchingAlgorithm is for algorithm type for matching detections to tracks
type MatchingAlgorithm uint16

const (
	// MatchingAlgorithmGreedy lets detections pick tracks one by one in input order. First detection has first choice
	MatchingAlgorithmGreedy MatchingAlgorithm = iota
	// MatchingAlgorithmHungarian uses the Hungarian algorithm (Kuhn-Munkres) for optimal assignment over the same gated scores.
	// Tie-breaks no longer depend on detection order
	MatchingAlgorithmHungarian
)

func (algorithm MatchingAlgorithm) String() string {
	switch algorithm {
	case MatchingAlgorithmHungarian:
		return "hungarian"
	default:
		return "greedy"
	}
}

// assignmentEngine matches current frame detections to active tracks using spatial distance plus appearance penalty
type assignmentEngine struct {
	// Detection-track pair is considered only if distance between centers is strictly less than this value
	gatingDistance float64
	// Weight of (1 - correlation) term in combined score
	appearanceWeight float64
	// Compare against Kalman-predicted centers instead of last known centers
	usePrediction bool
	algorithm     MatchingAlgorithm
}

// distanceMatrix returns Euclidean distances between centers: rows = detections, columns = tracks
func (engine *assignmentEngine) distanceMatrix(detections []Detection, tracks []*Track) *mat.Dense {
	distances := mat.NewDense(len(detections), len(tracks), nil)
	for i, detection := range detections {
		for j, track := range tracks {
			trackCenter := track.currentCenter
			if engine.usePrediction {
				trackCenter = track.predictedNextPosition
			}
			distances.Set(i, j, euclideanDistance(detection.Center, trackCenter))
		}
	}
	return distances
}

// appearancePenalty returns (1 - correlation). Undefined correlation gives 1
func appearancePenalty(a, b Feature) float64 {
	corr, ok := Correlation(a, b)
	if !ok {
		return 1.0
	}
	return 1.0 - corr
}

// scoreMatrix returns combined scores: distance + (1 - correlation) * weight. Lower is better
func (engine *assignmentEngine) scoreMatrix(distances *mat.Dense, features []Feature, tracks []*Track) *mat.Dense {
	rows, cols := distances.Dims()
	scores := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if distances.At(i, j) >= engine.gatingDistance {
				// Never selected, skip correlation
				scores.Set(i, j, math.Inf(1))
				continue
			}
			scores.Set(i, j, distances.At(i, j)+appearancePenalty(features[i], tracks[j].feature)*engine.appearanceWeight)
		}
	}
	return scores
}

// assign returns for every detection the index of matched track in tracks or -1
func (engine *assignmentEngine) assign(detections []Detection, features []Feature, tracks []*Track) []int {
	matches := make([]int, len(detections))
	for i := range matches {
		matches[i] = -1
	}
	if len(detections) == 0 || len(tracks) == 0 {
		return matches
	}
	distances := engine.distanceMatrix(detections, tracks)
	scores := engine.scoreMatrix(distances, features, tracks)
	switch engine.algorithm {
	case MatchingAlgorithmHungarian:
		engine.performHungarianMatching(distances, scores, matches)
	default:
		engine.performGreedyMatching(distances, scores, matches)
	}
	return matches
}

// performGreedyMatching processes detections in input order. Each detection re-scans every unclaimed track
// and claims the one with lowest combined score. Claimed track can't be taken by later detections.
func (engine *assignmentEngine) performGreedyMatching(distances, scores *mat.Dense, matches []int) {
	rows, cols := scores.Dims()
	claimed := make(map[int]struct{})
	for i := 0; i < rows; i++ {
		bestIdx := -1
		bestScore := math.Inf(1)
		for j := 0; j < cols; j++ {
			if _, found := claimed[j]; found {
				continue
			}
			score := scores.At(i, j)
			if score < bestScore && distances.At(i, j) < engine.gatingDistance {
				bestScore = score
				bestIdx = j
			}
		}
		if bestIdx != -1 {
			matches[i] = bestIdx
			claimed[bestIdx] = struct{}{}
		}
	}
}

// performHungarianMatching solves assignment maximizing total profit (offset - score) over gated pairs.
// Offset exceeds any possible total score, so a matching with more pairs always wins and lowest total score breaks ties.
// Matrix is padded to square with zeros (forbidden pairs get zero profit too) and assignments to forbidden pairs are dropped.
func (engine *assignmentEngine) performHungarianMatching(distances, scores *mat.Dense, matches []int) {
	rows, cols := scores.Dims()
	maxScore := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if distances.At(i, j) < engine.gatingDistance {
				maxScore = math.Max(maxScore, scores.At(i, j))
			}
		}
	}
	paddedSize := maxInt(rows, cols)
	offset := maxScore*float64(paddedSize) + 1.0
	profits := make([][]float64, paddedSize)
	for i := 0; i < paddedSize; i++ {
		profits[i] = make([]float64, paddedSize)
	}
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if distances.At(i, j) < engine.gatingDistance {
				profits[i][j] = offset - scores.At(i, j)
			}
		}
	}
	assignmentsMap := hungarian.SolveMax(profits)
	for detIdx, rowMap := range assignmentsMap {
		// Inner map contains single entry {trackIndex: profit}
		for trackIdx := range rowMap {
			if detIdx < rows && trackIdx < cols && distances.At(detIdx, trackIdx) < engine.gatingDistance {
				matches[detIdx] = trackIdx
			}
			break
		}
	}
}
