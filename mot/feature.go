package mot

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultHistogramBins is number of bins per color channel (8*8*8 = 512 bins total)
	DefaultHistogramBins = 8
)

// Feature is appearance descriptor of an image region
type Feature []float64

// Clone returns independent copy of feature
func (feature Feature) Clone() Feature {
	if feature == nil {
		return nil
	}
	out := make(Feature, len(feature))
	copy(out, feature)
	return out
}

// FeatureExtractor derives fixed-size appearance descriptor from region of a frame.
// Implementations must be safe for concurrent use on a read-only frame.
type FeatureExtractor interface {
	// Size returns descriptor length
	Size() int
	// Extract returns descriptor for bbox region of frame. Empty regions give all zeros.
	Extract(frame image.Image, bbox Rectangle) Feature
}

// HistogramExtractor computes joint color histogram over three channels of region.
// Counts are not normalized.
type HistogramExtractor struct {
	bins  int
	shift uint
}

// NewHistogramExtractor creates extractor with given bins per channel. Bins must be power of two not greater than 256.
func NewHistogramExtractor(bins int) *HistogramExtractor {
	if bins <= 0 || bins > 256 || bins&(bins-1) != 0 {
		bins = DefaultHistogramBins
	}
	shift := uint(0)
	for (256 >> shift) > bins {
		shift++
	}
	return &HistogramExtractor{
		bins:  bins,
		shift: shift,
	}
}

// DefaultHistogramExtractor creates 8x8x8 histogram extractor
func DefaultHistogramExtractor() *HistogramExtractor {
	return NewHistogramExtractor(DefaultHistogramBins)
}

// Size returns bins^3
func (extractor *HistogramExtractor) Size() int {
	return extractor.bins * extractor.bins * extractor.bins
}

// Extract computes histogram. Bbox is truncated to integer pixels and clipped to frame bounds.
// Bin index follows BGR channel order: (b*bins + g)*bins + r.
func (extractor *HistogramExtractor) Extract(frame image.Image, bbox Rectangle) Feature {
	hist := make(Feature, extractor.Size())
	if frame == nil {
		return hist
	}
	bounds := frame.Bounds()
	roi := bbox.ImageRect()
	roi = image.Rectangle{
		Min: image.Point{X: clamp(roi.Min.X, bounds.Min.X, bounds.Max.X), Y: clamp(roi.Min.Y, bounds.Min.Y, bounds.Max.Y)},
		Max: image.Point{X: clamp(roi.Max.X, bounds.Min.X, bounds.Max.X), Y: clamp(roi.Max.Y, bounds.Min.Y, bounds.Max.Y)},
	}
	if roi.Empty() {
		return hist
	}
	bins := extractor.bins
	if rgba, ok := frame.(*image.RGBA); ok {
		for y := roi.Min.Y; y < roi.Max.Y; y++ {
			offset := rgba.PixOffset(roi.Min.X, y)
			for x := roi.Min.X; x < roi.Max.X; x++ {
				rBin := int(rgba.Pix[offset] >> extractor.shift)
				gBin := int(rgba.Pix[offset+1] >> extractor.shift)
				bBin := int(rgba.Pix[offset+2] >> extractor.shift)
				hist[(bBin*bins+gBin)*bins+rBin]++
				offset += 4
			}
		}
		return hist
	}
	for y := roi.Min.Y; y < roi.Max.Y; y++ {
		for x := roi.Min.X; x < roi.Max.X; x++ {
			r, g, b, _ := frame.At(x, y).RGBA()
			// RGBA() gives 16-bit channels
			rBin := int((r >> 8) >> extractor.shift)
			gBin := int((g >> 8) >> extractor.shift)
			bBin := int((b >> 8) >> extractor.shift)
			hist[(bBin*bins+gBin)*bins+rBin]++
		}
	}
	return hist
}

// Correlation returns Pearson correlation coefficient between two features.
// Second value is false when coefficient is undefined (constant vectors, length mismatch or empty input).
func Correlation(a, b Feature) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}
	corr := stat.Correlation(a, b, nil)
	if math.IsNaN(corr) || math.IsInf(corr, 0) {
		return 0, false
	}
	return corr, true
}
