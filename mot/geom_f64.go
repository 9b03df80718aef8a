package mot

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned box in pixel coordinates.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// NewRectFromCorners creates rectangle from top-left (x1, y1) and bottom-right (x2, y2) corners
func NewRectFromCorners(x1, y1, x2, y2 float64) Rectangle {
	return Rectangle{
		X:      x1,
		Y:      y1,
		Width:  x2 - x1,
		Height: y2 - y1,
	}
}

// NewRectFrom converts integer pixel rectangle (e.g. detector output after NMS)
func NewRectFrom(rect image.Rectangle) Rectangle {
	return Rectangle{
		X:      float64(rect.Min.X),
		Y:      float64(rect.Min.Y),
		Width:  float64(rect.Dx()),
		Height: float64(rect.Dy()),
	}
}

// Corners returns (x1, y1, x2, y2)
func (r Rectangle) Corners() (float64, float64, float64, float64) {
	return r.X, r.Y, r.X + r.Width, r.Y + r.Height
}

// Center returns ((x1+x2)/2, (y1+y2)/2)
func (r Rectangle) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// ImageRect truncates corners to integer pixel coordinates.
// Unlike image.Rect it does not swap inverted corners, so inverted box stays empty.
func (r Rectangle) ImageRect() image.Rectangle {
	x1, y1, x2, y2 := r.Corners()
	return image.Rectangle{
		Min: image.Point{X: int(x1), Y: int(y1)},
		Max: image.Point{X: int(x2), Y: int(y2)},
	}
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Sqrt(math.Pow(p1.X-p2.X, 2) + math.Pow(p1.Y-p2.Y, 2))
}
