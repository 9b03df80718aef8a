package main

import (
	"fmt"
	"image"
	"image/color"

	"github.com/LdDl/mot-reid/mot"
	"gocv.io/x/gocv"
)

var boxColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}

// playerLabel returns caption drawn above player's box
func playerLabel(result mot.TrackResult) string {
	return fmt.Sprintf("Player %d", result.ID())
}

// drawResults draws green box and "Player N" caption for every identified detection
func drawResults(frame *gocv.Mat, results []mot.TrackResult) {
	for _, result := range results {
		if !result.Identity.IsAssigned() {
			continue
		}
		rect := result.Detection.BBox.ImageRect()
		gocv.Rectangle(frame, rect, boxColor, 2)
		gocv.PutText(frame, playerLabel(result), image.Pt(rect.Min.X, rect.Min.Y-10), gocv.FontHersheySimplex, 0.5, boxColor, 2)
	}
}
