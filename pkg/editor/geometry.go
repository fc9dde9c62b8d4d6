package editor

import "fmt"

// DisplayGeometry describes how the natural image maps onto the screen.
// Natural dimensions are immutable after load; display dimensions are
// recomputed on every container change. The natural aspect ratio is
// always preserved.
type DisplayGeometry struct {
	NaturalWidth  float64 `json:"natural_width"`
	NaturalHeight float64 `json:"natural_height"`
	DisplayWidth  float64 `json:"display_width"`
	DisplayHeight float64 `json:"display_height"`
	ScaleFactor   float64 `json:"scale_factor"`
}

// ComputeDisplayGeometry derives on-screen dimensions from the natural
// image size and container constraints. The width fills the container;
// if the resulting height exceeds maxHeight the fit is recomputed from
// the height instead. Minimums are enforced by re-deriving the other
// dimension from the enforced one, so the aspect ratio survives every
// branch. A non-positive maxHeight means no height budget.
func ComputeDisplayGeometry(naturalWidth, naturalHeight, containerWidth, maxHeight float64) (DisplayGeometry, error) {
	if naturalWidth <= 0 || naturalHeight <= 0 {
		return DisplayGeometry{}, fmt.Errorf("%w: %gx%g", ErrGeometryUnavailable, naturalWidth, naturalHeight)
	}

	ratio := naturalWidth / naturalHeight

	displayWidth := containerWidth
	displayHeight := displayWidth / ratio

	if maxHeight > 0 && displayHeight > maxHeight {
		displayHeight = maxHeight
		displayWidth = displayHeight * ratio
	}

	if displayWidth < MinDisplayWidth {
		displayWidth = MinDisplayWidth
		displayHeight = displayWidth / ratio
	}
	if displayHeight < MinDisplayHeight {
		displayHeight = MinDisplayHeight
		displayWidth = displayHeight * ratio
	}

	return DisplayGeometry{
		NaturalWidth:  naturalWidth,
		NaturalHeight: naturalHeight,
		DisplayWidth:  displayWidth,
		DisplayHeight: displayHeight,
		ScaleFactor:   displayWidth / naturalWidth,
	}, nil
}
