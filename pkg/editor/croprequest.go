package editor

import (
	"math"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util"
)

// BuildCropRequests converts sections into normalized percent crop
// requests, preserving section order as the request index. Detectors
// sometimes deliver fractional [0,1] bounds instead of percent; when
// every field of a rect is at most 1 the rect is treated as fractional
// and scaled by 100. The origin of that ambiguity is undocumented
// upstream, so the heuristic is applied per section and nothing deeper
// is inferred from it.
//
// Missing or NaN fields default to 0 per field rather than aborting the
// batch: a zero-area crop for one section beats failing all of them.
func BuildCropRequests(sections []collab.Section) []collab.CropRequest {
	requests := make([]collab.CropRequest, 0, len(sections))
	for i, section := range sections {
		requests = append(requests, collab.CropRequest{
			ID:     section.ID,
			Index:  i,
			Unit:   "percent",
			Bounds: normalizeRect(section.Bounds),
		})
	}
	return requests
}

// normalizeRect applies the fractional-vs-percent correction and clamps
// every field to [0,100].
func normalizeRect(r collab.Rect) collab.Rect {
	x := util.Finite(r.X, 0)
	y := util.Finite(r.Y, 0)
	w := util.Finite(r.Width, 0)
	h := util.Finite(r.Height, 0)

	maxVal := math.Max(math.Max(x, y), math.Max(w, h))
	if maxVal <= 1 {
		x, y, w, h = x*100, y*100, w*100, h*100
	}

	return collab.Rect{
		X:      util.Clamp(x, 0, 100),
		Y:      util.Clamp(y, 0, 100),
		Width:  util.Clamp(w, 0, 100),
		Height: util.Clamp(h, 0, 100),
	}
}
