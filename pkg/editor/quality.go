package editor

import "github.com/halcyonforge/cutplane/pkg/collab"

// CountThinAssets returns how many assets have a width or height below
// ThinPixels. A cluster of thin crops indicates the bounds were sent in
// the wrong unit, not that the design really has sliver sections.
func CountThinAssets(assets []collab.CropAsset) int {
	count := 0
	for _, asset := range assets {
		if asset.Meta.Width < ThinPixels || asset.Meta.Height < ThinPixels {
			count++
		}
	}
	return count
}

// NeedsRegeneration reports whether the batch is systematically
// degenerate: at least half the expected sections (rounded up) came
// back thin. The pipeline acts on this exactly once per batch.
func NeedsRegeneration(assets []collab.CropAsset, sectionCount int) bool {
	if sectionCount <= 0 {
		return false
	}
	threshold := (sectionCount + 1) / 2
	return CountThinAssets(assets) >= threshold
}
