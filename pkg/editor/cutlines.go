package editor

import (
	"sort"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util"
)

// DeriveCutLines converts section boundaries into horizontal pixel cut
// lines at the given display height. Every section contributes its top
// and bottom edge in percent space; boundaries are deduplicated twice,
// first within PercentMergeEps percentage points and again in pixel
// space with a MinLineGapPx gap, because percent-space dedup does not
// guarantee pixel separation at small display heights. The image edges
// (0 and 100 percent) are not cut lines and are excluded.
func DeriveCutLines(sections []collab.Section, displayHeight float64) []float64 {
	if displayHeight <= 0 || len(sections) == 0 {
		return nil
	}

	boundaries := make([]float64, 0, len(sections)*2)
	for _, s := range sections {
		top := util.Clamp(util.Finite(s.Bounds.Y, 0), 0, 100)
		bottom := util.Clamp(top+util.Finite(s.Bounds.Height, 0), 0, 100)
		for _, p := range [2]float64{top, bottom} {
			// Only the exact edges are excluded; a boundary just inside
			// them is still a real cut. Dropping edges before the merge
			// keeps them from absorbing such neighbors.
			if p <= 0 || p >= 100 {
				continue
			}
			boundaries = append(boundaries, p)
		}
	}
	sort.Float64s(boundaries)

	merged := collapse(boundaries, PercentMergeEps)

	pixels := make([]float64, 0, len(merged))
	for _, p := range merged {
		pixels = append(pixels, p/100*displayHeight)
	}

	return collapse(pixels, MinLineGapPx)
}

// RescaleCutLines proportionally remaps cut lines from one display
// height to another. It must run before any fresh derivation from
// section bounds so manually adjusted lines survive geometry changes.
// Callers skip the rescale when oldHeight is unset (first measurement)
// and derive instead.
func RescaleCutLines(lines []float64, oldHeight, newHeight float64) []float64 {
	if oldHeight <= 0 || newHeight <= 0 {
		return append([]float64(nil), lines...)
	}

	factor := newHeight / oldHeight
	rescaled := make([]float64, len(lines))
	for i, line := range lines {
		rescaled[i] = line * factor
	}
	return rescaled
}

// NormalizeCutLines enforces the commit-point invariants: every line
// clamped to [0, displayHeight], the set sorted ascending with pairwise
// gaps of at least MinLineGapPx. Dedup is deliberately skipped during
// an active drag; this runs at geometry changes and export.
func NormalizeCutLines(lines []float64, displayHeight float64) []float64 {
	if len(lines) == 0 {
		return nil
	}

	clamped := make([]float64, len(lines))
	for i, line := range lines {
		clamped[i] = util.Clamp(util.Finite(line, 0), 0, displayHeight)
	}
	sort.Float64s(clamped)

	return collapse(clamped, MinLineGapPx)
}

// collapse drops values closer than gap to the previously kept one.
// Input must be sorted ascending.
func collapse(sorted []float64, gap float64) []float64 {
	if len(sorted) == 0 {
		return nil
	}

	kept := []float64{sorted[0]}
	for _, v := range sorted[1:] {
		if v-kept[len(kept)-1] >= gap {
			kept = append(kept, v)
		}
	}
	return kept
}
