package editor

import "time"

// Display minimums. Anything smaller is unusable for boundary editing,
// so the other dimension is recomputed from the enforced one.
const (
	MinDisplayWidth  = 600.0
	MinDisplayHeight = 400.0
)

// Cut-line merge thresholds. Percent-space dedup does not guarantee
// pixel separation at small display heights, so a second pixel-space
// pass runs after conversion.
const (
	PercentMergeEps = 0.5
	MinLineGapPx    = 3.0
)

// ThinPixels is the width/height floor below which a crop is considered
// degenerate, indicating a likely coordinate-unit error upstream.
const ThinPixels = 6

// DefaultSignedURLTTL is the soft expiry for preview URLs.
const DefaultSignedURLTTL = 5 * time.Minute

// maxGallerySigners caps concurrent signing requests per gallery build.
const maxGallerySigners = 4
