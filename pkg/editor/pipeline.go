package editor

import (
	"context"
	"fmt"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util"
	"github.com/halcyonforge/cutplane/util/log"
)

// Pipeline drives confirm-time crop generation: build requests, call
// the crop collaborator, run the quality guard with its single forced
// regeneration, and assemble the reviewable gallery.
type Pipeline struct {
	crops   collab.CropGenerator
	splits  collab.SplitReader
	gallery *Synchronizer

	regenCount *util.SafeCounter
}

// GenerateResult is the outcome of one crop generation pass. Warning is
// non-empty when the batch stayed degenerate after the corrective
// regeneration; the assets are still returned for review.
type GenerateResult struct {
	Assets      []collab.CropAsset `json:"assets"`
	Items       []GalleryItem      `json:"items"`
	Regenerated bool               `json:"regenerated"`
	Warning     string             `json:"warning,omitempty"`
}

// NewPipeline creates a pipeline over the given collaborators.
func NewPipeline(crops collab.CropGenerator, splits collab.SplitReader, gallery *Synchronizer) *Pipeline {
	return &Pipeline{
		crops:      crops,
		splits:     splits,
		gallery:    gallery,
		regenCount: util.NewSafeCounter(),
	}
}

// RegenerationCount reports how many corrective passes this pipeline
// has issued since startup.
func (p *Pipeline) RegenerationCount() int {
	return p.regenCount.Value()
}

// ResolveSplit loads the split summary, falling back to the
// recent-splits listing when only the owning upload id is known.
func (p *Pipeline) ResolveSplit(ctx context.Context, splitID, uploadID string) (collab.Split, error) {
	if splitID != "" {
		return p.splits.GetSplit(ctx, splitID)
	}
	if uploadID == "" {
		return collab.Split{}, fmt.Errorf("neither split id nor upload id known")
	}
	log.Debugf("Pipeline: split id unknown, falling back to recent splits for upload %s", uploadID)
	return p.splits.FindSplitForUpload(ctx, uploadID)
}

// GenerateCrops runs the full confirm flow for one section set. A batch
// that comes back systematically thin gets exactly one silent forced
// regeneration (bypassing the generator's result cache); if the retry
// also fails the guard, the result carries a warning instead of looping.
// A failed retry call keeps the first batch: partial success is
// preserved, never discarded.
func (p *Pipeline) GenerateCrops(ctx context.Context, splitID string, sections []collab.Section) (GenerateResult, error) {
	if len(sections) == 0 {
		return GenerateResult{}, ErrNoSections
	}

	requests := BuildCropRequests(sections)
	assets, err := p.crops.GenerateCrops(ctx, splitID, requests, false)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("crop generation failed: %w", err)
	}

	result := GenerateResult{Assets: assets}

	if NeedsRegeneration(assets, len(sections)) {
		p.regenCount.Increment()
		log.Printf("Pipeline: %d/%d crops thin for split %s, forcing one regeneration",
			CountThinAssets(assets), len(sections), splitID)

		// Recompute through the unit heuristic and bypass the cache.
		retryRequests := BuildCropRequests(sections)
		retryAssets, retryErr := p.crops.GenerateCrops(ctx, splitID, retryRequests, true)
		switch {
		case retryErr != nil:
			log.Printf("Pipeline: corrective regeneration failed for split %s: %v", splitID, retryErr)
			result.Warning = ErrDegenerateCrops.Error()
		case NeedsRegeneration(retryAssets, len(sections)):
			// Surfaced, not retried again, to bound cost.
			result.Assets = retryAssets
			result.Regenerated = true
			result.Warning = ErrDegenerateCrops.Error()
		default:
			result.Assets = retryAssets
			result.Regenerated = true
		}
	}

	items, err := p.gallery.BuildGallery(ctx, result.Assets, sections)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("gallery build failed: %w", err)
	}
	result.Items = items
	return result, nil
}
