package editor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util/log"
)

// GalleryItem is one reviewable crop preview.
type GalleryItem struct {
	StorageKey string `json:"storage_key"`
	SectionID  string `json:"section_id"`
	URL        string `json:"url"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Order      int    `json:"order"`
}

// Synchronizer reconciles returned crop assets against the expected
// section set and resolves signed preview URLs. The section list is the
// ground truth for count, order, and ids; assets are only loosely keyed
// to it.
type Synchronizer struct {
	signer      collab.AssetSigner
	cache       *SignedURLCache
	ttl         time.Duration
	signTimeout time.Duration
}

// NewSynchronizer creates a gallery synchronizer. Zero ttl and timeout
// fall back to DefaultSignedURLTTL and 10s.
func NewSynchronizer(signer collab.AssetSigner, cache *SignedURLCache, ttl, signTimeout time.Duration) *Synchronizer {
	if cache == nil {
		cache = NewSignedURLCache()
	}
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	if signTimeout <= 0 {
		signTimeout = 10 * time.Second
	}
	return &Synchronizer{signer: signer, cache: cache, ttl: ttl, signTimeout: signTimeout}
}

// BuildGallery filters, orders, truncates, and signs the asset list.
// Assets whose sectionId matches no known section are dropped unless
// nothing matches at all, in which case the whole list is accepted in
// order (the upstream occasionally loses the keying). The output never
// exceeds the section count and missing slots are never fabricated.
// Signing runs in parallel; a per-asset failure is logged and skipped
// without failing the rest.
func (g *Synchronizer) BuildGallery(ctx context.Context, assets []collab.CropAsset, sections []collab.Section) ([]GalleryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(sections))
	for _, section := range sections {
		known[section.ID] = true
	}

	matched := make([]collab.CropAsset, 0, len(assets))
	for _, asset := range assets {
		if known[asset.Meta.SectionID] {
			matched = append(matched, asset)
		}
	}
	if len(matched) == 0 {
		// Order-based fallback: the generator sometimes returns assets
		// without usable section keys.
		matched = append(matched, assets...)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Order < matched[j].Order
	})

	if len(matched) > len(sections) {
		matched = matched[:len(sections)]
	}

	urls := make([]string, len(matched))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxGallerySigners)

	for i, asset := range matched {
		group.Go(func() error {
			url, err := g.resolveURL(groupCtx, asset)
			if err != nil {
				// Skip this asset; the rest of the gallery still builds.
				log.Printf("Gallery: failed to sign %s: %v", storageKey(asset), err)
				return nil
			}
			// Positional marker so two assets never collapse into one
			// gallery slot after dedup.
			urls[i] = fmt.Sprintf("%s#slot=%d", url, i)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(matched))
	items := make([]GalleryItem, 0, len(matched))
	for i, asset := range matched {
		if urls[i] == "" || seen[urls[i]] {
			continue
		}
		seen[urls[i]] = true
		items = append(items, GalleryItem{
			StorageKey: storageKey(asset),
			SectionID:  asset.Meta.SectionID,
			URL:        urls[i],
			Width:      asset.Meta.Width,
			Height:     asset.Meta.Height,
			Order:      asset.Order,
		})
	}
	return items, nil
}

// resolveURL returns a signed URL for the asset, from cache when the
// previous signature has not expired.
func (g *Synchronizer) resolveURL(ctx context.Context, asset collab.CropAsset) (string, error) {
	key := storageKey(asset)
	if key == "" {
		return "", fmt.Errorf("asset has no storage key")
	}

	if url, ok := g.cache.Get(key); ok {
		return url, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.signTimeout)
	defer cancel()

	signed, err := g.signer.SignURL(ctx, key, g.ttl)
	if err != nil {
		return "", err
	}

	g.cache.Put(key, signed.URL, signed.Expiry())
	return signed.URL, nil
}

func storageKey(asset collab.CropAsset) string {
	if asset.StorageKey != "" {
		return asset.StorageKey
	}
	return asset.Meta.Key
}
