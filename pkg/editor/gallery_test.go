package editor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halcyonforge/cutplane/pkg/collab"
)

// fakeSigner signs keys deterministically and can fail selected keys.
type fakeSigner struct {
	mu       sync.Mutex
	calls    int
	failKeys map[string]bool
	ttlSeen  time.Duration
}

func (f *fakeSigner) SignURL(ctx context.Context, key string, ttl time.Duration) (collab.SignedURL, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ttlSeen = ttl
	if f.failKeys[key] {
		return collab.SignedURL{}, fmt.Errorf("signer rejected %s", key)
	}
	return collab.SignedURL{
		URL: "https://cdn.example/" + key + "?sig=ok",
		Exp: time.Now().Add(ttl).UnixMilli(),
	}, nil
}

func (f *fakeSigner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func galleryAssets(sectionIDs ...string) []collab.CropAsset {
	assets := make([]collab.CropAsset, len(sectionIDs))
	for i, id := range sectionIDs {
		assets[i] = collab.CropAsset{
			StorageKey: fmt.Sprintf("crops/%d.png", i),
			Meta:       collab.AssetMeta{SectionID: id, Width: 800, Height: 400},
			Order:      i,
		}
	}
	return assets
}

func gallerySections(ids ...string) []collab.Section {
	sections := make([]collab.Section, len(ids))
	for i, id := range ids {
		sections[i] = collab.Section{ID: id, Index: i}
	}
	return sections
}

func TestBuildGallery(t *testing.T) {
	t.Run("MatchedAndSigned", func(t *testing.T) {
		signer := &fakeSigner{}
		g := NewSynchronizer(signer, nil, time.Minute, time.Second)

		items, err := g.BuildGallery(context.Background(),
			galleryAssets("s1", "s2"), gallerySections("s1", "s2"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Contains(t, items[0].URL, "#slot=0")
		assert.Contains(t, items[1].URL, "#slot=1")
		assert.Equal(t, time.Minute, signer.ttlSeen)
	})

	t.Run("UnknownSectionIDsFiltered", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		assets := galleryAssets("s1", "ghost", "s2")
		items, err := g.BuildGallery(context.Background(), assets, gallerySections("s1", "s2"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		for _, item := range items {
			assert.NotEqual(t, "ghost", item.SectionID)
		}
	})

	t.Run("OrderFallbackWhenNothingMatches", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		assets := []collab.CropAsset{
			{StorageKey: "crops/b.png", Meta: collab.AssetMeta{SectionID: "x"}, Order: 2},
			{StorageKey: "crops/a.png", Meta: collab.AssetMeta{SectionID: "y"}, Order: 1},
			{StorageKey: "crops/c.png", Meta: collab.AssetMeta{SectionID: "z"}, Order: 3},
		}
		items, err := g.BuildGallery(context.Background(), assets, gallerySections("s1", "s2"))
		require.NoError(t, err)

		// All accepted, sorted by order, truncated to N=2.
		require.Len(t, items, 2)
		assert.Equal(t, "crops/a.png", items[0].StorageKey)
		assert.Equal(t, "crops/b.png", items[1].StorageKey)
	})

	t.Run("NeverMoreItemsThanSections", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		assets := galleryAssets("s1", "s1", "s1", "s1", "s1")
		items, err := g.BuildGallery(context.Background(), assets, gallerySections("s1", "s2"))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(items), 2)
	})

	t.Run("MissingAssetsNeverPadded", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		items, err := g.BuildGallery(context.Background(),
			galleryAssets("s1"), gallerySections("s1", "s2", "s3"))
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})

	t.Run("SigningFailureSkipsAssetOnly", func(t *testing.T) {
		signer := &fakeSigner{failKeys: map[string]bool{"crops/0.png": true}}
		g := NewSynchronizer(signer, nil, 0, 0)

		items, err := g.BuildGallery(context.Background(),
			galleryAssets("s1", "s2"), gallerySections("s1", "s2"))
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "crops/1.png", items[0].StorageKey)
	})

	t.Run("PositionalMarkerPreventsCollapse", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		// Two assets sharing one storage key resolve to the same signed
		// URL; the slot marker keeps both gallery entries.
		assets := []collab.CropAsset{
			{StorageKey: "crops/same.png", Meta: collab.AssetMeta{SectionID: "s1"}, Order: 0},
			{StorageKey: "crops/same.png", Meta: collab.AssetMeta{SectionID: "s2"}, Order: 1},
		}
		items, err := g.BuildGallery(context.Background(), assets, gallerySections("s1", "s2"))
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.NotEqual(t, items[0].URL, items[1].URL)
		assert.True(t, strings.HasSuffix(items[0].URL, "#slot=0"))
		assert.True(t, strings.HasSuffix(items[1].URL, "#slot=1"))
	})

	t.Run("CacheAvoidsResigning", func(t *testing.T) {
		signer := &fakeSigner{}
		cache := NewSignedURLCache()
		g := NewSynchronizer(signer, cache, time.Minute, time.Second)

		assets := galleryAssets("s1")
		sections := gallerySections("s1")

		_, err := g.BuildGallery(context.Background(), assets, sections)
		require.NoError(t, err)
		_, err = g.BuildGallery(context.Background(), assets, sections)
		require.NoError(t, err)

		assert.Equal(t, 1, signer.callCount())
	})

	t.Run("CancelledContext", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := g.BuildGallery(ctx, galleryAssets("s1"), gallerySections("s1"))
		assert.Error(t, err)
	})

	t.Run("EmptyAssets", func(t *testing.T) {
		g := NewSynchronizer(&fakeSigner{}, nil, 0, 0)
		items, err := g.BuildGallery(context.Background(), nil, gallerySections("s1"))
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}
