package devcrop

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util/log"
)

// Service is an in-process stand-in for the remote crop collaborators,
// backed by a directory of design images. It implements the generator,
// signer, split-reader, and detector contracts so the editor can run
// end to end without the production services.
type Service struct {
	baseURL   string
	processor *Processor

	mu      sync.Mutex
	splits  map[string]collab.Split
	images  map[string]string // split id -> source image path
	assets  map[string][]byte // storage key -> encoded crop
	batches map[string][]collab.CropAsset
	recent  []string // split ids, newest first
}

// NewService creates a service that signs asset URLs under baseURL.
func NewService(baseURL string) *Service {
	return &Service{
		baseURL:   strings.TrimRight(baseURL, "/"),
		processor: NewProcessor(),
		splits:    make(map[string]collab.Split),
		images:    make(map[string]string),
		assets:    make(map[string][]byte),
		batches:   make(map[string][]collab.CropAsset),
	}
}

// LoadDirectory registers every image in dir as an upload with a
// detected split. Files that fail to decode are skipped with a log line.
func (s *Service) LoadDirectory(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("reading image directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if _, err := s.RegisterUpload(ctx, path); err != nil {
			log.Printf("Skipping %s: %v", path, err)
			continue
		}
		loaded++
	}
	return loaded, nil
}

// RegisterUpload decodes one image, runs section detection, and stores
// the resulting split.
func (s *Service) RegisterUpload(ctx context.Context, path string) (collab.Split, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return collab.Split{}, fmt.Errorf("reading image: %w", err)
	}

	img, _, err := s.processor.DecodeImage(ctx, data, "")
	if err != nil {
		return collab.Split{}, err
	}

	sections, err := s.processor.SuggestSections(ctx, img)
	if err != nil {
		return collab.Split{}, err
	}
	for i := range sections {
		sections[i].ID = uuid.NewString()
	}

	split := collab.Split{
		ID:       uuid.NewString(),
		UploadID: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Sections: sections,
	}

	s.mu.Lock()
	s.splits[split.ID] = split
	s.images[split.ID] = path
	s.recent = append([]string{split.ID}, s.recent...)
	s.mu.Unlock()

	return split, nil
}

// GenerateCrops cuts one asset per request out of the split's source
// image. Results are cached per split; force discards the cached batch
// the way the production generator's force flag bypasses its cache.
func (s *Service) GenerateCrops(ctx context.Context, splitID string, sections []collab.CropRequest, force bool) ([]collab.CropAsset, error) {
	s.mu.Lock()
	path, ok := s.images[splitID]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("unknown split %s", splitID)
	}
	if cached, hit := s.batches[splitID]; hit && !force {
		s.mu.Unlock()
		return append([]collab.CropAsset(nil), cached...), nil
	}
	s.mu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source image: %w", err)
	}
	img, _, err := s.processor.DecodeImage(ctx, data, "")
	if err != nil {
		return nil, err
	}

	assets := make([]collab.CropAsset, 0, len(sections))
	for i, req := range sections {
		crop, err := s.processor.CropPercent(ctx, img, req.Bounds)
		if err != nil {
			return nil, fmt.Errorf("cropping section %s: %w", req.ID, err)
		}
		encoded, err := s.processor.EncodeImage(ctx, crop, "image/png")
		if err != nil {
			return nil, err
		}

		key := fmt.Sprintf("crops/%s/%d.png", splitID, i)
		s.mu.Lock()
		s.assets[key] = encoded
		s.mu.Unlock()

		assets = append(assets, collab.CropAsset{
			StorageKey: key,
			Meta: collab.AssetMeta{
				SectionID: req.ID,
				Width:     crop.Bounds().Dx(),
				Height:    crop.Bounds().Dy(),
				Key:       key,
			},
			Order: i,
		})
	}

	s.mu.Lock()
	s.batches[splitID] = append([]collab.CropAsset(nil), assets...)
	s.mu.Unlock()
	return assets, nil
}

// SignURL issues a self-served URL for a stored asset. There is no
// cryptographic signature locally; the expiry contract is preserved so
// the editor's cache behaves as it does in production.
func (s *Service) SignURL(ctx context.Context, key string, ttl time.Duration) (collab.SignedURL, error) {
	if err := checkContext(ctx); err != nil {
		return collab.SignedURL{}, err
	}

	s.mu.Lock()
	_, ok := s.assets[key]
	s.mu.Unlock()
	if !ok {
		return collab.SignedURL{}, fmt.Errorf("unknown asset key %s", key)
	}

	return collab.SignedURL{
		URL: fmt.Sprintf("%s/assets/raw?key=%s", s.baseURL, url.QueryEscape(key)),
		Exp: time.Now().Add(ttl).UnixMilli(),
	}, nil
}

// GetSplit returns one split by id.
func (s *Service) GetSplit(ctx context.Context, id string) (collab.Split, error) {
	if err := checkContext(ctx); err != nil {
		return collab.Split{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	split, ok := s.splits[id]
	if !ok {
		return collab.Split{}, fmt.Errorf("unknown split %s", id)
	}
	return split, nil
}

// FindSplitForUpload scans recent splits for one owned by uploadID.
func (s *Service) FindSplitForUpload(ctx context.Context, uploadID string) (collab.Split, error) {
	if err := checkContext(ctx); err != nil {
		return collab.Split{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.recent {
		if s.splits[id].UploadID == uploadID {
			return s.splits[id], nil
		}
	}
	return collab.Split{}, fmt.Errorf("no split for upload %s", uploadID)
}

// DetectSections re-runs detection for a registered split's image.
func (s *Service) DetectSections(ctx context.Context, imageRef string) ([]collab.Section, error) {
	s.mu.Lock()
	path, ok := s.images[imageRef]
	s.mu.Unlock()
	if !ok {
		path = imageRef
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	img, _, err := s.processor.DecodeImage(ctx, data, "")
	if err != nil {
		return nil, err
	}

	sections, err := s.processor.SuggestSections(ctx, img)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		sections[i].ID = uuid.NewString()
	}
	return sections, nil
}

// Asset returns the encoded bytes for a storage key.
func (s *Service) Asset(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.assets[key]
	return data, ok
}

// RecentSplits lists up to limit splits, newest first.
func (s *Service) RecentSplits(limit int) []collab.Split {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.recent
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	splits := make([]collab.Split, 0, len(ids))
	for _, id := range ids {
		splits = append(splits, s.splits[id])
	}
	return splits
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	}
	return false
}
