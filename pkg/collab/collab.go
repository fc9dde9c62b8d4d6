package collab

import (
	"context"
	"time"
)

// SectionType is the semantic label attached to a detected region.
type SectionType string

// Known section types. Detectors may emit anything; unknown labels are
// normalized to TypeOther rather than rejected.
const (
	TypeHeader      SectionType = "header"
	TypeHero        SectionType = "hero"
	TypeContent     SectionType = "content"
	TypeSidebar     SectionType = "sidebar"
	TypeFooter      SectionType = "footer"
	TypeNavigation  SectionType = "navigation"
	TypeForm        SectionType = "form"
	TypeGallery     SectionType = "gallery"
	TypeTestimonial SectionType = "testimonial"
	TypeCTA         SectionType = "cta"
	TypeOther       SectionType = "other"
)

var knownTypes = map[SectionType]bool{
	TypeHeader: true, TypeHero: true, TypeContent: true, TypeSidebar: true,
	TypeFooter: true, TypeNavigation: true, TypeForm: true, TypeGallery: true,
	TypeTestimonial: true, TypeCTA: true, TypeOther: true,
}

// Normalize maps unknown labels to TypeOther.
func (t SectionType) Normalize() SectionType {
	if knownTypes[t] {
		return t
	}
	return TypeOther
}

// Rect is a rectangle in percent-of-image space. Detectors occasionally
// deliver fractional [0,1] values instead; see editor.BuildCropRequests.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Section is a detected or user-defined region of the design image.
type Section struct {
	ID          string      `json:"id"`
	Index       int         `json:"index"`
	Type        SectionType `json:"type"`
	Bounds      Rect        `json:"bounds"`
	Confidence  float64     `json:"confidence"`
	Description string      `json:"description"`
}

// CropRequest is the normalized percent-space crop order for one section.
type CropRequest struct {
	ID     string `json:"id"`
	Index  int    `json:"index"`
	Unit   string `json:"unit"`
	Bounds Rect   `json:"bounds"`
}

// AssetMeta carries the crop generator's description of a produced asset.
// Width and Height are pixels of the generated crop.
type AssetMeta struct {
	SectionID string `json:"sectionId"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Key       string `json:"key"`
}

// CropAsset is one generated crop, loosely keyed to a section.
type CropAsset struct {
	StorageKey string    `json:"storageKey"`
	Meta       AssetMeta `json:"meta"`
	Order      int       `json:"order"`
}

// Split is the ground-truth record for an uploaded design image.
type Split struct {
	ID       string    `json:"id"`
	UploadID string    `json:"upload_id"`
	Sections []Section `json:"sections"`
}

// SignedURL grants temporary read access to a stored asset. Exp is unix
// milliseconds; the URL is not guaranteed valid past it.
type SignedURL struct {
	URL string `json:"url"`
	Exp int64  `json:"exp"`
}

// Expiry returns Exp as a time.Time.
func (s SignedURL) Expiry() time.Time {
	return time.UnixMilli(s.Exp)
}

// CropGenerator produces crop assets for a split. force bypasses any
// result cache on the generator side; it is used only by the single
// corrective regeneration pass.
type CropGenerator interface {
	GenerateCrops(ctx context.Context, splitID string, sections []CropRequest, force bool) ([]CropAsset, error)
}

// AssetSigner resolves a storage key to a time-limited URL.
type AssetSigner interface {
	SignURL(ctx context.Context, key string, ttl time.Duration) (SignedURL, error)
}

// SplitReader reads split summaries. FindSplitForUpload is the fallback
// path used when a design upload's split id is not directly known; it
// filters the recent-splits listing by owning-upload identity.
type SplitReader interface {
	GetSplit(ctx context.Context, id string) (Split, error)
	FindSplitForUpload(ctx context.Context, uploadID string) (Split, error)
}

// SectionDetector proposes section suggestions for an uploaded image.
type SectionDetector interface {
	DetectSections(ctx context.Context, imageRef string) ([]Section, error)
}
