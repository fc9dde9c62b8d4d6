package devcrop

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	// webp designs show up in upload folders; decode support only.
	_ "golang.org/x/image/webp"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util"
)

// Processor decodes design images and cuts percent-space crops out of
// them. It backs the local development collaborator; the editor itself
// never decodes pixels.
type Processor struct {
	resampler imaging.ResampleFilter
}

// NewProcessor creates a processor with the Lanczos resampler.
func NewProcessor() *Processor {
	return &Processor{resampler: imaging.Lanczos}
}

// DecodeImage decodes an image from a byte slice with context awareness.
func (p *Processor) DecodeImage(ctx context.Context, imgBytes []byte, contentType string) (image.Image, string, error) {
	var img image.Image
	var err error
	var ext string

	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}

	switch contentType {
	case "image/png":
		img, err = png.Decode(bytes.NewReader(imgBytes))
		ext = "png"
	case "image/jpeg":
		img, err = jpeg.Decode(bytes.NewReader(imgBytes))
		ext = "jpg"
	default:
		img, ext, err = image.Decode(bytes.NewReader(imgBytes))
	}
	if err != nil {
		return nil, ext, fmt.Errorf("decoding image: %w", err)
	}

	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}
	return img, ext, nil
}

// EncodeImage encodes an image to a byte slice with context awareness.
func (p *Processor) EncodeImage(ctx context.Context, img image.Image, contentType string) ([]byte, error) {
	var buf bytes.Buffer
	var err error

	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	switch contentType {
	case "image/png":
		err = png.Encode(&buf, img)
	case "image/jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	default:
		return nil, fmt.Errorf("unsupported format: %s", contentType)
	}

	if err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}

	return buf.Bytes(), nil
}

// CropPercent cuts the region described by a percent-of-image rect out
// of img. The rect is clamped to the image, so off-by-rounding requests
// still produce a crop instead of an error.
func (p *Processor) CropPercent(ctx context.Context, img image.Image, rect collab.Rect) (image.Image, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	w := float64(bounds.Dx())
	h := float64(bounds.Dy())

	x0 := util.Clamp(rect.X/100*w, 0, w)
	y0 := util.Clamp(rect.Y/100*h, 0, h)
	x1 := util.Clamp((rect.X+rect.Width)/100*w, 0, w)
	y1 := util.Clamp((rect.Y+rect.Height)/100*h, 0, h)

	region := image.Rect(
		bounds.Min.X+int(math.Round(x0)),
		bounds.Min.Y+int(math.Round(y0)),
		bounds.Min.X+int(math.Round(x1)),
		bounds.Min.Y+int(math.Round(y1)),
	)
	if region.Empty() {
		return nil, fmt.Errorf("crop region %v is empty", rect)
	}

	return imaging.Crop(img, region), nil
}

// SuggestSections proposes horizontal section bands for a design image.
// The hero band comes from smartcrop's saliency analysis; the rest of
// the canvas is banded above and below it.
func (p *Processor) SuggestSections(ctx context.Context, img image.Image) ([]collab.Section, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	height := float64(bounds.Dy())
	if height <= 0 {
		return nil, fmt.Errorf("image has no height")
	}

	r := &resizer{resampler: p.resampler}
	analyzer := smartcrop.NewAnalyzer(r)

	// FindBestCrop has no context support, so run it on the side.
	type cropResult struct {
		crop image.Rectangle
		err  error
	}
	resultChan := make(chan cropResult, 1)
	go func() {
		crop, err := analyzer.FindBestCrop(img, bounds.Dx(), bounds.Dy()/3)
		resultChan <- cropResult{crop: crop, err: err}
	}()

	var hero image.Rectangle
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultChan:
		if result.err != nil {
			return nil, fmt.Errorf("finding hero band: %w", result.err)
		}
		hero = result.crop
	}

	heroTop := float64(hero.Min.Y-bounds.Min.Y) / height * 100
	heroBottom := float64(hero.Max.Y-bounds.Min.Y) / height * 100
	heroTop = util.Clamp(heroTop, 0, 100)
	heroBottom = util.Clamp(heroBottom, heroTop, 100)

	bands := []struct {
		top, bottom float64
		kind        collab.SectionType
		desc        string
	}{
		{0, heroTop, collab.TypeHeader, "top band"},
		{heroTop, heroBottom, collab.TypeHero, "salient band"},
		{heroBottom, 100, collab.TypeContent, "bottom band"},
	}

	var sections []collab.Section
	for _, band := range bands {
		if band.bottom-band.top < 1 {
			continue
		}
		sections = append(sections, collab.Section{
			Index:       len(sections),
			Type:        band.kind,
			Bounds:      collab.Rect{X: 0, Y: band.top, Width: 100, Height: band.bottom - band.top},
			Confidence:  0.5,
			Description: band.desc,
		})
	}
	return sections, nil
}

// resizer adapts imaging to the smartcrop.Resizer interface.
type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
