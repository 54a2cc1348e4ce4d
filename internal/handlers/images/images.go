// Package images renders resized variants of uploaded menu images.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/registry"
)

const (
	defaultPrefix   = "variants"
	defaultMaxWidth = 4096
	// defaultMaxPixels admits a 40 megapixel source, about 160MB decoded.
	defaultMaxPixels = 40_000_000
	jpegQuality     = 85
)

// Config controls where variants go and how large they may be.
type Config struct {
	// Prefix is the key prefix for rendered variants (default "variants").
	Prefix string
	// MaxWidth rejects larger requested widths (default 4096).
	MaxWidth int
	// Concurrency bounds parallel renders per event (default 4).
	Concurrency int
	// MaxPixels rejects sources whose header declares more pixels than this
	// before any pixel data is allocated (default 40 million).
	MaxPixels int64
}

// Handler renders image variants.
type Handler struct {
	blobs blob.Store
	pub   events.Publisher
	cfg   Config
}

// Register adds the image variant event type to r.
func Register(r *registry.Registry, blobs blob.Store, pub events.Publisher, cfg Config) *Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = defaultMaxWidth
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.MaxPixels <= 0 {
		cfg.MaxPixels = defaultMaxPixels
	}
	h := &Handler{blobs: blobs, pub: pub, cfg: cfg}
	r.Register(model.TypeImageVariantsRequested, registry.Typed(h.Handle))
	return h
}

// VariantKey is the deterministic key of one rendered width.
func (h *Handler) VariantKey(imageID string, width int, ext string) string {
	return blob.Join(h.cfg.Prefix, imageID, "w"+strconv.Itoa(width)+"."+ext)
}

// Handle renders every requested width and announces the result. Keys are
// a function of the image and width only, so a retry overwrites the same
// objects with the same bytes.
func (h *Handler) Handle(ctx context.Context, resourceID string, p *model.ImageVariantsPayload) error {
	imageID := p.ImageID
	if imageID == "" {
		imageID = resourceID
	}
	widths, err := h.widths(p.Widths)
	if err != nil {
		return registry.Permanent(err)
	}

	obj, err := h.blobs.Get(ctx, p.SourceKey)
	if errors.Is(err, blob.ErrNotFound) {
		return registry.Permanent(fmt.Errorf("source image %s: %w", p.SourceKey, err))
	}
	if err != nil {
		return fmt.Errorf("load source image: %w", err)
	}
	src, format, err := h.decode(obj.Data)
	if err != nil {
		return registry.Permanent(fmt.Errorf("decode source image %s: %w", p.SourceKey, err))
	}
	ext, contentType, encode, err := encoderFor(format)
	if err != nil {
		return registry.Permanent(err)
	}

	variants := make([]events.ImageVariant, len(widths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Concurrency)
	for i, w := range widths {
		g.Go(func() error {
			dst := scaleToWidth(src, w)
			var buf bytes.Buffer
			if err := encode(&buf, dst); err != nil {
				return fmt.Errorf("encode w%d: %w", w, err)
			}
			key := h.VariantKey(imageID, w, ext)
			if err := h.blobs.Put(gctx, key, buf.Bytes(), contentType); err != nil {
				return fmt.Errorf("store variant %s: %w", key, err)
			}
			variants[i] = events.ImageVariant{Width: dst.Bounds().Dx(), Height: dst.Bounds().Dy(), Key: key}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	strs := make([]string, len(widths))
	for i, w := range widths {
		strs[i] = strconv.Itoa(w)
	}
	n := events.ImageVariantsReady{
		Key:      imageID + ":" + strings.Join(strs, ","),
		ImageID:  imageID,
		Variants: variants,
	}
	if err := h.pub.Publish(ctx, events.TopicImageVariantsReady, n); err != nil {
		return fmt.Errorf("notify variants for %s: %w", imageID, err)
	}
	return nil
}

// decode reads the header first so an oversized source is refused before
// the decoder allocates its pixel buffer.
func (h *Handler) decode(data []byte) (image.Image, string, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > h.cfg.MaxPixels {
		return nil, "", fmt.Errorf("%dx%d is %d pixels, limit %d", cfg.Width, cfg.Height, pixels, h.cfg.MaxPixels)
	}
	return image.Decode(bytes.NewReader(data))
}

// widths validates, sorts and deduplicates the requested widths.
func (h *Handler) widths(req []int) ([]int, error) {
	if len(req) == 0 {
		return nil, errors.New("no widths requested")
	}
	out := slices.Clone(req)
	for _, w := range out {
		if w <= 0 || w > h.cfg.MaxWidth {
			return nil, fmt.Errorf("width %d out of range 1-%d", w, h.cfg.MaxWidth)
		}
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

type encodeFunc func(*bytes.Buffer, image.Image) error

func encoderFor(format string) (ext, contentType string, enc encodeFunc, err error) {
	switch format {
	case "png":
		return "png", "image/png", func(b *bytes.Buffer, m image.Image) error { return png.Encode(b, m) }, nil
	case "jpeg":
		return "jpg", "image/jpeg", func(b *bytes.Buffer, m image.Image) error {
			return jpeg.Encode(b, m, &jpeg.Options{Quality: jpegQuality})
		}, nil
	}
	return "", "", nil, fmt.Errorf("unsupported image format %q", format)
}
