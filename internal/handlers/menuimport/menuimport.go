// Package menuimport parses uploaded menu files into structured menus.
package menuimport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/registry"
)

// Config wires the handler's collaborators.
type Config struct {
	// Prefix is the key prefix for parsed menus (default "menus").
	Prefix string
	// CSV handles CSV uploads.
	CSV CSVExtractor
	// Fallback handles everything else, typically a document-understanding
	// service for PDFs and photos. Nil rejects non-CSV uploads.
	Fallback Extractor
}

// Handler runs menu imports.
type Handler struct {
	blobs blob.Store
	pub   events.Publisher
	cfg   Config
}

// Register adds the menu import event type to r.
func Register(r *registry.Registry, blobs blob.Store, pub events.Publisher, cfg Config) *Handler {
	if cfg.Prefix == "" {
		cfg.Prefix = "menus"
	}
	if cfg.CSV.DefaultCurrency == "" {
		cfg.CSV.DefaultCurrency = "EUR"
	}
	h := &Handler{blobs: blobs, pub: pub, cfg: cfg}
	r.Register(model.TypeMenuImportRequested, registry.Typed(h.Handle))
	return h
}

// MenuKey is the deterministic key of an import's parsed menu.
func (h *Handler) MenuKey(restaurantID, importID string) string {
	return blob.Join(h.cfg.Prefix, restaurantID, importID+".json")
}

// Handle extracts the menu, stores it and announces it.
func (h *Handler) Handle(ctx context.Context, resourceID string, p *model.MenuImportPayload) error {
	if p.ImportID == "" {
		p.ImportID = resourceID
	}
	if p.SourceKey == "" || p.RestaurantID == "" {
		return registry.Permanent(errors.New("menu import without source_key or restaurant_id"))
	}

	obj, err := h.blobs.Get(ctx, p.SourceKey)
	if errors.Is(err, blob.ErrNotFound) {
		return registry.Permanent(fmt.Errorf("menu upload %s: %w", p.SourceKey, err))
	}
	if err != nil {
		return fmt.Errorf("load menu upload: %w", err)
	}

	contentType := p.ContentType
	if contentType == "" {
		contentType = obj.ContentType
	}
	var x Extractor = h.cfg.CSV
	if !IsCSV(contentType, p.Filename) {
		if h.cfg.Fallback == nil {
			return registry.Permanent(fmt.Errorf("%w: %s", ErrUnsupported, contentType))
		}
		x = h.cfg.Fallback
	}

	menu, err := x.Extract(ctx, obj, p)
	if errors.Is(err, ErrUnsupported) {
		return registry.Permanent(err)
	}
	if err != nil {
		return fmt.Errorf("extract menu %s: %w", p.ImportID, err)
	}

	data, err := json.Marshal(menu)
	if err != nil {
		return fmt.Errorf("marshal menu: %w", err)
	}
	key := h.MenuKey(p.RestaurantID, p.ImportID)
	if err := h.blobs.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("store menu %s: %w", key, err)
	}

	n := events.MenuImported{
		Key:          p.ImportID,
		ImportID:     p.ImportID,
		RestaurantID: p.RestaurantID,
		MenuKey:      key,
		Items:        menu.Items(),
		Sections:     len(menu.Sections),
	}
	if err := h.pub.Publish(ctx, events.TopicMenuImported, n); err != nil {
		return fmt.Errorf("notify menu import %s: %w", p.ImportID, err)
	}
	return nil
}
