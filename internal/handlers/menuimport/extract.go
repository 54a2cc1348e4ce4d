package menuimport

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/unicode/norm"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/model"
)

// ErrUnsupported means no extractor understands the uploaded format.
var ErrUnsupported = errors.New("unsupported menu format")

// Menu is the structured result of an import.
type Menu struct {
	ImportID     string    `json:"import_id"`
	RestaurantID string    `json:"restaurant_id"`
	Source       string    `json:"source"`
	Sections     []Section `json:"sections"`
}

type Section struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

type Item struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	PriceMinor  int64    `json:"price_minor"`
	Currency    string   `json:"currency"`
	Tags        []string `json:"tags,omitempty"`
}

// Items counts items across sections.
func (m *Menu) Items() int {
	n := 0
	for _, s := range m.Sections {
		n += len(s.Items)
	}
	return n
}

// Extractor turns an uploaded file into a Menu. Implementations return an
// error wrapping ErrUnsupported for input they cannot read at all.
type Extractor interface {
	Extract(ctx context.Context, obj *blob.Object, p *model.MenuImportPayload) (*Menu, error)
}

// IsCSV reports whether an upload looks like CSV by content type or name.
func IsCSV(contentType, filename string) bool {
	ct := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if ct == "text/csv" || ct == "application/csv" {
		return true
	}
	return strings.EqualFold(path.Ext(filename), ".csv")
}

// CSVExtractor reads a header row followed by one item per row. Recognised
// columns: section, name, description, price, currency, tags. name and
// price are required; tags are separated by "|".
type CSVExtractor struct {
	// DefaultCurrency applies to rows without a currency column.
	DefaultCurrency string
}

func (x CSVExtractor) Extract(_ context.Context, obj *blob.Object, p *model.MenuImportPayload) (*Menu, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(obj.Data, []byte("\xef\xbb\xbf"))))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %v", ErrUnsupported, err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["name"]; !ok {
		return nil, fmt.Errorf("%w: missing name column", ErrUnsupported)
	}
	if _, ok := cols["price"]; !ok {
		return nil, fmt.Errorf("%w: missing price column", ErrUnsupported)
	}

	menu := &Menu{ImportID: p.ImportID, RestaurantID: p.RestaurantID, Source: "csv"}
	sectionIdx := map[string]int{}
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrUnsupported, line, err)
		}
		field := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(norm.NFC.String(rec[i]))
			}
			return ""
		}
		name := field("name")
		if name == "" {
			continue
		}

		cur := strings.ToUpper(field("currency"))
		if cur == "" {
			cur = x.DefaultCurrency
		}
		unit, err := currency.ParseISO(cur)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: currency %q", ErrUnsupported, line, cur)
		}
		price, err := parsePrice(field("price"))
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrUnsupported, line, err)
		}

		item := Item{
			Name:        name,
			Description: field("description"),
			PriceMinor:  price,
			Currency:    unit.String(),
		}
		for _, tag := range strings.Split(field("tags"), "|") {
			if tag = strings.ToLower(strings.TrimSpace(tag)); tag != "" {
				item.Tags = append(item.Tags, tag)
			}
		}

		section := field("section")
		i, ok := sectionIdx[section]
		if !ok {
			i = len(menu.Sections)
			sectionIdx[section] = i
			menu.Sections = append(menu.Sections, Section{Name: section})
		}
		menu.Sections[i].Items = append(menu.Sections[i].Items, item)
	}
	if menu.Items() == 0 {
		return nil, fmt.Errorf("%w: no items", ErrUnsupported)
	}
	return menu, nil
}

// parsePrice converts a decimal amount such as "12.5" or "12,50" into minor
// units. More than two fractional digits is rejected.
func parsePrice(s string) (int64, error) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, errors.New("empty price")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 2 {
		return 0, fmt.Errorf("price %q has more than two decimals", s)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil || w < 0 {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q", s)
	}
	return w*100 + f, nil
}
