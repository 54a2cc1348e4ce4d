package menuimport

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alfredjeanlab/menujobs/internal/blob"
	"github.com/alfredjeanlab/menujobs/internal/events"
	"github.com/alfredjeanlab/menujobs/internal/model"
	"github.com/alfredjeanlab/menujobs/internal/registry"
)

const sampleCSV = "\xef\xbb\xbfSection,Name,Description,Price,Currency,Tags\n" +
	"Starters,Tomato soup,With basil,4.50,eur,vegan|GLUTEN-FREE\n" +
	"Starters,Bruschetta,,5,,\n" +
	"Mains,Risotto,\"Mushroom, parmesan\",\"12,5\",EUR,vegetarian\n" +
	",,,,,\n"

func run(t *testing.T, r *registry.Registry, p model.MenuImportPayload) error {
	t.Helper()
	raw, _ := json.Marshal(p)
	_, err := r.Dispatch(context.Background(), model.TypeMenuImportRequested, p.ImportID, raw)
	return err
}

func TestHandle_CSV(t *testing.T) {
	blobs := blob.NewMemory()
	ctx := context.Background()
	_ = blobs.Put(ctx, "uploads/imp_1", []byte(sampleCSV), "text/csv; charset=utf-8")
	rec := &events.Recorder{}
	r := registry.New()
	h := Register(r, blobs, rec, Config{})

	err := run(t, r, model.MenuImportPayload{ImportID: "imp_1", RestaurantID: "rst_9", SourceKey: "uploads/imp_1"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	obj, err := blobs.Get(ctx, h.MenuKey("rst_9", "imp_1"))
	if err != nil {
		t.Fatalf("parsed menu missing: %v", err)
	}
	var menu Menu
	if err := json.Unmarshal(obj.Data, &menu); err != nil {
		t.Fatal(err)
	}
	if len(menu.Sections) != 2 || menu.Items() != 3 {
		t.Fatalf("menu = %+v", menu)
	}
	soup := menu.Sections[0].Items[0]
	if soup.PriceMinor != 450 || soup.Currency != "EUR" || len(soup.Tags) != 2 || soup.Tags[1] != "gluten-free" {
		t.Errorf("soup = %+v", soup)
	}
	if b := menu.Sections[0].Items[1]; b.PriceMinor != 500 || b.Currency != "EUR" {
		t.Errorf("bruschetta = %+v", b)
	}
	if risotto := menu.Sections[1].Items[0]; risotto.PriceMinor != 1250 || risotto.Description != "Mushroom, parmesan" {
		t.Errorf("risotto = %+v", risotto)
	}

	got := rec.Events()
	if len(got) != 1 || got[0].Topic != events.TopicMenuImported {
		t.Fatalf("published %+v", got)
	}
	n := got[0].Event.(events.MenuImported)
	if n.Items != 3 || n.Sections != 2 || n.MenuKey != "menus/rst_9/imp_1.json" {
		t.Errorf("notification = %+v", n)
	}
}

type stubExtractor struct{ calls int }

func (s *stubExtractor) Extract(_ context.Context, _ *blob.Object, p *model.MenuImportPayload) (*Menu, error) {
	s.calls++
	return &Menu{ImportID: p.ImportID, RestaurantID: p.RestaurantID, Source: "stub",
		Sections: []Section{{Name: "All", Items: []Item{{Name: "Pho", PriceMinor: 1100, Currency: "USD"}}}}}, nil
}

func TestHandle_FallbackExtractor(t *testing.T) {
	blobs := blob.NewMemory()
	_ = blobs.Put(context.Background(), "uploads/imp_2", []byte("%PDF-1.7"), "application/pdf")
	stub := &stubExtractor{}
	r := registry.New()
	Register(r, blobs, &events.Recorder{}, Config{Fallback: stub})

	if err := run(t, r, model.MenuImportPayload{ImportID: "imp_2", RestaurantID: "rst_1", SourceKey: "uploads/imp_2"}); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if stub.calls != 1 {
		t.Errorf("fallback calls = %d", stub.calls)
	}
}

func TestHandle_PermanentFailures(t *testing.T) {
	tests := []struct {
		name        string
		data        string
		contentType string
		payload     model.MenuImportPayload
	}{
		{"missing upload", "", "", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "nope"}},
		{"pdf without fallback", "%PDF", "application/pdf", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up"}},
		{"no name column", "item,price\nsoup,4\n", "text/csv", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up"}},
		{"bad price", "name,price\nsoup,four\n", "text/csv", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up"}},
		{"bad currency", "name,price,currency\nsoup,4,ZZZ\n", "text/csv", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up"}},
		{"empty", "name,price\n", "text/csv", model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up"}},
		{"no restaurant", "name,price\nsoup,4\n", "text/csv", model.MenuImportPayload{ImportID: "i", SourceKey: "up"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blobs := blob.NewMemory()
			if tt.data != "" {
				_ = blobs.Put(context.Background(), "up", []byte(tt.data), tt.contentType)
			}
			rec := &events.Recorder{}
			r := registry.New()
			Register(r, blobs, rec, Config{})
			if err := run(t, r, tt.payload); !registry.IsPermanent(err) {
				t.Errorf("err = %v, want permanent", err)
			}
			if len(rec.Events()) != 0 {
				t.Error("published after failure")
			}
		})
	}
}

func TestHandle_FilenameSelectsCSV(t *testing.T) {
	blobs := blob.NewMemory()
	_ = blobs.Put(context.Background(), "up", []byte("name,price\nsoup,4\n"), "application/octet-stream")
	r := registry.New()
	Register(r, blobs, &events.Recorder{}, Config{})
	err := run(t, r, model.MenuImportPayload{ImportID: "i", RestaurantID: "r", SourceKey: "up", Filename: "Menu.CSV"})
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
}

func TestParsePrice(t *testing.T) {
	for in, want := range map[string]int64{"4": 400, "4.5": 450, "4.50": 450, "12,99": 1299, "0.05": 5} {
		got, err := parsePrice(in)
		if err != nil || got != want {
			t.Errorf("parsePrice(%q) = %d, %v; want %d", in, got, err, want)
		}
	}
	for _, in := range []string{"", "abc", "1.999", "-3"} {
		if _, err := parsePrice(in); err == nil {
			t.Errorf("parsePrice(%q) succeeded", in)
		}
	}
}

func TestCSVExtractor_UnsupportedWraps(t *testing.T) {
	_, err := CSVExtractor{DefaultCurrency: "EUR"}.Extract(context.Background(), &blob.Object{Data: []byte("")}, &model.MenuImportPayload{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
}
