package category

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"price_tracker/models"
)

type fakeSource struct {
	cats  []models.Category
	err   error
	calls int
}

func (f *fakeSource) ListCategories(ctx context.Context) ([]models.Category, error) {
	f.calls++
	return f.cats, f.err
}

func taxonomy() *fakeSource {
	return &fakeSource{cats: []models.Category{
		{CategoryID: 220, Name: "Toys & Hobbies"},
		{CategoryID: 261068, Name: "Action Figures"},
		{CategoryID: 139973, Name: "Video Games"},
		{CategoryID: 500, Name: "Video Games"},
		{CategoryID: 900, Name: "Collectiblesb"},
		{CategoryID: 901, Name: "Collectiblesa"},
	}}
}

func TestLeafSegment(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"Toys & Hobbies > Action Figures", "Action Figures", true},
		{"Electronics > Video Games & Consoles > Video Games > See more Banana Prince Nintendo NES...", "Video Games", true},
		{"  Action Figures  ", "Action Figures", true},
		{"Toys >  > ", "Toys", true},
		{"See More things", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := LeafSegment(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("LeafSegment(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestResolveExact(t *testing.T) {
	r := NewResolver(taxonomy())

	id, err := r.Resolve(context.Background(), "Toys & Hobbies > ACTION FIGURES")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == nil || *id != 261068 {
		t.Fatalf("expected 261068, got %v", id)
	}
}

func TestResolveDuplicateNamesPickLowestID(t *testing.T) {
	r := NewResolver(taxonomy())

	id, err := r.Resolve(context.Background(), "Electronics > Video Games > See more Banana Prince")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == nil || *id != 500 {
		t.Fatalf("expected lowest id 500, got %v", id)
	}
}

func TestResolveFuzzy(t *testing.T) {
	r := NewResolver(taxonomy())

	id, err := r.Resolve(context.Background(), "Toys > Action Figure")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == nil || *id != 261068 {
		t.Fatalf("expected fuzzy match 261068, got %v", id)
	}
}

func TestResolveFuzzyTieBreak(t *testing.T) {
	r := NewResolver(taxonomy())

	// "collectibles" scores the same against both candidates; the smaller name wins.
	id, err := r.Resolve(context.Background(), "Collectibles")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if id == nil || *id != 901 {
		t.Fatalf("expected 901 (collectiblesa), got %v", id)
	}
}

func TestResolveMiss(t *testing.T) {
	r := NewResolver(taxonomy())

	id, err := r.Resolve(context.Background(), "Home & Garden > Kitchen Sinks")
	if err != nil {
		t.Fatalf("miss should not error: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil, got %d", *id)
	}

	id, err = r.Resolve(context.Background(), "")
	if err != nil || id != nil {
		t.Fatalf("empty breadcrumb should be a silent miss, got %v %v", id, err)
	}
}

func TestResolverCachesUntilReset(t *testing.T) {
	src := taxonomy()
	r := NewResolver(src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(ctx, "Action Figures"); err != nil {
			t.Fatalf("resolve: %v", err)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one taxonomy load, got %d", src.calls)
	}

	r.Reset()
	if _, err := r.Resolve(ctx, "Action Figures"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if src.calls != 2 {
		t.Fatalf("expected reload after reset, got %d", src.calls)
	}
}

func TestResolveConcurrent(t *testing.T) {
	src := taxonomy()
	r := NewResolver(src)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]int64, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := r.Resolve(ctx, "Toys & Hobbies > Action Figure")
			if err == nil && id != nil {
				results[i] = *id
			}
		}(i)
	}
	wg.Wait()

	for i, id := range results {
		if id != 261068 {
			t.Fatalf("worker %d: expected fuzzy match 261068, got %d", i, id)
		}
	}
	if src.calls != 1 {
		t.Fatalf("expected one taxonomy load, got %d", src.calls)
	}
}

func TestResolveLoadError(t *testing.T) {
	r := NewResolver(&fakeSource{err: errors.New("db down")})
	if _, err := r.Resolve(context.Background(), "Action Figures"); err == nil {
		t.Fatal("expected load error")
	}
}

func TestSimilarity(t *testing.T) {
	got := Similarity("action figure", "action figures")
	want := 26.0 / 27.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("Similarity = %v, want %v", got, want)
	}
	if Similarity("", "") != 1 {
		t.Fatal("empty strings should be identical")
	}
}

type fakeSink struct {
	got []models.Category
}

func (f *fakeSink) UpsertCategories(ctx context.Context, cats []models.Category) error {
	f.got = cats
	return nil
}

func TestImportTree(t *testing.T) {
	f, err := os.Open(filepath.Join("testdata", "tree.json"))
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	sink := &fakeSink{}
	n, err := ImportTree(context.Background(), f, sink)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if n != 6 || len(sink.got) != 6 {
		t.Fatalf("expected 6 categories, got %d", n)
	}

	var figures *models.Category
	for i := range sink.got {
		if sink.got[i].CategoryID == 261068 {
			figures = &sink.got[i]
		}
	}
	if figures == nil {
		t.Fatal("Action Figures missing")
	}
	if figures.Level != 3 || figures.ParentID == nil || *figures.ParentID != 246 {
		t.Fatalf("unexpected Action Figures row %+v", figures)
	}
	if sink.got[0].ParentID != nil || sink.got[0].Level != 0 {
		t.Fatalf("root should have no parent, got %+v", sink.got[0])
	}
}
