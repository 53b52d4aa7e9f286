package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSearches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "funko.yaml"), "id: funko\nkeyword: funko pop\nmax_pages: 2\n")
	writeFile(t, filepath.Join(dir, "lego.yml"), "keyword: lego star wars\nhandler: browser\n")
	writeFile(t, filepath.Join(dir, "notes.txt"), "ignored")

	searches, err := LoadSearches(dir)
	if err != nil {
		t.Fatalf("LoadSearches: %v", err)
	}
	if len(searches) != 2 {
		t.Fatalf("expected 2 searches, got %d", len(searches))
	}

	funko := searches["funko"]
	if funko == nil || funko.MaxPages != 2 || funko.Handler != "http" {
		t.Fatalf("unexpected funko search: %+v", funko)
	}

	lego := searches["lego"]
	if lego == nil {
		t.Fatal("expected id to default to file name")
	}
	if lego.MaxPages != 1 {
		t.Errorf("MaxPages default = %d, want 1", lego.MaxPages)
	}
	if lego.Handler != "browser" {
		t.Errorf("Handler = %q, want browser", lego.Handler)
	}
}

func TestLoadSearchesRequiresKeyword(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.yaml"), "id: bad\n")

	if _, err := LoadSearches(dir); err == nil {
		t.Fatal("expected error for search without keyword")
	}
}

func TestLoadSearchesMissingDir(t *testing.T) {
	searches, err := LoadSearches(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(searches) != 0 {
		t.Fatalf("expected no searches, got %d", len(searches))
	}
}

func TestStartURL(t *testing.T) {
	s := &SearchConfig{Keyword: "funko pop"}
	got := s.StartURL()
	if !strings.HasPrefix(got, "https://www.ebay.com/sch/i.html?_nkw=funko+pop") {
		t.Errorf("unexpected start url %q", got)
	}
	if !strings.HasSuffix(got, "_stpos=90210") {
		t.Errorf("expected default zip code in %q", got)
	}

	s = &SearchConfig{Keyword: "lego", ZipCode: "10001", BaseURL: "https://www.ebay.com/sch/i.html?_sacat=246"}
	got = s.StartURL()
	if got != "https://www.ebay.com/sch/i.html?_sacat=246&_nkw=lego&_stpos=10001" {
		t.Errorf("unexpected start url %q", got)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
