package identity

import "testing"

func TestItemIDFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.ebay.com/itm/123456789012", "123456789012"},
		{"https://www.ebay.com/itm/123456789012?hash=item1c&epid=99", "123456789012"},
		{"https://www.ebay.com/itm/funko-pop-batman/123456789012?var=0", "123456789012"},
		{"https://www.ebay.com/itm/123456789012/", "123456789012"},
		{"https://www.ebay.com/itm/123#frag", "123"},
		{"https://www.ebay.com/sch/i.html?_nkw=funko", ""},
		{"https://www.ebay.com/itm/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ItemIDFromURL(tt.url); got != tt.want {
			t.Errorf("ItemIDFromURL(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestEPIDFromURL(t *testing.T) {
	if got := EPIDFromURL("https://www.ebay.com/itm/1?epid=2254084312&hash=x"); got != "2254084312" {
		t.Errorf("got %q", got)
	}
	if got := EPIDFromURL("https://www.ebay.com/itm/1"); got != "" {
		t.Errorf("expected empty epid, got %q", got)
	}
}

func TestContentKeyStable(t *testing.T) {
	a := ContentKey([]byte("image-bytes"))
	b := ContentKey([]byte("image-bytes"))
	if a != b || len(a) != 32 {
		t.Fatalf("unexpected keys %q %q", a, b)
	}
	if a == ContentKey([]byte("other")) {
		t.Fatal("different content must give different keys")
	}
}
