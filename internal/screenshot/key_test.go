package screenshot

import (
	"fmt"
	"testing"
)

// Requests that only differ in render options must share one cache slot.
func TestKey_IgnoresRenderOptions(t *testing.T) {
	base := NewRequest("https://example.com")

	variants := []struct {
		name   string
		mutate func(r *Request)
	}{
		{"wait_time", func(r *Request) { r.WaitTime = 2500 }},
		{"quality", func(r *Request) { r.Quality = 10 }},
		{"wait_until", func(r *Request) { r.WaitUntil = WaitLoad }},
		{"wait_for_images", func(r *Request) { r.WaitForImages = false }},
		{"scroll_page", func(r *Request) { r.ScrollPage = false }},
		{"no_cache", func(r *Request) { r.NoCache = true }},
	}

	for _, tt := range variants {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			if Key(r) != Key(base) {
				t.Errorf("changing %s changed the cache key", tt.name)
			}
		})
	}
}

func TestKey_DistinguishesIdentity(t *testing.T) {
	base := NewRequest("https://example.com")

	mobile := base
	mobile.View = ViewMobile

	full := base
	full.FullPage = true

	other := base
	other.URL = "https://example.org"

	for name, r := range map[string]Request{"view": mobile, "full_page": full, "url": other} {
		if Key(r) == Key(base) {
			t.Errorf("changing %s did not change the cache key", name)
		}
	}
}

func TestKey_NoCollisionsInSample(t *testing.T) {
	seen := make(map[CacheKey]string)
	for i := 0; i < 2000; i++ {
		for _, view := range []View{ViewDesktop, ViewMobile} {
			for _, full := range []bool{false, true} {
				r := NewRequest(fmt.Sprintf("https://site-%d.example.com/page?id=%d", i%97, i))
				r.View = view
				r.FullPage = full
				id := fmt.Sprintf("%s|%s|%v", r.URL, view, full)
				k := Key(r)
				if prev, ok := seen[k]; ok {
					t.Fatalf("collision between %s and %s", prev, id)
				}
				seen[k] = id
			}
		}
	}
}

func TestKey_Shape(t *testing.T) {
	k := Key(NewRequest("https://example.com"))
	if !ValidKey(string(k)) {
		t.Fatalf("key %q does not look like a sha256 hex digest", k)
	}
	if ValidKey("../etc/passwd") || ValidKey("ABC") {
		t.Error("ValidKey accepted a malformed key")
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://Example.COM", "https://example.com/"},
		{"  https://example.com/a#section ", "https://example.com/a"},
		{"HTTP://example.com/Path?q=1", "http://example.com/Path?q=1"},
		{"not a url", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	if Key(NewRequest("https://EXAMPLE.com")) != Key(NewRequest("https://example.com/")) {
		t.Error("equivalent URLs produced different keys")
	}
}
