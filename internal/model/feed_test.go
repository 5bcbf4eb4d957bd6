package model

import "testing"

func TestFeed_Key(t *testing.T) {
	f := Feed{Name: "home", Kind: FeedKindNitter}
	if got := f.Key(); got != "nitter:home" {
		t.Errorf("Key() = %q, want %q", got, "nitter:home")
	}
}

func TestSiteBase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://nitter.example.com", "https://nitter.example.com"},
		{"https://nitter.example.com/", "https://nitter.example.com"},
		{"https://api.tumblr.com//", "https://api.tumblr.com"},
	}
	for _, tt := range tests {
		if got := SiteBase(tt.in); got != tt.want {
			t.Errorf("SiteBase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
