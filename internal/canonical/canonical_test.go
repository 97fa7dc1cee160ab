package canonical

import (
	"net/url"
	"testing"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		href    string
		baseURL string
		want    string
		wantOk  bool
	}{
		{
			name:    "relative path from root",
			href:    "/about",
			baseURL: "https://example.com/page",
			want:    "https://example.com/about",
			wantOk:  true,
		},
		{
			name:    "strips fragment",
			href:    "https://example.com/page#section",
			baseURL: "https://example.com/",
			want:    "https://example.com/page",
			wantOk:  true,
		},
		{
			name:    "strips trailing slash except root",
			href:    "https://example.com/dir/",
			baseURL: "https://example.com/",
			want:    "https://example.com/dir",
			wantOk:  true,
		},
		{
			name:    "keeps root slash",
			href:    "https://example.com/",
			baseURL: "https://example.com/",
			want:    "https://example.com/",
			wantOk:  true,
		},
		{
			name:    "resolves dot segments",
			href:    "https://example.com/a/../b",
			baseURL: "https://example.com/",
			want:    "https://example.com/b",
			wantOk:  true,
		},
		{
			name:    "lowercases host",
			href:    "https://EXAMPLE.com/Path",
			baseURL: "https://example.com/",
			want:    "https://example.com/Path",
			wantOk:  true,
		},
		{
			name:    "strips default https port",
			href:    "https://example.com:443/page",
			baseURL: "https://example.com/",
			want:    "https://example.com/page",
			wantOk:  true,
		},
		{
			name:    "strips default http port",
			href:    "http://example.com:80/page",
			baseURL: "http://example.com/",
			want:    "http://example.com/page",
			wantOk:  true,
		},
		{
			name:    "preserves query order",
			href:    "/search?b=2&a=1",
			baseURL: "https://example.com/",
			want:    "https://example.com/search?b=2&a=1",
			wantOk:  true,
		},
		{
			name:    "path is case-sensitive",
			href:    "/A",
			baseURL: "https://example.com/",
			want:    "https://example.com/A",
			wantOk:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, err := url.Parse(tt.baseURL)
			if err != nil {
				t.Fatalf("bad base URL: %v", err)
			}
			got, ok := Canonicalize(tt.href, base)
			if ok != tt.wantOk {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("Canonicalize(%q, %q) = %q, want %q", tt.href, tt.baseURL, got, tt.want)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	base, _ := url.Parse("https://example.com/dir/page")
	inputs := []string{
		"/a/b/../c?x=1#frag",
		"https://EXAMPLE.com:443/Foo/",
		"//example.com/rel",
	}
	for _, in := range inputs {
		first, ok := Canonicalize(in, base)
		if !ok {
			t.Fatalf("Canonicalize(%q) failed", in)
		}
		firstURL, _ := url.Parse(first)
		second, ok := Canonicalize(first, firstURL)
		if !ok {
			t.Fatalf("Canonicalize(%q) (second pass) failed", first)
		}
		if first != second {
			t.Errorf("not idempotent: %q -> %q -> %q", in, first, second)
		}
	}
}

func TestCanonicalize_InvalidURL(t *testing.T) {
	base, _ := url.Parse("https://example.com/")
	_, ok := Canonicalize("http://[::1", base)
	if ok {
		t.Errorf("expected failure parsing malformed URL")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		seedHost string
		want     Classification
	}{
		{"relative path", "/about", "example.com", Internal},
		{"fragment only", "#top", "example.com", Internal},
		{"query only", "?page=2", "example.com", Internal},
		{"same host absolute", "https://example.com/a", "example.com", Internal},
		{"www equivalence", "https://www.example.com/a", "example.com", Internal},
		{"different host", "https://other.test/a", "example.com", External},
		{"co.uk suffix same domain", "https://shop.example.co.uk/a", "www.example.co.uk", Internal},
		{"co.uk suffix different domain", "https://example.co.uk/a", "other.co.uk", External},
		{"mailto", "mailto:user@example.com", "example.com", Mailto},
		{"tel", "tel:+1234567890", "example.com", Tel},
		{"javascript scheme", "javascript:void(0)", "example.com", NonFetchable},
		{"image extension", "https://example.com/logo.png", "example.com", NonFetchable},
		{"css extension", "/style.css", "example.com", NonFetchable},
		{"pdf extension external", "https://other.test/doc.pdf", "example.com", NonFetchable},
		{"protocol relative internal", "//example.com/a", "example.com", Internal},
		{"protocol relative external", "//other.test/a", "example.com", External},
		{"empty string", "", "example.com", InvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.raw, tt.seedHost)
			if got != tt.want {
				t.Errorf("Classify(%q, %q) = %v, want %v", tt.raw, tt.seedHost, got, tt.want)
			}
		})
	}
}

func TestSameHost(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"example.com", "www.example.com", true},
		{"EXAMPLE.com", "example.com", true},
		{"example.com:443", "example.com", true},
		{"example.com", "other.test", false},
	}
	for _, tt := range tests {
		if got := SameHost(tt.a, tt.b); got != tt.want {
			t.Errorf("SameHost(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
