package file

import "testing"

func TestExtFromURL(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain png", input: "https://example.com/a/b.png", want: ".png"},
		{name: "query string ignored", input: "https://example.com/img.jpg?w=300", want: ".jpg"},
		{name: "no extension", input: "https://example.com/image", want: ""},
		{name: "dotted segment", input: "https://example.com/v1.2.3-release/image", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtFromURL(tt.input); got != tt.want {
				t.Fatalf("ExtFromURL(%q)=%q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExtFromContentType(t *testing.T) {
	if got := ExtFromContentType("image/jpeg"); got != ".jpg" {
		t.Fatalf("ExtFromContentType(image/jpeg)=%q", got)
	}
	if got := ExtFromContentType("image/png; charset=binary"); got != ".png" {
		t.Fatalf("ExtFromContentType(image/png)=%q", got)
	}
	if got := ExtFromContentType(""); got != "" {
		t.Fatalf("ExtFromContentType(empty)=%q", got)
	}
}

func TestIsImageMime(t *testing.T) {
	if !IsImageMime("image/png") {
		t.Fatal("image/png should be an image mime")
	}
	if !IsImageMime(" IMAGE/JPEG ") {
		t.Fatal("mime check should be case-insensitive")
	}
	if IsImageMime("application/pdf") {
		t.Fatal("application/pdf is not an image mime")
	}
}
