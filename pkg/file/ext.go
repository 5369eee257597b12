package file

import (
	"mime"
	"net/url"
	"path"
	"strings"
)

// ExtFromURL returns the file extension of the URL's path, including the
// leading dot. Query strings and fragments are ignored.
func ExtFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(parsed.Path)
	if len(ext) > 8 {
		// Not a real extension, just a dotted path segment.
		return ""
	}
	return ext
}

// ExtFromContentType maps a Content-Type header value to a file extension.
// Returns "" when the type is unknown.
func ExtFromContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/avif":
		return ".avif"
	}
	exts, err := mime.ExtensionsByType(mediaType)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return exts[0]
}

// IsImageMime reports whether the mime type names an image format.
func IsImageMime(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}
