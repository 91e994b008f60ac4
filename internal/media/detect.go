// internal/media/detect.go
package media

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// Category is the WhatsApp media category a payload is sent as.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryVideo    Category = "video"
	CategorySticker  Category = "sticker"
	CategoryVoice    Category = "voice"
	CategoryDocument Category = "document"
)

var ErrSizeExceeded = errors.New("media size exceeded")

// Per-category byte ceilings enforced by the Cloud API.
var sizeLimits = map[Category]int64{
	CategoryImage:    5 * 1024 * 1024,
	CategoryAudio:    16 * 1024 * 1024,
	CategoryVideo:    16 * 1024 * 1024,
	CategoryVoice:    16 * 1024 * 1024,
	CategorySticker:  500 * 1024,
	CategoryDocument: 100 * 1024 * 1024,
}

// Exact MIME allow-lists per category. A type outside its category's list
// is downgraded to document (the Cloud API takes any MIME as a document),
// never rejected.
var allowedMimes = map[Category][]string{
	CategoryImage:   {"image/jpeg", "image/png"},
	CategoryVideo:   {"video/mp4", "video/3gpp"},
	CategoryAudio:   {"audio/aac", "audio/amr", "audio/mpeg", "audio/mp4", "audio/ogg"},
	CategoryVoice:   {"audio/ogg"},
	CategorySticker: {"image/webp"},
}

// Fixed override table applied before prefix matching.
var mimeOverrides = map[string]Category{
	"image/webp": CategorySticker,
	"audio/ogg":  CategoryVoice,
}

// normalizeMime resolves a usable MIME type, sniffing content when the
// caller supplied none, and strips parameters like "; codecs=opus".
func normalizeMime(content []byte, filename, mimeType string) string {
	mt := strings.TrimSpace(mimeType)
	if mt == "" {
		if ext := filepath.Ext(filename); ext != "" {
			mt = mime.TypeByExtension(ext)
		}
	}
	if mt == "" && len(content) > 0 {
		mt = http.DetectContentType(content)
	}
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// DetectType categorizes content. Unrecognized or ambiguous types default
// to document.
func DetectType(content []byte, filename, mimeType string) Category {
	mt := normalizeMime(content, filename, mimeType)
	if cat, ok := mimeOverrides[mt]; ok {
		return cat
	}
	switch {
	case strings.HasPrefix(mt, "image/"):
		return CategoryImage
	case strings.HasPrefix(mt, "audio/"):
		return CategoryAudio
	case strings.HasPrefix(mt, "video/"):
		return CategoryVideo
	default:
		return CategoryDocument
	}
}

// Validate detects the category, checks size against the *detected*
// category's ceiling, then downgrades to document when the MIME type is
// outside the category's allow-list.
func Validate(content []byte, filename, mimeType string) (Category, error) {
	cat := DetectType(content, filename, mimeType)
	size := int64(len(content))

	if limit := sizeLimits[cat]; size > limit {
		return cat, fmt.Errorf("%w: %s payload is %d bytes, limit %d", ErrSizeExceeded, cat, size, limit)
	}

	if cat == CategoryDocument {
		return cat, nil
	}
	mt := normalizeMime(content, filename, mimeType)
	for _, allowed := range allowedMimes[cat] {
		if mt == allowed {
			return cat, nil
		}
	}
	return CategoryDocument, nil
}
