// Package storage keeps uploaded images. Blobs are addressed by a key such as
// "menu-items/<uuid>.jpg" and served under URLPrefix.
package storage

import (
	"context"
	"errors"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"food-ordering-api/apperr"
)

// URLPrefix is the public route blobs are served from.
const URLPrefix = "/uploads/"

// MaxImageSize bounds a single uploaded image.
const MaxImageSize = 5 << 20

var ErrNotFound = errors.New("blob not found")

type Store interface {
	Save(ctx context.Context, key string, body io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Upload is an image received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true}

// Validate checks the upload is an image of acceptable size. field names the
// form field in the returned error.
func (u *Upload) Validate(field string) error {
	ext := strings.ToLower(path.Ext(u.Filename))
	if !imageExts[ext] || (u.ContentType != "" && !strings.HasPrefix(u.ContentType, "image/")) {
		return apperr.Validation(apperr.Field(field, "Only image files are allowed"))
	}
	if u.Size > MaxImageSize {
		return apperr.Validation(apperr.Field(field, "Image must be 5MB or smaller"))
	}
	return nil
}

// NewKey returns a fresh key in dir that keeps the upload's extension.
func NewKey(dir, filename string) string {
	return dir + "/" + uuid.NewString() + strings.ToLower(path.Ext(filename))
}

// URL is the public path of key.
func URL(key string) string { return URLPrefix + key }

// KeyFromURL reverses URL; ok is false for images not held by this service.
func KeyFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, URLPrefix) {
		return "", false
	}
	key := strings.TrimPrefix(url, URLPrefix)
	return key, ValidKey(key)
}

// ValidKey rejects anything that could escape the blob namespace.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	if path.Clean(key) != key {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return false
		}
	}
	return true
}

// ContentType guesses a MIME type from the key's extension.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
