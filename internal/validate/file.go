package validate

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Media validation errors
var (
	ErrInvalidMIMEType = errors.New("invalid MIME type")
	ErrFileTooLarge    = errors.New("file too large")
	ErrFileTooSmall    = errors.New("file too small")
)

// Media types accepted for advertisement attachments.
const (
	MIMEImageJPEG = "image/jpeg"
	MIMEImagePNG  = "image/png"
	MIMEImageGIF  = "image/gif"
	MIMEImageWebP = "image/webp"
	MIMEVideoMP4  = "video/mp4"
	MIMEVideoWebM = "video/webm"
)

// AllowedImageTypes defines allowed image MIME types.
var AllowedImageTypes = []string{MIMEImageJPEG, MIMEImagePNG, MIMEImageGIF, MIMEImageWebP}

// AllowedVideoTypes defines allowed video MIME types.
var AllowedVideoTypes = []string{MIMEVideoMP4, MIMEVideoWebM}

// AllowedMediaTypes is every type an advertisement may carry.
var AllowedMediaTypes = append(append([]string{}, AllowedImageTypes...), AllowedVideoTypes...)

// MIMEType normalizes mimeType (parameters dropped, lowercased) and checks it
// against allowed.
func MIMEType(mimeType string, allowed []string) (string, error) {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if mimeType == "" {
		return "", ErrEmpty
	}
	if !slices.Contains(allowed, mimeType) {
		return "", fmt.Errorf("%w: %s", ErrInvalidMIMEType, mimeType)
	}
	return mimeType, nil
}

// FileSize checks 0 < size <= maxBytes.
func FileSize(sizeBytes, maxBytes int64) error {
	if sizeBytes <= 0 {
		return ErrFileTooSmall
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return fmt.Errorf("%w: %d bytes, maximum is %d", ErrFileTooLarge, sizeBytes, maxBytes)
	}
	return nil
}

// IsImage reports whether mimeType is an accepted image type.
func IsImage(mimeType string) bool {
	return slices.Contains(AllowedImageTypes, mimeType)
}
