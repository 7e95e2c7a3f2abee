package middleware

import (
	"fmt"
	"mime"
	"strings"
)

// Input validation and sanitization utilities

// ValidationError dipetakan ke HTTP 400 di router
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

const maxObjectNameLen = 512

// allowed image content types untuk upload
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateObjectName checks the object key a client wants to upload/analyze
func ValidateObjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "filename", Message: "cannot be empty"}
	}
	if len(name) > maxObjectNameLen {
		return &ValidationError{Field: "filename", Message: fmt.Sprintf("longer than %d characters", maxObjectNameLen)}
	}

	// Block path traversal
	if strings.Contains(name, "..") {
		return &ValidationError{Field: "filename", Message: "path traversal is not allowed"}
	}
	if strings.HasPrefix(name, "/") {
		return &ValidationError{Field: "filename", Message: "must be a relative key"}
	}

	// Block control characters
	for _, r := range name {
		if r < 32 || r == 127 {
			return &ValidationError{Field: "filename", Message: "control characters are not allowed"}
		}
	}
	return nil
}

// ValidateImageContentType checks MIME type against the image allow-list
func ValidateImageContentType(ct string) error {
	if strings.TrimSpace(ct) == "" {
		return &ValidationError{Field: "filetype", Message: "cannot be empty"}
	}
	parsed, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return &ValidationError{Field: "filetype", Message: "not a valid MIME type"}
	}
	if !allowedImageTypes[strings.ToLower(parsed)] {
		return &ValidationError{Field: "filetype", Message: "only JPEG, PNG, GIF and WebP images are allowed"}
	}
	return nil
}

// ValidateLimit validates the history page size. HTTP surface menolak nilai
// invalid, bukan silently clamp, supaya kontrak limit>0 kelihatan oleh caller.
func ValidateLimit(limit int) error {
	if limit <= 0 {
		return &ValidationError{Field: "limit", Message: "must be greater than zero"}
	}
	if limit > 100 {
		return &ValidationError{Field: "limit", Message: "must be 100 or less"}
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Remove control characters
	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}
