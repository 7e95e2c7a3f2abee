package middleware

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateObjectName(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "cat.jpg", false},
		{"prefixed", "uploads/1748419200_cat.jpg", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
		{"traversal", "../etc/passwd", true},
		{"absolute", "/etc/passwd", true},
		{"control char", "cat\n.jpg", true},
		{"too long", strings.Repeat("a", 600), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateObjectName(tc.input)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateImageContentType(t *testing.T) {
	cases := []struct {
		input   string
		wantErr bool
	}{
		{"image/jpeg", false},
		{"image/png", false},
		{"image/webp", false},
		{"IMAGE/JPEG", false},
		{"image/jpeg; charset=binary", false},
		{"application/pdf", true},
		{"text/html", true},
		{"", true},
		{"not a mime", true},
	}
	for _, tc := range cases {
		err := ValidateImageContentType(tc.input)
		if tc.wantErr {
			assert.Error(t, err, tc.input)
		} else {
			assert.NoError(t, err, tc.input)
		}
	}
}

func TestValidateLimit(t *testing.T) {
	assert.NoError(t, ValidateLimit(1))
	assert.NoError(t, ValidateLimit(100))
	assert.Error(t, ValidateLimit(0))
	assert.Error(t, ValidateLimit(-5))
	assert.Error(t, ValidateLimit(101))
}

func TestValidationErrorMessage(t *testing.T) {
	err := ValidateLimit(0)
	assert.Contains(t, err.Error(), "limit")
}
