package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidDate(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2026-08-29", true},
		{"2026-01-01", true},
		{"2026-13-01", false},
		{"2026-02-30", false},
		{"08/29/2026", false},
		{"2026-8-29", false},
		{"", false},
		{"2026-08-29T10:00:00Z", false},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidDate(tc.input))
		})
	}
}

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo.jpg", "my_photo.jpg"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"café.png", "caf_.png"},
		{"under_score-dash.webp", "under_score-dash.webp"},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, SafeFilename(tc.input))
		})
	}
}

func TestSafeFilenameEmptyFallsBack(t *testing.T) {
	got := SafeFilename("")
	assert.NotEmpty(t, got)
	assert.Contains(t, got, "file_")
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 42, ParseInt("42", 0))
	assert.Equal(t, 7, ParseInt("not-a-number", 7))
	assert.Equal(t, 7, ParseInt("", 7))
}

func TestParseFloat(t *testing.T) {
	assert.Equal(t, 1.5, ParseFloat("1.5", 0))
	assert.Equal(t, 2.0, ParseFloat("x", 2.0))
}
