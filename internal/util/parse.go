package util

import (
	"regexp"
	"strconv"
	"time"
)

// ParseInt parses a string to an integer, returning defaultValue if parsing fails
func ParseInt(s string, defaultValue int) int {
	if val, err := strconv.Atoi(s); err == nil {
		return val
	}
	return defaultValue
}

// ParseFloat parses a string to a float64, returning defaultValue if parsing fails
func ParseFloat(s string, defaultValue float64) float64 {
	if val, err := strconv.ParseFloat(s, 64); err == nil {
		return val
	}
	return defaultValue
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether s is a well-formed YYYY-MM-DD day key.
func ValidDate(s string) bool {
	if !dateRe.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

var unsafeName = regexp.MustCompile(`[^\w.\-]+`)

// SafeFilename strips anything outside [A-Za-z0-9_.-] from an uploaded file
// name so it can be embedded in a storage path.
func SafeFilename(name string) string {
	cleaned := unsafeName.ReplaceAllString(name, "_")
	if cleaned == "" {
		return "file_" + strconv.FormatInt(time.Now().UnixMilli(), 10)
	}
	return cleaned
}
