package core

import (
	"math"
	"os"
	"path/filepath"
	"strings"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// RoundDecimal rounds f to 2 decimal places, the precision of weights and grades.
func RoundDecimal(f float64) float64 {
	return math.Round(f*100) / 100
}

// ProjectRoot walks up from the working directory until it finds the directory holding go.mod.
// go test runs inside the package directory, so relative paths cannot be trusted.
// Falls back to the working directory.
func ProjectRoot() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return wd
		}
		dir = parent
	}
}
