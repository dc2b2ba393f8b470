// Package validation provides centralized input validation for the
// snapshot updater.
package validation

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// Milieu Validation
// =============================================================================

// ValidateMilieu validates a milieu code (IW, M0, M1105, ...). Milieu codes
// become directory names, so the rules are strict.
func ValidateMilieu(code string) error {
	if code == "" {
		return fmt.Errorf("milieu code cannot be empty")
	}
	if len(code) > 16 {
		return fmt.Errorf("milieu code too long: maximum 16 characters allowed")
	}
	for i, r := range code {
		if !unicode.IsUpper(r) && !unicode.IsDigit(r) {
			return fmt.Errorf("invalid character '%c' at position %d: milieu codes are upper-case alphanumeric", r, i)
		}
	}
	return nil
}

// =============================================================================
// File Name Validation
// =============================================================================

// ValidateFileName validates an encoded snapshot file name. Names reaching
// this check have already been percent-encoded, so any remaining character
// that is illegal on Windows, Linux or macOS is a bug upstream of the caller.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file name cannot be empty")
	}
	if len(name) > 255 {
		return fmt.Errorf("file name too long: maximum 255 characters allowed")
	}

	if name == "." || name == ".." {
		return fmt.Errorf("file name cannot be '.' or '..'")
	}

	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("file name cannot start with '.'")
	}

	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("file name cannot contain control characters at position %d", i)
		}
		switch r {
		case '/', '\\', '<', '>', ':', '"', '|', '?', '*':
			return fmt.Errorf("file name cannot contain '%c' at position %d", r, i)
		}
	}

	// Windows strips trailing dots and spaces, which would silently alias
	// two different sector names onto one file.
	if strings.HasSuffix(name, ".") || strings.HasSuffix(name, " ") {
		return fmt.Errorf("file name cannot end with '.' or ' '")
	}

	return nil
}

// =============================================================================
// Sector Name Validation
// =============================================================================

// ValidateSectorName validates a canonical sector name from a universe
// listing before it is used for anything.
func ValidateSectorName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("sector name cannot be empty")
	}
	for i, r := range name {
		if r < 32 || r == 127 {
			return fmt.Errorf("sector name cannot contain control characters at position %d", i)
		}
	}
	return nil
}
