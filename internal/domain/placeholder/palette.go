// Package placeholder builds the coarse color mosaics shown while the
// real image streams in, and manages their reveal/teardown lifecycle.
package placeholder

import "strings"

// ParsePalette extracts the usable colors from a palette descriptor.
// Two formats appear in the wild: whitespace-separated 6-hex-digit
// tokens, and one unbroken hex blob read in 2-character channel groups
// (three groups per color). Malformed tokens and trailing partial
// colors are dropped without complaint; the result may be empty.
func ParsePalette(descriptor string) []string {
	fields := strings.Fields(descriptor)
	if len(fields) == 1 && len(fields[0]) > 6 && isHex(fields[0]) {
		return splitBlob(fields[0])
	}

	var colors []string
	for _, tok := range fields {
		if len(tok) == 6 && isHex(tok) {
			colors = append(colors, strings.ToLower(tok))
		}
	}
	return colors
}

func splitBlob(blob string) []string {
	colors := make([]string, 0, len(blob)/6)
	for i := 0; i+6 <= len(blob); i += 6 {
		colors = append(colors, strings.ToLower(blob[i:i+6]))
	}
	return colors
}

func isHex(s string) bool {
	// Whole colors need an even count of channel digits.
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
