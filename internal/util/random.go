package util

import (
	"math/rand/v2"
	"strings"
)

// ControlIDPrefix marks custom ids generated for interactive message controls.
const ControlIDPrefix = "sc:"

// GenerateRandomID generates a random ID with the specified prefix and hex length.
// The returned ID will be in the format: "{prefix}{hex_string}".
func GenerateRandomID(prefix string, hexLength int) string {
	return prefix + GenerateRandomHex(hexLength)
}

// GenerateRandomHex generates a random hexadecimal string of the specified length.
// Uses math/rand/v2; ids are not security sensitive.
func GenerateRandomHex(length int) string {
	if length <= 0 {
		return ""
	}

	const hexChars = "0123456789abcdef"
	var builder strings.Builder
	builder.Grow(length)

	for i := 0; i < length; i++ {
		builder.WriteByte(hexChars[rand.IntN(16)])
	}

	return builder.String()
}

// GenerateControlID generates a custom id for a button or select menu.
// Discord limits custom ids to 100 characters.
func GenerateControlID() string {
	return GenerateRandomID(ControlIDPrefix, 32)
}
