// Package fingerprint derives a best-effort device identity from client
// environment attributes. The identity is a heuristic stand-in for an IP
// address in a setting with no authenticated network identity: two devices
// with identical attributes collide, and the hash is deliberately not
// cryptographic. It is a blocking key, not a security boundary.
package fingerprint

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
)

// Attributes is the fixed ordered tuple of client signals the basic
// fingerprint is derived from. All fields come from the submitting client
// and are untrusted.
type Attributes struct {
	UserAgent             string `json:"userAgent"`
	Language              string `json:"language"`
	TimezoneOffsetMinutes int    `json:"timezoneOffset"`
	ScreenWidth           int    `json:"screenWidth"`
	ScreenHeight          int    `json:"screenHeight"`
	HardwareConcurrency   int    `json:"hardwareConcurrency"`
}

// Basic derives the device fingerprint from attrs. It is a pure function:
// identical attributes always produce the identical fingerprint. The digest
// is the lowercase hex form of a 32-bit rolling hash over the pipe-joined
// attribute tuple.
func Basic(attrs Attributes) string {
	cores := "unknown"
	if attrs.HardwareConcurrency > 0 {
		cores = strconv.Itoa(attrs.HardwareConcurrency)
	}

	components := []string{
		attrs.UserAgent,
		attrs.Language,
		strconv.Itoa(attrs.TimezoneOffsetMinutes),
		fmt.Sprintf("%dx%d", attrs.ScreenWidth, attrs.ScreenHeight),
		cores,
	}

	return rollingHash(strings.Join(components, "|"))
}

// rollingHash computes h = (h<<5) - h + c over the UTF-16 code units of s,
// truncated to 32 bits at every step, and formats the absolute value as
// lowercase hex. UTF-16 code units keep the digest stable for user agents
// and locales containing non-ASCII text.
func rollingHash(s string) string {
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = (h << 5) - h + int32(c)
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 16)
}
