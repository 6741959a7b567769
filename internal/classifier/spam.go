package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// spamKeywords is the stock list of phrases commonly seen in automated
// spam submissions. Matching is case-insensitive substring containment.
var spamKeywords = []string{
	"viagra", "casino", "lottery", "poker", "blackjack", "roulette",
	"buy now", "click here", "limited offer", "act now", "buy today",
	"free money", "make money fast", "work from home", "get rich quick",
	"click here now", "check out", "hot deals", "special offer",
	"best price", "order now", "call now", "apply now", "join now",
}

// Compiled once at package init and reused for every call, so they are safe
// for concurrent use.
var (
	// urlPattern matches explicit URLs, www. hosts, and the throwaway
	// top-level domains that dominate link spam.
	urlPattern = regexp.MustCompile(`(?i)https?://|www\.|\.(tk|ml|ga|cf)`)

	// specialCharPattern matches any character outside the word class,
	// whitespace, and basic sentence punctuation.
	specialCharPattern = regexp.MustCompile(`[^\w\s.,!?\-]`)
)

// spamContent reports whether text contains a spam keyword or a URL-ish
// pattern.
func (c *Classifier) spamContent(text string) bool {
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	return urlPattern.MatchString(text)
}

// specialCharRatio returns the share of characters in text that fall
// outside the word/space/punctuation class. Returns 0 for empty text.
func specialCharRatio(text string) float64 {
	total := utf8.RuneCountInString(text)
	if total == 0 {
		return 0
	}
	special := len(specialCharPattern.FindAllString(text, -1))
	return float64(special) / float64(total)
}

