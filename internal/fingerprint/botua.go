package fingerprint

import "strings"

// Substring tokens whose presence in a user agent marks it as automated.
// Grouped by kind: HTTP tooling and script runtimes, headless/automation
// frameworks, and well-known crawlers.
var (
	toolingTokens = []string{
		"bot", "crawler", "spider", "scraper", "curl", "wget", "python",
		"perl", "ruby", "php", "asp", "node", "requests", "http-client",
		"axios",
	}

	headlessTokens = []string{
		"headless", "phantom", "selenium", "playwright", "puppeteer",
		"nightmarejs",
		// Common misspelling seen in homegrown automation UAs; matched in
		// addition to the correct spelling.
		"selenuim",
	}

	crawlerTokens = []string{
		"googlebot", "bingbot", "slurp", "duckduckbot", "baiduspider",
		"yandexbot", "sogoubot", "exabot",
	}
)

// BotUserAgent reports whether the user agent looks like an automated
// client. Matching is case-insensitive substring containment; "java" gets a
// linear scan instead of a token because RE2 has no negative lookahead and
// "javascript" must not match.
func BotUserAgent(userAgent string) bool {
	ua := strings.ToLower(userAgent)

	for _, group := range [][]string{toolingTokens, headlessTokens, crawlerTokens} {
		for _, token := range group {
			if strings.Contains(ua, token) {
				return true
			}
		}
	}

	return containsJavaNotJavascript(ua)
}

// containsJavaNotJavascript reports whether ua contains "java" at a position
// not immediately followed by "script". ua must already be lowercase.
func containsJavaNotJavascript(ua string) bool {
	for i := 0; ; {
		j := strings.Index(ua[i:], "java")
		if j < 0 {
			return false
		}
		pos := i + j
		if !strings.HasPrefix(ua[pos+len("java"):], "script") {
			return true
		}
		i = pos + len("java")
	}
}
