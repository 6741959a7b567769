// Package classifier scores a submission payload for bot-likeness using
// structural and lexical rules. It is the first stage of the submission
// guard: pure computation, no storage, no side effects.
package classifier

import (
	"strings"
	"unicode/utf8"
)

// Submission is the payload under classification. Honeypot is a hidden form
// field real users never fill; any non-empty value is a bot signal.
type Submission struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Honeypot string `json:"honeypot"`
}

// Result is the classification outcome. Reason is empty when IsBot is false.
type Result struct {
	IsBot  bool   `json:"isBot"`
	Reason string `json:"reason,omitempty"`
}

// Structural limits. Submissions outside these bounds are treated as
// automated: too short means a lazy generator, too long means spam paste.
const (
	MinTitleLen   = 3
	MinContentLen = 10
	MaxTitleLen   = 300
	MaxContentLen = 5000

	// MaxSpecialCharRatio is the highest tolerated share of characters
	// outside the word/space/basic-punctuation class.
	MaxSpecialCharRatio = 0.3
)

// check pairs a detection function with the human-readable reason reported
// to the caller on match.
type check struct {
	name   string
	reason string
	match  func(c *Classifier, s Submission) bool
}

// checks is the ordered rule list. Order matters: the first match wins, and
// the cheap structural rules run before the ratio computation.
var checks = []check{
	{name: "honeypot", reason: "Honeypot field filled", match: func(_ *Classifier, s Submission) bool {
		return strings.TrimSpace(s.Honeypot) != ""
	}},
	{name: "title_short", reason: "Title too short", match: func(_ *Classifier, s Submission) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s.Title)) < MinTitleLen
	}},
	{name: "content_short", reason: "Content too short", match: func(_ *Classifier, s Submission) bool {
		return utf8.RuneCountInString(strings.TrimSpace(s.Content)) < MinContentLen
	}},
	{name: "oversize", reason: "Content too long", match: func(_ *Classifier, s Submission) bool {
		return utf8.RuneCountInString(s.Title) > MaxTitleLen ||
			utf8.RuneCountInString(s.Content) > MaxContentLen
	}},
	{name: "spam", reason: "Spam content detected", match: func(c *Classifier, s Submission) bool {
		return c.spamContent(s.Title) || c.spamContent(s.Content)
	}},
	{name: "char_ratio", reason: "Suspicious character patterns", match: func(_ *Classifier, s Submission) bool {
		return specialCharRatio(s.Title+s.Content) > MaxSpecialCharRatio
	}},
}

// Classifier applies the rule list. The keyword set is configurable so
// deployments can extend the stock list without a rebuild.
type Classifier struct {
	keywords []string
}

// New returns a classifier using the stock spam keyword list.
func New() *Classifier {
	return NewWithKeywords(nil)
}

// NewWithKeywords returns a classifier matching the stock keyword list plus
// extra. Extra keywords are lowercased; matching is case-insensitive
// substring containment.
func NewWithKeywords(extra []string) *Classifier {
	kw := make([]string, 0, len(spamKeywords)+len(extra))
	kw = append(kw, spamKeywords...)
	for _, k := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			kw = append(kw, k)
		}
	}
	return &Classifier{keywords: kw}
}

// Classify runs the rule list against s and returns the first triggered
// reason, or a clean result when no rule fires. It never fails: a rejection
// is a value, not an error.
func (c *Classifier) Classify(s Submission) Result {
	for _, chk := range checks {
		if chk.match(c, s) {
			return Result{IsBot: true, Reason: chk.reason}
		}
	}
	return Result{}
}
