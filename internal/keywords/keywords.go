// Package keywords implements the naive keyword-bag used for memory
// retrieval. It is deliberately a token-overlap matcher, not an embedding:
// downstream ranking depends on exact-substring semantics, so do not swap
// this for anything smarter without revisiting every retrieval test.
package keywords

import (
	"regexp"
	"strings"
)

var nonWordPattern = regexp.MustCompile(`[^\w\s]`)

// stopWords is a fixed set of common English function words and pronouns.
// Tokens in this set never become search keywords.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "and", "for", "are", "but", "not", "you", "all", "can",
		"had", "her", "was", "one", "our", "out", "day", "get", "has",
		"him", "his", "how", "man", "new", "now", "old", "see", "two",
		"way", "who", "its", "did", "yes", "she", "may", "say", "each",
		"which", "their", "will", "other", "about", "many", "then",
		"them", "these", "some", "would", "like", "into", "more", "your",
		"what", "know", "just", "than", "been", "have", "this", "that",
		"they", "with", "from", "were", "there", "when", "where", "why",
		"does", "doing", "should", "could", "ours", "yours", "theirs",
		"mine", "hers", "himself", "herself", "itself", "myself",
		"yourself", "ourselves", "themselves", "being", "because",
		"very", "over", "under", "again", "once", "here", "most", "such",
		"only", "same", "too", "also", "any", "both",
	} {
		stopWords[w] = struct{}{}
	}
}

// Extract tokenizes free text into deduplicated search keywords.
//
// The pipeline is: lowercase, strip non-word/non-space characters, split on
// whitespace, drop tokens of length <= 2, drop stop-words, deduplicate
// preserving first-seen order. No stemming, no synonym expansion.
func Extract(text string) []string {
	lowered := strings.ToLower(text)
	cleaned := nonWordPattern.ReplaceAllString(lowered, "")

	seen := make(map[string]struct{})
	var out []string
	for _, tok := range strings.Fields(cleaned) {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// Score counts how many of the given keywords appear as case-insensitive
// substrings of text. Each keyword counts at most once.
func Score(text string, kws []string) int {
	lowered := strings.ToLower(text)
	score := 0
	for _, kw := range kws {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			score++
		}
	}
	return score
}

// IsStopWord reports whether the token is in the fixed stop-word set.
func IsStopWord(token string) bool {
	_, ok := stopWords[strings.ToLower(token)]
	return ok
}
