package policy

import "regexp"

var (
	scriptPattern   = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	htmlTagPattern  = regexp.MustCompile(`(?s)<[^>]+>`)
	jsSchemePattern = regexp.MustCompile(`(?i)javascript:`)
)

// SanitizeContent strips script blocks, HTML-like tags, and javascript:
// scheme prefixes before text reaches the memory store.
//
// Whether this runs at all is a deployment choice (MEMJACK_SANITIZE_ON_WRITE).
// The vulnerable posture stores raw text; both postures are supported so the
// contrast can be studied.
func SanitizeContent(input string) (sanitized string, changed bool) {
	out := input

	// Scripts first, so the generic tag pass never leaves script bodies behind.
	next := scriptPattern.ReplaceAllString(out, "")
	changed = changed || next != out
	out = next

	next = htmlTagPattern.ReplaceAllString(out, "")
	changed = changed || next != out
	out = next

	next = jsSchemePattern.ReplaceAllString(out, "")
	changed = changed || next != out
	out = next

	return out, changed
}
