// Package command detects explicit "remember"/"note" directives in raw user
// input. Matching is deliberately permissive: a trigger phrase anywhere in a
// longer message fires, and nothing checks that the remembered content is
// true, benign, or even about the speaker. That permissiveness is the
// injection surface this project demonstrates, so keep it faithful.
package command

import (
	"regexp"
	"strings"
)

// Kind tags the directive variant that produced a command.
type Kind string

const (
	KindRemember Kind = "remember"
	KindNote     Kind = "note"
)

// MemoryCommand is the transient result of a detector match. It is consumed
// immediately by the orchestrator to materialize a memory record and is
// never persisted itself.
type MemoryCommand struct {
	Kind        Kind
	Description string
	Content     string
}

// rule pairs a trigger pattern with an extractor building the command from
// its capture groups.
type rule struct {
	pattern *regexp.Regexp
	extract func(groups []string) (MemoryCommand, bool)
}

// noteSplitPattern splits "Y is Z" note bodies into description and content.
var noteSplitPattern = regexp.MustCompile(`(?i)^(.+?)\s+is\s+(.+)$`)

// rules is the ordered pattern list. First match wins; reorder deliberately,
// never incidentally.
var rules = []rule{
	{
		pattern: regexp.MustCompile(`(?i)remember that\s+(.+)`),
		extract: func(groups []string) (MemoryCommand, bool) {
			content := strings.TrimSpace(groups[1])
			if content == "" {
				return MemoryCommand{}, false
			}
			return MemoryCommand{Kind: KindRemember, Content: content}, true
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)(?:please\s+)?remember\s+(?:that\s+my|my|that)\s+(.+)`),
		extract: func(groups []string) (MemoryCommand, bool) {
			content := strings.TrimSpace(groups[1])
			if content == "" {
				return MemoryCommand{}, false
			}
			return MemoryCommand{Kind: KindRemember, Content: content}, true
		},
	},
	{
		pattern: regexp.MustCompile(`(?i)make a note\s+(?:that|about)\s+(.+)`),
		extract: func(groups []string) (MemoryCommand, bool) {
			body := strings.TrimSpace(groups[1])
			if body == "" {
				return MemoryCommand{}, false
			}
			if parts := noteSplitPattern.FindStringSubmatch(body); parts != nil {
				return MemoryCommand{
					Kind:        KindNote,
					Description: strings.TrimSpace(parts[1]),
					Content:     strings.TrimSpace(parts[2]),
				}, true
			}
			return MemoryCommand{Kind: KindNote, Content: body}, true
		},
	},
}

// Detect matches input against the ordered rule list and returns the first
// command produced, or ok=false when no trigger phrase is present.
func Detect(input string) (MemoryCommand, bool) {
	for _, r := range rules {
		groups := r.pattern.FindStringSubmatch(input)
		if groups == nil {
			continue
		}
		if cmd, ok := r.extract(groups); ok {
			return cmd, true
		}
	}
	return MemoryCommand{}, false
}
