package conversation

import (
	"strings"
	"unicode/utf8"

	"github.com/deskflow-io/deskflow/pkg/protocol"
)

const (
	maxTitleLen      = 60
	truncateTitleLen = 50
)

// categoryKeywords drives the category suggestion. Declaration order
// matters: ties are broken by the first-declared category.
var categoryKeywords = []struct {
	category protocol.TicketCategory
	keywords []string
}{
	{protocol.CategoryTechnical, []string{
		"error", "not working", "broken", "slow", "install", "upgrade",
		"connection", "timeout", "server", "load",
	}},
	{protocol.CategoryBilling, []string{
		"invoice", "charge", "payment", "refund", "billing",
		"subscription", "price", "credit card", "receipt",
	}},
	{protocol.CategoryAccount, []string{
		"account", "password", "login", "sign in", "profile",
		"username", "locked out", "two-factor", "email address",
	}},
	{protocol.CategoryFeatureRequest, []string{
		"feature", "would be nice", "suggestion", "improve",
		"enhancement", "add support", "wish", "could you add",
	}},
	{protocol.CategoryBugReport, []string{
		"bug", "crash", "glitch", "unexpected", "incorrect",
		"wrong result", "freezes", "fails", "reproduce",
	}},
}

// SuggestCategory scores the combined issue text against the keyword
// sets and returns the category with the strictly highest count. Ties
// go to the first-declared category; zero matches yields general. The
// function is deterministic: identical input always yields the same
// category.
func SuggestCategory(text string) protocol.TicketCategory {
	lower := strings.ToLower(text)

	best := protocol.CategoryGeneral
	bestCount := 0
	for _, set := range categoryKeywords {
		count := 0
		for _, kw := range set.keywords {
			if strings.Contains(lower, kw) {
				count++
			}
		}
		if count > bestCount {
			best = set.category
			bestCount = count
		}
	}
	return best
}

// matchCategory reports the first category whose name or display label
// appears in the text, for users who answer a suggestion with a
// different category outright.
func matchCategory(text string) (protocol.TicketCategory, bool) {
	lower := strings.ToLower(text)
	for _, c := range protocol.Categories {
		name := strings.ReplaceAll(string(c), "_", " ")
		if strings.Contains(lower, name) || strings.Contains(lower, strings.ToLower(c.Label())) {
			return c, true
		}
	}
	return "", false
}

// affirmatives is the fixed set of phrases accepted as a "yes".
var affirmatives = map[string]bool{
	"yes":          true,
	"y":            true,
	"yeah":         true,
	"yep":          true,
	"sure":         true,
	"ok":           true,
	"okay":         true,
	"correct":      true,
	"right":        true,
	"confirm":      true,
	"sounds good":  true,
	"that's right": true,
}

// isAffirmative reports whether the input is an affirmation,
// case-insensitively and ignoring trailing punctuation.
func isAffirmative(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	t = strings.TrimRight(t, ".!")
	return affirmatives[t]
}

// DeriveTitle condenses an issue description into a ticket title:
// whitespace is collapsed; text of 60 characters or less is used as-is;
// otherwise the first sentence is used if it fits; otherwise the first
// 50 characters plus an ellipsis. Deriving a title from an
// already-derived title returns the same string.
func DeriveTitle(description string) string {
	collapsed := strings.Join(strings.Fields(description), " ")
	if len(collapsed) <= maxTitleLen {
		return collapsed
	}
	if idx := strings.Index(collapsed, "."); idx >= 0 {
		first := strings.TrimSpace(collapsed[:idx])
		if len(first) <= maxTitleLen {
			return first
		}
	}
	// Back off to a rune boundary so multi-byte text is never split.
	cut := truncateTitleLen
	for cut > 0 && !utf8.RuneStart(collapsed[cut]) {
		cut--
	}
	return collapsed[:cut] + "..."
}

// Progress reports how far along the intake sequence a step is, as a
// percentage rounded to the nearest whole number. The error state
// always reports zero.
func Progress(step protocol.ConversationStep) int {
	idx := step.Index()
	if idx < 0 {
		return 0
	}
	denom := len(protocol.Steps) - 1
	return (idx*100 + denom/2) / denom
}
