package brain

import (
	"strings"
	"unicode"
)

// salutations is the canonical allow-list of pure greeting/acknowledgement
// tokens. A query must reduce to one of these (plus punctuation) before a
// "skip retrieval" verdict is honored.
var salutations = []string{
	"bonjour",
	"bonsoir",
	"salut",
	"coucou",
	"hello",
	"hi",
	"hey",
	"merci",
	"merci beaucoup",
	"thanks",
	"thank you",
	"ok",
	"d'accord",
	"super",
	"parfait",
	"génial",
	"top",
	"cool",
	"ça marche",
	"au revoir",
	"bye",
	"à bientôt",
	"bonne journée",
	"bonne soirée",
}

// SafeRequiresSearch applies the invariant-preserving override on top of an
// analyzer's verdict. A "search required" verdict is accepted unconditionally;
// a "skip" verdict is honored only if the raw query independently re-checks as
// a pure salutation. No single classifier is trusted with a pure "do nothing"
// decision.
func SafeRequiresSearch(query string, analyzerVerdict bool) bool {
	if analyzerVerdict {
		return true
	}
	return !IsPureSalutation(query)
}

// IsPureSalutation reports whether the query is recognized as a salutation or
// acknowledgement with no trailing question content: an exact allow-list
// match after trimming trailing punctuation, or an allow-listed prefix where
// everything after the matched token is only punctuation and whitespace.
func IsPureSalutation(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return false
	}
	// A question mark anywhere means there is a real question.
	if strings.ContainsRune(q, '?') {
		return false
	}

	trimmed := strings.TrimRightFunc(q, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r)
	})

	for _, s := range salutations {
		if trimmed == s {
			return true
		}
		if strings.HasPrefix(q, s) && onlyPunctOrSpace(q[len(s):]) {
			return true
		}
	}
	return false
}

func onlyPunctOrSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
