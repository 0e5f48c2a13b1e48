// Package match holds the keyword relevance filter.
package match

import "strings"

// KeywordSet is a set of lowercase trimmed search terms. An empty set matches
// nothing: callers treat that as "nothing to send", not an error.
type KeywordSet []string

// Parse splits a comma-separated keyword string the way users type it into
// the bot ("golang, backend , SRE").
func Parse(raw string) KeywordSet {
	return New(strings.Split(raw, ","))
}

// New normalizes terms: trim, lowercase, drop empties and duplicates.
func New(terms []string) KeywordSet {
	seen := map[string]bool{}
	var out KeywordSet
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func (k KeywordSet) Empty() bool { return len(k) == 0 }

// Matches reports whether any keyword is a case-insensitive substring of s.
// Substring on purpose: a false positive costs one extra alert, a false
// negative loses the job for good once the email is marked read.
func (k KeywordSet) Matches(s string) bool {
	if len(k) == 0 {
		return false
	}
	ls := strings.ToLower(s)
	for _, kw := range k {
		if strings.Contains(ls, kw) {
			return true
		}
	}
	return false
}

func (k KeywordSet) String() string { return strings.Join(k, ", ") }
