// Package policy scrubs high-risk financial identifiers from text before it
// is persisted or embedded.
package policy

import "regexp"

var (
	cardPattern = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	ssnPattern  = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// RedactSensitive masks card and social-security numbers. Emails and phone
// numbers stay intact: they are the contact data the knowledge base exists
// to answer questions about.
func RedactSensitive(input string) (redacted string, changed bool) {
	out := input

	next := cardPattern.ReplaceAllString(out, "[REDACTED_CARD]")
	changed = changed || next != out
	out = next

	next = ssnPattern.ReplaceAllString(out, "[REDACTED_SSN]")
	changed = changed || next != out
	out = next

	return out, changed
}
