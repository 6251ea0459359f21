package ai

import "regexp"

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Order matters: SSNs would otherwise be caught by the phone pattern.
var redactions = []redaction{
	{regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`), "[NAME]"},
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "[SSN]"},
	{regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`), "[PHONE]"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[EMAIL]"},
	{regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`), "[DATE]"},
	{regexp.MustCompile(`\b[A-Z]{2}\d{7,10}\b`), "[MIL_ID]"},
	{regexp.MustCompile(`(?i)\bMRN:?\s*\d+\b`), "[MRN]"},
}

// Anonymize masks personal identifiers in free text before it leaves the
// process.
func Anonymize(text string) string {
	for _, r := range redactions {
		text = r.pattern.ReplaceAllString(text, r.replacement)
	}
	return text
}
