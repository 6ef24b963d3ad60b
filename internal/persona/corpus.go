package persona

import (
	"strings"
	"unicode"
)

// DefaultCharBudget bounds the joined corpus handed to the model.
const DefaultCharBudget = 5000

// allowedPunct are the punctuation characters kept by Sanitize.
const allowedPunct = `.,!?'"-:;()@#&%$/+=_`

// Sanitize keeps letters, digits and a fixed punctuation set. Whitespace runs
// collapse into a single space; everything else is removed.
func Sanitize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(allowedPunct, r):
		default:
			continue
		}
		if space && sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		space = false
		sb.WriteRune(r)
	}
	return sb.String()
}

// BuildCorpus sanitizes posts, drops the ones left empty, joins the rest with
// newlines and truncates the result to budget characters. The earliest posts
// are kept. A budget <= 0 uses DefaultCharBudget.
func BuildCorpus(posts []string, budget int) string {
	if budget <= 0 {
		budget = DefaultCharBudget
	}
	clean := make([]string, 0, len(posts))
	for _, p := range posts {
		if s := Sanitize(p); s != "" {
			clean = append(clean, s)
		}
	}
	return truncateRunes(strings.Join(clean, "\n"), budget)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
