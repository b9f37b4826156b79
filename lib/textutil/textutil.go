package textutil

import (
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.Trim(name, " \n\t")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return name
}

// SafeInt parses the leading digits of s, returning 0 on any garbage.
// Remote markup carries ids in attributes and hrefs with no guarantees.
func SafeInt(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	for i, c := range s {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}

var rankRegex = regexp.MustCompile(`[A-Z]`)

// NormalizeRank reduces a scraped rank marker ("Ранг: B", "b", " B ")
// to its single-letter grade, or "" when none is present.
func NormalizeRank(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	return rankRegex.FindString(s)
}
