package http

import (
	"net/url"
	"strconv"
	"strings"

	"fengshui/internal/core"
)

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func recordPath(c core.Category, id string) string {
	return "/records/" + url.PathEscape(string(c)) + "/" + url.PathEscape(id)
}

func lookupCacheKey(version uint64, c core.Category, query string) string {
	var b strings.Builder
	b.WriteString(strconv.FormatUint(version, 10))
	b.WriteByte('|')
	b.WriteString(string(c))
	b.WriteByte('|')
	b.WriteString(strings.ToLower(strings.TrimSpace(query)))
	return b.String()
}
