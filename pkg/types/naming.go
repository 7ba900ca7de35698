package types

import (
	"strings"
	"unicode"
)

// LowerCamel converts a remote field or table name such as "Release Year"
// into the key used in content documents ("releaseYear"). Runs of
// non-alphanumeric characters separate words.
func LowerCamel(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var b strings.Builder
	for i, w := range words {
		if i == 0 {
			b.WriteString(strings.ToLower(w))
			continue
		}
		rs := []rune(w)
		b.WriteRune(unicode.ToUpper(rs[0]))
		b.WriteString(string(rs[1:]))
	}
	return b.String()
}
