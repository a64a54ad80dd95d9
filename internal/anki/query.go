package anki

import (
	"fmt"
	"strings"
)

var searchEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`*`, `\*`,
	`_`, `\_`,
	`:`, `\:`,
)

// EscapeSearch escapes the characters Anki's search syntax treats specially.
func EscapeSearch(s string) string {
	return searchEscaper.Replace(s)
}

// DuplicateQuery builds an exact-match search for notes of noteType in deck
// whose field equals value.
func DuplicateQuery(noteType, deck, field, value string) string {
	return fmt.Sprintf(`"note:%s" "deck:%s" "%s:%s"`,
		EscapeSearch(noteType), EscapeSearch(deck), EscapeSearch(field), EscapeSearch(value))
}
