package documents

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

var titleCaser = cases.Title(language.English)

// DisplayTitle normalizes a raw source title for listings: Unicode NFC,
// collapsed whitespace, title case. Government registries ship titles in
// wildly inconsistent casing, so everything is folded through one caser.
func DisplayTitle(raw string) string {
	cleaned := norm.NFC.String(strings.TrimSpace(raw))
	if cleaned == "" {
		return "Untitled Document"
	}
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	return titleCaser.String(cleaned)
}

// SortByTitle orders documents by display title using locale-aware,
// case-insensitive collation, with the ID as tiebreaker.
func SortByTitle(docs []Document) {
	collator := collate.New(language.English, collate.IgnoreCase)
	collator.Sort(byTitle(docs))
}

type byTitle []Document

func (s byTitle) Len() int      { return len(s) }
func (s byTitle) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s byTitle) Bytes(i int) []byte {
	return []byte(DisplayTitle(s[i].Title) + "\x00" + s[i].ID)
}
