package protocol

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespace = regexp.MustCompile(`\s+`)

// Sanitize makes a peer supplied string safe to log or display: control
// characters are escaped and runs of whitespace collapse to one space.
func Sanitize(s string) string {
	s = strings.NewReplacer(
		"\r", `\r`,
		"\t", `\t`,
		"\b", `\b`,
		"\f", `\f`,
	).Replace(s)
	return whitespace.ReplaceAllString(s, " ")
}

// asciiFold decomposes, drops combining marks and anything outside
// printable ASCII. Chained transformers keep state, so one is built per call.
func asciiFold() transform.Transformer {
	return transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool {
			return r > unicode.MaxASCII || !unicode.IsPrint(r)
		})),
	)
}

// ASCIIName folds a full player name into the short form carried by IAM:
// accents are stripped ("Jürgen" becomes "Jurgen"), other non ASCII
// characters are dropped and the result is cut to MaxNameLength.
func ASCIIName(name string) string {
	folded, _, err := transform.String(asciiFold(), name)
	if err != nil {
		folded = ""
	}
	folded = strings.TrimSpace(Sanitize(folded))
	if len(folded) > MaxNameLength {
		folded = folded[:MaxNameLength]
	}
	return folded
}
