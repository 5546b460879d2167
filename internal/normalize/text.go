// Package normalize holds the text canonicalization rules shared by the
// registry store and the ingestion path. Key matching downstream is exact, so
// every string goes through FixEncoding before it is compared or persisted.
package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// encodingFixes maps UTF-8 text that was decoded as Latin-1/Windows-1252 and
// re-encoded back to the intended characters. Whole-word entries seen in
// partner data come first; the generic two-rune artifacts follow.
var encodingFixes = []string{
	"YaoundÃ©", "Yaoundé",
	"CÃ´te d'Ivoire", "Côte d'Ivoire",
	"HouphouÃ«t", "Houphouët",
	"UniversitÃ¤t", "Universität",
	"â€™", "’",
	"â€œ", "“",
	"â€\u009d", "”",
	"â€“", "–",
	"â€”", "—",
	"Ã©", "é",
	"Ã¨", "è",
	"Ãª", "ê",
	"Ã«", "ë",
	"Ã¡", "á",
	"Ã¢", "â",
	"Ã¤", "ä",
	"Ã£", "ã",
	"Ã¥", "å",
	"Ã§", "ç",
	"Ã­", "í",
	"Ã®", "î",
	"Ã¯", "ï",
	"Ã±", "ñ",
	"Ã³", "ó",
	"Ã´", "ô",
	"Ã¶", "ö",
	"Ãµ", "õ",
	"Ã¸", "ø",
	"Ãº", "ú",
	"Ã»", "û",
	"Ã¼", "ü",
	"ÃŸ", "ß",
	"Ã‰", "É",
	"Ã–", "Ö",
	"Ãœ", "Ü",
	"Ã\u00a0", "à",
}

var encodingReplacer = strings.NewReplacer(encodingFixes...)

// FixEncoding repairs known mis-decoded byte sequences and returns NFC text.
func FixEncoding(s string) string {
	if s == "" {
		return s
	}
	return norm.NFC.String(encodingReplacer.Replace(s))
}

// institutionFixes are literal substitutions applied to institution names.
var institutionFixes = strings.NewReplacer(
	" & ", " and ",
	"University of the Witwatersand", "University of the Witwatersrand",
)

// CollapseSpace trims s and folds internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// CanonicalInstitution applies the institution-name table.
func CanonicalInstitution(s string) string {
	return institutionFixes.Replace(CollapseSpace(s))
}

// TitleCase title-cases a city name ("cape town" -> "Cape Town").
// A Caser is stateful, so one is built per call.
func TitleCase(s string) string {
	s = CollapseSpace(s)
	if s == "" {
		return s
	}
	return cases.Title(language.Und).String(s)
}

// HeaderKey trims a column header and replaces spaces with underscores.
func HeaderKey(h string) string {
	return strings.ReplaceAll(strings.TrimSpace(h), " ", "_")
}

// IdentityKey folds an institution name for duplicate detection:
// case-insensitive and whitespace-insensitive.
func IdentityKey(s string) string {
	return cases.Fold().String(CollapseSpace(s))
}
