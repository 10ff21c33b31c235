// Package normalize turns channel IDs and stream display names into
// comparable tokens: uppercase letters and digits separated by single spaces.
//
// ChannelID and DisplayName are deliberately different. Guide channel IDs
// follow catalog-ID conventions ("Canal.Trece.ar"), stream names follow
// human-readable conventions ("AR: Canal Trece ᴴᴰ"). Unifying them makes
// matching noticeably worse.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	countrySuffix = regexp.MustCompile(`\.[A-Z]{2}$`)
	canalPrefix   = regexp.MustCompile(`^CANAL\.`)
	parenthesized = regexp.MustCompile(`\([^)]*\)`)
	namePrefix    = regexp.MustCompile(`^[A-Z]{2,6}\s*[:|]\s*`)

	// Superscript and small-capital quality marks ("ᴴᴰ", "ꜰʜᴅ", "ˢᴰ"). These
	// are glued to the name without a space, so they are cut out before
	// folding turns them into plain letters.
	stylizedQuality = regexp.MustCompile(`[ᶠꜰ]?[ᵁᴜ]?[ᴴʜ][ᴰᴅ]|[ˢꜱ][ᴰᴅ]`)

	// Small capitals have no compatibility decomposition.
	smallCaps = strings.NewReplacer("ʜ", "H", "ᴅ", "D", "ᴜ", "U", "ꜰ", "F", "ꜱ", "S")
)

var qualityTokens = map[string]struct{}{
	"HD": {}, "SD": {}, "FHD": {}, "UHD": {},
}

// ChannelID normalizes an XMLTV channel id: "Canal.9.ar" -> "9",
// "TyC.Sports.ar" -> "TYC SPORTS", "A&E (Latam)" -> "A AND E".
func ChannelID(raw string) string {
	s := strings.TrimSpace(strings.ToUpper(fold(raw)))
	if s == "" {
		return ""
	}
	// Annotations go first so a suffix like ".ar (backup)" is still trailing.
	s = strings.TrimSpace(parenthesized.ReplaceAllString(s, " "))
	s = countrySuffix.ReplaceAllString(s, "")
	s = canalPrefix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "&", " AND ")
	return strings.Join(tokens(s), " ")
}

// DisplayName normalizes a provider stream name: "AR: Telefe HD" -> "TELEFE",
// "ESPNᴴᴰ (Backup)" -> "ESPN". Unlike ChannelID it leaves a trailing ".xx"
// and a "CANAL." prefix alone, and it drops quality tags.
//
// DisplayName is idempotent.
func DisplayName(raw string) string {
	s := stylizedQuality.ReplaceAllString(raw, " ")
	s = smallCaps.Replace(s)
	s = strings.TrimSpace(strings.ToUpper(fold(s)))
	if s == "" {
		return ""
	}
	s = namePrefix.ReplaceAllString(s, "")
	s = parenthesized.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&", " AND ")
	toks := tokens(s)
	out := toks[:0]
	for _, t := range toks {
		if _, drop := qualityTokens[t]; drop {
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

// fold applies compatibility decomposition and drops combining marks, so
// "Ｔｅｌｅｆé" reads as "Telefe".
func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// tokens keeps letters and digits. Separator punctuation splits tokens,
// anything else is dropped in place ("Disney's" -> "DISNEYS").
func tokens(s string) []string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsSpace(r) || strings.ContainsRune(".-_/|:,;+", r):
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}
