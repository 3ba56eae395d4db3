// Package normalize turns uploaded release filenames into display titles.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// Result is the structured form of a cleaned filename.
type Result struct {
	Title    string
	Year     string
	Language string
}

// Display renders "{Title} ({Year}) {Language}", dropping empty parts.
func (r Result) Display() string {
	var b strings.Builder
	b.WriteString(r.Title)
	if r.Year != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(" + r.Year + ")")
	}
	if r.Language != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Language)
	}
	return b.String()
}

var languages = []string{
	"English", "Hindi", "Tamil", "Telugu", "Malayalam", "Kannada", "Bengali",
	"Marathi", "Punjabi", "Gujarati", "Urdu", "Korean", "Japanese", "Chinese",
	"Mandarin", "Spanish", "French", "German", "Italian", "Russian", "Arabic",
	"Turkish", "Persian", "Portuguese", "Indonesian", "Thai",
}

var canonicalLanguage = func() map[string]string {
	m := make(map[string]string, len(languages))
	for _, l := range languages {
		m[strings.ToLower(l)] = l
	}
	return m
}()

var (
	sourceTagRe = regexp.MustCompile(`^\s*(?:@[\w.]+|\[[^\]]*\])\s*[-_:|~]*\s*`)
	extensionRe = regexp.MustCompile(`(?i)\.(?:mkv|mp4|avi|mov|m4v|wmv|flv|webm|mpe?g|m2ts|3gp)\s*$`)

	// Tokens that contain dots must go before dots become spaces.
	dottedTagRe = regexp.MustCompile(`(?i)\b(?:\d+(?:\.\d+)?\s?(?:mb|gb)|h\.?26[45]|(?:ddp|dd|aac|eac3|ac3|dts)?[257]\.[01])\b`)

	vocabularyRe = regexp.MustCompile(`(?i)\b(?:` + strings.Join([]string{
		`2160p`, `1440p`, `1080p`, `720p`, `576p`, `480p`, `360p`, `4k`, `uhd`,
		`hdr10`, `hdr`, `sdr`, `10bit`, `8bit`,
		`x26[45]`, `h26[45]`, `hevc`, `avc`, `xvid`, `divx`,
		`blu-?ray`, `brrip`, `bdrip`, `webrip`, `web-?dl`, `hdrip`, `dvdrip`,
		`dvdscr`, `hdtv`, `hdcam`, `hdts`, `cam`, `ts`, `r5`, `rip`,
		`amzn`, `nf`, `dsnp`, `hmax`, `atvp`,
		`aac`, `eac3`, `ac3`, `dts`, `ddp`, `dual-?audio`, `dual audio`,
		`esubs?`, `msubs?`, `hq`, `hd`, `sd`, `proper`, `repack`, `v\d`,
	}, "|") + `)\b`)

	emptyBracketRe = regexp.MustCompile(`[\[({][\s\-_.,+&]*[\])}]`)
	punctTokenRe   = regexp.MustCompile(`^[-+|,~:;&]+$`)
	groupSuffixRe  = regexp.MustCompile(`^-\w+$`)

	titleYearRe = regexp.MustCompile(`(?i)^(.+?)\s+[\[(]?((?:19|20)\d{2})[\])]?(?:\s|$)(?:.*?\b(` +
		strings.Join(languages, "|") + `)\b)?`)
)

const separatorChars = " -_:|~,+"

// Filename cleans a raw uploaded filename. It never fails: input that does
// not contain a year comes back as the cleaned text in Title.
func Filename(raw string) Result {
	s := stripSourceTags(raw)
	s = stripDecorations(s)
	s = stripSourceTags(s)

	s = extensionRe.ReplaceAllString(s, "")
	s = dottedTagRe.ReplaceAllString(s, " ")
	s = strings.NewReplacer("_", " ", ".", " ").Replace(s)
	s = vocabularyRe.ReplaceAllString(s, " ")
	for emptyBracketRe.MatchString(s) {
		s = emptyBracketRe.ReplaceAllString(s, " ")
	}
	s = tidyTokens(s)

	m := titleYearRe.FindStringSubmatch(s)
	if m == nil {
		return Result{Title: s}
	}
	title := strings.Trim(m[1], separatorChars+"([")
	if title == "" {
		return Result{Title: s}
	}
	return Result{
		Title:    title,
		Year:     m[2],
		Language: canonicalLanguage[strings.ToLower(m[3])],
	}
}

// Title is shorthand for Filename(raw).Display().
func Title(raw string) string {
	return Filename(raw).Display()
}

func stripSourceTags(s string) string {
	for {
		next := sourceTagRe.ReplaceAllString(s, "")
		if next == s {
			return s
		}
		s = next
	}
}

// stripDecorations drops emoji, symbols and other non-ASCII marks while
// keeping letters and digits from any script.
func stripDecorations(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII:
			return r
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsLetter(r), unicode.IsNumber(r):
			return r
		default:
			return -1
		}
	}, s)
}

// tidyTokens collapses whitespace, drops tokens that are only punctuation and
// any trailing "-GROUP" release suffixes. The first token always survives.
func tidyTokens(s string) string {
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if punctTokenRe.MatchString(f) {
			continue
		}
		kept = append(kept, f)
	}
	for n := len(kept); n > 1 && groupSuffixRe.MatchString(kept[n-1]); n = len(kept) {
		kept = kept[:n-1]
	}
	return strings.Trim(strings.Join(kept, " "), separatorChars)
}
