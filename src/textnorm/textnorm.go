// Package textnorm provides the pure, stateless text transforms that turn a
// raw log message into the normalized field set a LogDocument stores:
// line trimming, parameter/bracket stripping, extraction of URLs, paths,
// status codes, exceptions and quoted parameters, and tokenization.
//
// Every function here is deterministic and side-effect free, in the style
// of the teacher's patterns package: package-level compiled regexes, one
// small transform per function.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// urlPattern matches http(s) URLs.
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

	// pathPattern matches absolute unix-style paths of two or more segments.
	pathPattern = regexp.MustCompile(`(?:/[\w.\-]+){2,}`)

	// statusCodePattern matches 3-digit HTTP-style status codes with a
	// keyword nearby so bare numbers aren't misclassified.
	statusCodePattern = regexp.MustCompile(`(?i)\b(?:status|code|http)\D{0,10}\b([1-5][0-9]{2})\b`)

	// exceptionPattern matches dotted Exception/Error type names, e.g.
	// java.lang.NullPointerException or ConnectionError.
	exceptionPattern = regexp.MustCompile(`\b(?:[A-Za-z_][\w]*\.)*[A-Za-z_][\w]*(?:Exception|Error)\b`)

	// quotedPattern matches words enclosed in single quotes, double quotes,
	// parentheses, or angle brackets - the "message params" spec.md names.
	quotedPattern = regexp.MustCompile(`"([^"]*)"|'([^']*)'|\(([^()]*)\)|<([^<>]*)>`)

	// paramTokenPattern matches bare numeric/hex parameter-like tokens used
	// by StripParams to collapse variable values out of a message.
	paramTokenPattern = regexp.MustCompile(`\b(?:0x[0-9a-fA-F]+|\d+)\b`)

	// bracketPattern matches any bracketed/quoted span, mirroring
	// quotedPattern but used to strip rather than extract.
	bracketPattern = regexp.MustCompile(`"[^"]*"|'[^']*'|\([^()]*\)|<[^<>]*>|\[[^\[\]]*\]`)

	// whitespacePattern collapses runs of whitespace to a single space.
	whitespacePattern = regexp.MustCompile(`\s+`)

	// wordPattern splits on anything that isn't a letter or digit.
	wordPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// FirstLines returns the first n non-empty lines of text. n = -1 returns
// the whole text unchanged; n = 0 returns every non-empty line.
func FirstLines(text string, n int) string {
	if n < 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, n)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		kept = append(kept, line)
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, "\n")
}

// SanitizeText removes control characters, collapses whitespace, and
// lowercases the result. Idempotent: SanitizeText(SanitizeText(x)) ==
// SanitizeText(x).
func SanitizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	clean := whitespacePattern.ReplaceAllString(b.String(), " ")
	return strings.ToLower(strings.TrimSpace(clean))
}

// SplitWords tokenizes text on non-alphanumeric boundaries and drops
// tokens shorter than minLen.
func SplitWords(text string, minLen int) []string {
	tokens := wordPattern.Split(text, -1)
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) == 0 {
			continue
		}
		if len([]rune(tok)) < minLen {
			continue
		}
		words = append(words, tok)
	}
	return words
}

// ExtractURLs returns every http(s) URL found in text, in order.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// ExtractPaths returns every unix-style absolute path found in text.
func ExtractPaths(text string) []string {
	return pathPattern.FindAllString(text, -1)
}

// ExtractStatusCodes returns every 3-digit status code found near a
// status/code/http keyword.
func ExtractStatusCodes(text string) []string {
	matches := statusCodePattern.FindAllStringSubmatch(text, -1)
	codes := make([]string, 0, len(matches))
	for _, m := range matches {
		codes = append(codes, m[1])
	}
	return codes
}

// ExtractExceptions returns every exception/error type name found in text.
func ExtractExceptions(text string) []string {
	return exceptionPattern.FindAllString(text, -1)
}

// ExtractMessageParams returns the contents of every quoted or bracketed
// span in text: "...", '...', (...), <...>.
func ExtractMessageParams(text string) []string {
	matches := quotedPattern.FindAllStringSubmatch(text, -1)
	params := make([]string, 0, len(matches))
	for _, m := range matches {
		for _, group := range m[1:] {
			if group != "" {
				params = append(params, group)
				break
			}
		}
	}
	return params
}

// StripParams replaces bare numeric and hex tokens with a placeholder,
// collapsing variable parameter values out of a message.
func StripParams(text string) string {
	return normalizeWhitespace(paramTokenPattern.ReplaceAllString(text, "PARAM"))
}

// StripBrackets removes every quoted or bracketed span from text.
func StripBrackets(text string) string {
	return normalizeWhitespace(bracketPattern.ReplaceAllString(text, ""))
}

// CalculateLineNumber counts the non-empty lines in text. Used to decide
// the small-vs-big log partition.
func CalculateLineNumber(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	n := 0
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}

func normalizeWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
