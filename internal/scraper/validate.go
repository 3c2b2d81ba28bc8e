package scraper

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// MinContentChars is the least combined text accepted as a profile.
	MinContentChars = 200
	// MinRawChars short-circuits pages that rendered almost nothing.
	MinRawChars = 50

	richDetailChars  = 100
	richSectionChars = 100
	thinSectionChars = 200
)

var profileSignals = []string{
	"experience", "education", "skills", "===section:",
	"present", "full-time", "part-time", "yrs", "mos",
	"manager", "engineer", "developer", "analyst", "lead",
	"director", "consultant", "university", "bachelor", "master",
}

var notFoundPhrases = []string{"page not found", "this page doesn"}

// Strategy names which extracted text a result was built from.
type Strategy string

const (
	StrategyDetailWithSections Strategy = "detail+sections"
	StrategyDetailWithRaw      Strategy = "detail+raw"
	StrategySections           Strategy = "sections"
	StrategyRaw                Strategy = "raw"
)

// CombineContent picks the richest combination of the extraction outputs:
//  1. detail text over 100 chars is primary, prefixed by the section text, or by the raw
//     page text when the sections are under 200 chars and raw text exists;
//  2. otherwise section text over 100 chars;
//  3. otherwise the raw page text.
func CombineContent(sections, detail, raw string) (string, Strategy) {
	sections = strings.TrimSpace(sections)
	detail = strings.TrimSpace(detail)
	raw = strings.TrimSpace(raw)

	switch {
	case charCount(detail) > richDetailChars:
		if charCount(sections) < thinSectionChars && raw != "" {
			return joinNonEmpty(raw, detail), StrategyDetailWithRaw
		}
		return joinNonEmpty(sections, detail), StrategyDetailWithSections
	case charCount(sections) > richSectionChars:
		return sections, StrategySections
	default:
		return raw, StrategyRaw
	}
}

// charCount measures text in characters, not bytes.
func charCount(s string) int {
	return utf8.RuneCountInString(s)
}

func joinNonEmpty(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

// ValidateContent applies the length and signal gates to the final text. bodySample is
// the page's visible text, used to tell a missing profile from a blocked one.
func ValidateContent(text, bodySample string) error {
	return checkContent(text, bodySample, MinContentChars)
}

// CheckRaw is the early, softer length gate run before section-aware extraction.
func CheckRaw(raw, bodySample string) error {
	n := charCount(strings.TrimSpace(raw))
	if n >= MinRawChars {
		return nil
	}
	return shortContentError(n, bodySample)
}

func checkContent(text, bodySample string, minChars int) error {
	n := charCount(strings.TrimSpace(text))
	if n < minChars {
		return shortContentError(n, bodySample)
	}
	if !containsAny(strings.ToLower(text), profileSignals) {
		return newError(KindNoProfileSignal,
			"Scraped content does not appear to contain LinkedIn profile sections (no experience, "+
				"education, or skills found). LinkedIn may have shown a login wall or CAPTCHA instead "+
				"of the profile. Log into LinkedIn manually in a regular browser first, then retry.", nil)
	}
	return nil
}

func shortContentError(n int, bodySample string) error {
	if containsAny(strings.ToLower(bodySample), notFoundPhrases) {
		return newError(KindProfileNotFound, "LinkedIn profile not found. The URL may be incorrect.", nil)
	}
	return newError(KindContentTooShort, fmt.Sprintf(
		"Scraped only %d characters from the profile. LinkedIn may have blocked the request "+
			"(CAPTCHA/anti-bot) or the profile is private. Log into LinkedIn manually in a "+
			"regular browser first, then retry.", n), nil)
}
