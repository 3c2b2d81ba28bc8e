package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jonathan/profile-sync/internal/pagetext"
)

const (
	sectionHeaderName = "PROFILE HEADER"
	minSectionChars   = 10
	minDetailChars    = 20
)

type sectionAnchor struct {
	id   string
	name string
}

// profileSections are the anchor ids LinkedIn places inside each profile card.
var profileSections = []sectionAnchor{
	{"about", "ABOUT"},
	{"experience", "EXPERIENCE"},
	{"education", "EDUCATION"},
	{"skills", "SKILLS"},
	{"licenses_and_certifications", "CERTIFICATIONS"},
	{"honors_and_awards", "HONORS & AWARDS"},
	{"projects", "PROJECTS"},
	{"publications", "PUBLICATIONS"},
	{"volunteer_experience", "VOLUNTEER"},
	{"languages", "LANGUAGES"},
	{"recommendations", "RECOMMENDATIONS"},
}

// detailSections maps URL keywords of detail pages to section names, first match wins.
var detailSections = []struct {
	keywords []string
	name     string
}{
	{[]string{"/experience"}, "EXPERIENCE"},
	{[]string{"/education"}, "EDUCATION"},
	{[]string{"/skills"}, "SKILLS"},
	{[]string{"/certifications", "/licenses"}, "CERTIFICATIONS"},
	{[]string{"/honors", "/awards"}, "HONORS & AWARDS"},
	{[]string{"/projects"}, "PROJECTS"},
	{[]string{"/publications"}, "PUBLICATIONS"},
	{[]string{"/volunteer"}, "VOLUNTEER"},
	{[]string{"/languages"}, "LANGUAGES"},
	{[]string{"/recommendations"}, "RECOMMENDATIONS"},
}

var sectionMarkerRe = regexp.MustCompile(`===SECTION: ([^=\n]+)===`)

func sectionMarker(name string) string {
	return fmt.Sprintf("===SECTION: %s===", name)
}

// sectionNameForURL infers the section a detail page lists, "DETAILS" when unknown.
func sectionNameForURL(href string) string {
	for _, s := range detailSections {
		if containsAny(href, s.keywords) {
			return s.name
		}
	}
	return "DETAILS"
}

// extractSections renders the profile header and every known section of a profile
// snapshot as marker-delimited text.
func extractSections(doc *pagetext.Document) string {
	var parts []string
	if header := doc.HeaderText(pagetext.DefaultHeaderSelectors()); charCount(header) > minSectionChars {
		parts = append(parts, sectionMarker(sectionHeaderName)+"\n"+header)
	}
	for _, anchor := range profileSections {
		text := doc.SectionText(anchor.id)
		if charCount(text) > minSectionChars {
			parts = append(parts, sectionMarker(anchor.name)+"\n"+text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// SectionNames lists the section markers present in text, in order, without duplicates.
func SectionNames(text string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range sectionMarkerRe.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
