// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonathan/profile-sync/internal/scraper"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
	// previewLines is how many lines of scraped text are echoed
	previewLines = 6
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	inner := boxWidth - 4
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %s │\n", pad(title, inner))
	fmt.Fprintf(p.out, "├%s┤\n", border)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %s │\n", pad(line, inner))
	}
	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// pad fits s to exactly width runes, truncating with "...".
func pad(s string, width int) string {
	if n := utf8.RuneCountInString(s); n > width {
		runes := []rune(s)
		return string(runes[:width-3]) + "..."
	} else if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	return s
}

func writeList(sb *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(sb, "%s (%d):\n", label, len(items))
	for _, item := range items[:min(len(items), maxItemsToShow)] {
		fmt.Fprintf(sb, "  • %s\n", item)
	}
	if len(items) > maxItemsToShow {
		fmt.Fprintf(sb, "  ... and %d more\n", len(items)-maxItemsToShow)
	}
}

// PrintScrapeResult outputs the extraction summary and a short preview of the text.
func (p *Printer) PrintScrapeResult(res *scraper.Result) {
	if res == nil {
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Strategy:   %s\n", res.Strategy)
	fmt.Fprintf(&sb, "Characters: %d\n", res.Chars)
	fmt.Fprintf(&sb, "Login:      %s\n", res.LoginState)
	fmt.Fprintf(&sb, "Elapsed:    %s\n", res.Elapsed.Round(100*time.Millisecond))
	sb.WriteString("\n")
	writeList(&sb, "Sections", res.Sections)

	lines := strings.Split(res.Text, "\n")
	sb.WriteString("\nPreview:\n")
	for _, line := range lines[:min(len(lines), previewLines)] {
		sb.WriteString("  " + line + "\n")
	}
	if len(lines) > previewLines {
		fmt.Fprintf(&sb, "  ... %d more lines\n", len(lines)-previewLines)
	}

	p.printBox("SCRAPED PROFILE", sb.String())
}

// PrintChallenge tells the user how to approve a pending security check.
func (p *Printer) PrintChallenge(message string, attempt, maxAttempts int) {
	var sb strings.Builder
	if message != "" {
		sb.WriteString(message + "\n\n")
	}
	sb.WriteString("LinkedIn is asking to confirm this sign-in.\n")
	sb.WriteString("Approve the notification on your phone,\n")
	sb.WriteString("then press Enter to continue.\n")
	fmt.Fprintf(&sb, "\nRetry %d of %d", attempt, maxAttempts)
	p.printBox("SECURITY CHECK", sb.String())
}

type profileSummary struct {
	Name       string `json:"name"`
	Headline   string `json:"headline"`
	Location   string `json:"location"`
	Experience []struct {
		Title   string `json:"title"`
		Company string `json:"company"`
	} `json:"experience"`
	Education []struct {
		School string `json:"school"`
		Degree string `json:"degree"`
	} `json:"education"`
	Skills []string `json:"skills"`
}

// PrintProfile outputs a human-readable summary of a parsed profile.
func (p *Printer) PrintProfile(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var profile profileSummary
	if err := json.Unmarshal(raw, &profile); err != nil {
		return fmt.Errorf("failed to decode parsed profile: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Name:     %s\n", profile.Name)
	if profile.Headline != "" {
		fmt.Fprintf(&sb, "Headline: %s\n", profile.Headline)
	}
	if profile.Location != "" {
		fmt.Fprintf(&sb, "Location: %s\n", profile.Location)
	}
	sb.WriteString("\n")

	roles := make([]string, 0, len(profile.Experience))
	for _, e := range profile.Experience {
		roles = append(roles, e.Title+" at "+e.Company)
	}
	writeList(&sb, "Experience", roles)

	schools := make([]string, 0, len(profile.Education))
	for _, e := range profile.Education {
		if e.Degree != "" {
			schools = append(schools, e.School+", "+e.Degree)
			continue
		}
		schools = append(schools, e.School)
	}
	writeList(&sb, "Education", schools)
	writeList(&sb, "Skills", profile.Skills)

	p.printBox("PARSED PROFILE", sb.String())
	return nil
}
