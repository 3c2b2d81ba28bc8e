package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/profile-sync/internal/prompts"
	"github.com/jonathan/profile-sync/internal/schemas"
)

// profileField describes one key of the JSON the model must return
type profileField struct {
	name        string
	typeHint    string
	description string
}

var profileFields = []profileField{
	{"name", `"string"`, "Full name from the profile header"},
	{"headline", `"string"`, "Headline under the name"},
	{"location", `"string"`, "Location from the profile header"},
	{"summary", `"string"`, "The About section, verbatim"},
	{"experience", `[{"title", "company", "location", "start_date", "end_date", "description"}]`, "One entry per position, newest first"},
	{"education", `[{"school", "degree", "field", "start_date", "end_date"}]`, "One entry per school"},
	{"skills", `["string"]`, "Skill names"},
	{"certifications", `[{"name", "issuer", "date"}]`, "Licenses and certifications"},
	{"projects", `[{"name", "description"}]`, "Projects"},
	{"languages", `["string"]`, "Spoken languages"},
}

// buildProfilePrompt asks for the profile as JSON, quoting the scraped text
func buildProfilePrompt(rawText string) string {
	fieldTemplate := prompts.MustGet("profile.json", "profile-field")
	lines := make([]string, len(profileFields))
	for i, f := range profileFields {
		lines[i] = prompts.Format(fieldTemplate, map[string]string{
			"Name":        f.name,
			"Type":        f.typeHint,
			"Description": f.description,
		})
	}
	return prompts.Format(prompts.MustGet("profile.json", "parse-profile"), map[string]string{
		"Fields": strings.Join(lines, ",\n"),
		"Text":   rawText,
	})
}

// ProfileParser converts scraped profile text into schema-valid JSON
type ProfileParser struct {
	client Client
	tier   ModelTier
}

// NewProfileParser creates a parser using the standard tier
func NewProfileParser(client Client) *ProfileParser {
	return &ProfileParser{client: client, tier: TierStandard}
}

// Parse returns the structured profile for rawText
func (p *ProfileParser) Parse(ctx context.Context, rawText string) (json.RawMessage, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, errors.New("profile text is empty")
	}

	out, err := p.client.GenerateJSON(ctx, buildProfilePrompt(rawText), p.tier)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}
	out = cleanJSONBlock(out)
	if !json.Valid([]byte(out)) {
		return nil, errors.New("model returned invalid JSON")
	}
	if err := schemas.ValidateProfile([]byte(out)); err != nil {
		return nil, fmt.Errorf("parsed profile does not match schema: %w", err)
	}
	return json.RawMessage(out), nil
}
