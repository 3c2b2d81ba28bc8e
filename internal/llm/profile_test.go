package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/profile-sync/internal/schemas"
)

type stubClient struct {
	response string
	err      error
	prompt   string
	tier     ModelTier
}

func (s *stubClient) GenerateJSON(_ context.Context, prompt string, tier ModelTier) (string, error) {
	s.prompt = prompt
	s.tier = tier
	return s.response, s.err
}

func (s *stubClient) Close() error { return nil }

const parsedProfile = `{"name":"Jane Doe","headline":"Staff Engineer","experience":[{"title":"Staff Engineer","company":"Acme"}],"education":[{"school":"State University"}],"skills":["Go"]}`

func TestProfileParser_Parse(t *testing.T) {
	client := &stubClient{response: "```json\n" + parsedProfile + "\n```"}
	parser := NewProfileParser(client)

	out, err := parser.Parse(context.Background(), "===SECTION: EXPERIENCE===\nStaff Engineer\nAcme")
	require.NoError(t, err)
	assert.JSONEq(t, parsedProfile, string(out))
	assert.Equal(t, TierStandard, client.tier)
	assert.Contains(t, client.prompt, "Staff Engineer\nAcme")
	assert.Contains(t, client.prompt, `"experience"`)
}

func TestProfileParser_Errors(t *testing.T) {
	tests := []struct {
		name   string
		client *stubClient
		input  string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "empty input",
			client: &stubClient{},
			input:  "  ",
			check:  func(t *testing.T, err error) { assert.Error(t, err) },
		},
		{
			name:   "client failure",
			client: &stubClient{err: errors.New("quota exceeded")},
			input:  "text",
			check:  func(t *testing.T, err error) { assert.ErrorContains(t, err, "quota exceeded") },
		},
		{
			name:   "invalid JSON",
			client: &stubClient{response: "Sorry, I can't help with that."},
			input:  "text",
			check:  func(t *testing.T, err error) { assert.ErrorContains(t, err, "invalid JSON") },
		},
		{
			name:   "schema mismatch",
			client: &stubClient{response: `{"headline":"no name"}`},
			input:  "text",
			check: func(t *testing.T, err error) {
				var verr *schemas.ValidationError
				assert.True(t, errors.As(err, &verr))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProfileParser(tt.client).Parse(context.Background(), tt.input)
			tt.check(t, err)
		})
	}
}

func TestBuildProfilePrompt(t *testing.T) {
	prompt := buildProfilePrompt("raw {{.Fields}} text")

	for _, f := range profileFields {
		assert.Contains(t, prompt, `"`+f.name+`": `+f.typeHint)
	}
	assert.Contains(t, prompt, "raw {{.Fields}} text")
	assert.NotContains(t, prompt, "{{.Text}}")
}
