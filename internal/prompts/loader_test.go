package prompts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	ClearCache()

	prompt, err := Get("profile.json", "parse-profile")
	require.NoError(t, err)
	assert.Contains(t, prompt, "LinkedIn profile parser")
	assert.Contains(t, prompt, "{{.Text}}")

	_, err = Get("profile.json", "nonexistent-key")
	assert.ErrorContains(t, err, "not found")

	_, err = Get("nonexistent.json", "parse-profile")
	assert.ErrorContains(t, err, "failed to read prompt file")
}

func TestMustGet(t *testing.T) {
	ClearCache()

	assert.NotPanics(t, func() { MustGet("profile.json", "profile-field") })
	assert.Panics(t, func() { MustGet("nonexistent.json", "some-key") })
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     map[string]string
		want     string
	}{
		{
			name:     "all placeholders",
			template: "Hello {{.Name}}, welcome to {{.Company}}!",
			data:     map[string]string{"Name": "Alice", "Company": "Acme Corp"},
			want:     "Hello Alice, welcome to Acme Corp!",
		},
		{
			name:     "missing value kept",
			template: "{{.Name}} at {{.Company}}",
			data:     map[string]string{"Name": "Alice"},
			want:     "Alice at {{.Company}}",
		},
		{
			name:     "values are not re-expanded",
			template: "{{.Text}} / {{.Name}}",
			data:     map[string]string{"Text": "literal {{.Name}}", "Name": "Alice"},
			want:     "literal {{.Name}} / Alice",
		},
		{name: "no data", template: "{{.X}}", want: "{{.X}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.template, tt.data))
		})
	}
}

func TestRender(t *testing.T) {
	ClearCache()

	out, err := Render("profile.json", "profile-field", map[string]string{
		"Name": "skills", "Type": `["string"]`, "Description": "Skill names",
	})
	require.NoError(t, err)
	assert.Equal(t, `  "skills": ["string"] // Skill names`, out)
}

func TestList(t *testing.T) {
	ClearCache()

	keys, err := List("profile.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"parse-profile", "profile-field"}, keys)
}
