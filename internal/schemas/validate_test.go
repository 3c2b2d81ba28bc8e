package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validProfile = `{
  "name": "Jane Doe",
  "headline": "Staff Engineer at Acme",
  "experience": [{"title": "Staff Engineer", "company": "Acme", "start_date": "2019-04"}],
  "education": [{"school": "State University", "degree": "BSc"}],
  "skills": ["Go", "PostgreSQL"],
  "certifications": [{"name": "CKA"}]
}`

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name      string
		doc       string
		wantField string
	}{
		{name: "valid", doc: validProfile},
		{name: "missing name", doc: `{"experience": [], "education": [], "skills": []}`, wantField: "(root)"},
		{name: "experience without company", doc: `{"name": "J", "experience": [{"title": "Eng"}], "education": [], "skills": []}`, wantField: "experience.0"},
		{name: "skills wrong type", doc: `{"name": "J", "experience": [], "education": [], "skills": "Go"}`, wantField: "skills"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfile([]byte(tt.doc))
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			fields := make([]string, 0, len(verr.Errors))
			for _, fe := range verr.Errors {
				fields = append(fields, fe.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestValidateProfile_MalformedJSON(t *testing.T) {
	err := ValidateProfile([]byte(`{"name": `))
	var loadErr *SchemaLoadError
	assert.True(t, errors.As(err, &loadErr))
}

func TestValidateJSONString(t *testing.T) {
	schema := `{"type": "object", "required": ["id"]}`
	assert.NoError(t, ValidateJSONString(schema, `{"id": 1}`))

	err := ValidateJSONString(schema, `{}`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestProfileSchemaEmbedded(t *testing.T) {
	assert.Contains(t, ProfileSchema(), `"title": "LinkedInProfile"`)
}
