package declarative

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLoad(t *testing.T, data string) *RawDocument {
	t.Helper()
	raw, err := Load("spec.yaml", []byte(data))
	require.NoError(t, err)
	return raw
}

func validationPaths(errs []ValidationError) []string {
	var out []string
	for _, e := range errs {
		out = append(out, e.Path)
	}
	return out
}

func TestValidateCleanSpec(t *testing.T) {
	raw := mustLoad(t, sampleSpec)
	errs := Validate(raw, ValidateOptions{SkipSourceChecks: true})
	assert.Empty(t, errs)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantPaths []string
	}{
		{
			name:      "unknown section",
			data:      "workspaces: []\n",
			wantPaths: []string{""},
		},
		{
			name:      "missing required source fields",
			data:      "users:\n  - filter: \"a eq 1\"\n",
			wantPaths: []string{"users[0]"},
		},
		{
			name:      "unexpected source field",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    frobnicate: 1\n",
			wantPaths: []string{"users[0]"},
		},
		{
			name:      "bad source type",
			data:      "users:\n  - type: xml\n    contents: \"[]\"\n",
			wantPaths: []string{"users[0].type"},
		},
		{
			name:      "bad sort order",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    sort: alphabetical\n",
			wantPaths: []string{"users[0].sort"},
		},
		{
			name:      "bad key template",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    key: \"{{ email\"\n",
			wantPaths: []string{"users[0].key"},
		},
		{
			name:      "bad source filter",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    filter: \"email eq\"\n",
			wantPaths: []string{"users[0].filter"},
		},
		{
			name:      "bad derived field template",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    fields:\n      u: \"{{ email\"\n",
			wantPaths: []string{"users[0].fields.u"},
		},
		{
			name:      "derived field list entry not a string",
			data:      "users:\n  - type: yaml\n    contents: \"[]\"\n    fields:\n      u:\n        - 42\n",
			wantPaths: []string{"users[0].fields.u[0]"},
		},
		{
			name:      "file references record fields",
			data:      "users:\n  - type: csv\n    file: \"roster-{{ email }}.csv\"\n",
			wantPaths: []string{"users[0].file"},
		},
		{
			name:      "group missing name",
			data:      "groups:\n  - filter: \"a eq 1\"\n",
			wantPaths: []string{"groups[0]"},
		},
		{
			name:      "bad group name template",
			data:      "groups:\n  - name: \"phd-{{ year\"\n",
			wantPaths: []string{"groups[0].name"},
		},
		{
			name:      "bad group filter",
			data:      "groups:\n  - name: g\n    filter: \"not\"\n",
			wantPaths: []string{"groups[0].filter"},
		},
		{
			name:      "bad channel glob",
			data:      "channels:\n  - name: c\n    groups: \"phd-[\"\n",
			wantPaths: []string{"channels[0].groups"},
		},
		{
			name:      "bad channel private",
			data:      "channels:\n  - name: c\n    private: maybe\n",
			wantPaths: []string{"channels[0].private"},
		},
		{
			name:      "vars non-scalar",
			data:      "vars:\n  org:\n    nested: true\n",
			wantPaths: []string{"vars.org"},
		},
		{
			name:      "settings non-boolean",
			data:      "settings:\n  strict_merge: sometimes\n",
			wantPaths: []string{"settings.strict_merge"},
		},
		{
			name:      "settings aliases non-string",
			data:      "settings:\n  alternate_emails: true\n",
			wantPaths: []string{"settings.alternate_emails"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := mustLoad(t, tt.data)
			errs := Validate(raw, ValidateOptions{SkipSourceChecks: true})
			assert.Equal(t, tt.wantPaths, validationPaths(errs))
		})
	}
}

func TestValidateCollectsAllViolations(t *testing.T) {
	raw := mustLoad(t, `
users:
  - type: xml
    contents: "[]"
    sort: alphabetical
groups:
  - name: "{{ bad"
    filter: "x eq"
`)
	errs := Validate(raw, ValidateOptions{SkipSourceChecks: true})
	assert.Equal(t, []string{
		"users[0].type",
		"users[0].sort",
		"groups[0].name",
		"groups[0].filter",
	}, validationPaths(errs))
}

func TestValidateSourceChecks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "roster-2025.csv"), []byte("email\n"), 0o644))

	spec := `
vars:
  dir: ` + dir + `
users:
  - type: csv
    file: "{{ vars.dir }}/roster-*.csv"
  - type: csv
    file: "{{ vars.dir }}/missing-*.csv"
`
	raw := mustLoad(t, spec)

	errs := Validate(raw, ValidateOptions{})
	assert.Equal(t, []string{"users[1].file"}, validationPaths(errs))

	// Skipping source checks still validates template syntax.
	errs = Validate(raw, ValidateOptions{SkipSourceChecks: true})
	assert.Empty(t, errs)
}
