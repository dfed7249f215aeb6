package declarative

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/loader"
)

func compile(t *testing.T, spec string) *domain.CompiledModel {
	t.Helper()
	model, err := CompileSpecification("spec.yaml", []byte(spec))
	require.NoError(t, err)
	return model
}

func emails(records []*domain.Record) []string {
	var out []string
	for _, rec := range records {
		email, _ := rec.GetString("email")
		out = append(out, email)
	}
	return out
}

const rosterSpec = `
users:
  - type: yaml
    contents: |
      - email: a@x.com
        year: 2024
        degree: PhD
      - email: b@x.com
        year: 2025
        degree: PhD
      - email: c@x.com
        year: 2024
        degree: MSE
groups:
  - name: "{{ degree }}-{{ year }}"
channels:
  - name: "phd-{{ year }}"
    groups: ["PhD-*"]
    private: true
  - name: everyone
`

func TestCompileGroupPartition(t *testing.T) {
	model := compile(t, rosterSpec)

	groups := model.Groups()
	require.Len(t, groups, 3)

	// One rule expands to one group per distinct rendered name, in
	// first-seen order; each record lands in exactly one partition.
	assert.Equal(t, "PhD-2024", groups[0].Name)
	assert.Equal(t, []string{"a@x.com"}, emails(groups[0].Users))
	assert.Equal(t, "PhD-2025", groups[1].Name)
	assert.Equal(t, []string{"b@x.com"}, emails(groups[1].Users))
	assert.Equal(t, "MSE-2024", groups[2].Name)
	assert.Equal(t, []string{"c@x.com"}, emails(groups[2].Users))

	total := 0
	for _, g := range groups {
		total += len(g.Users)
	}
	assert.Equal(t, model.Users().Len(), total)
}

func TestCompileChannelGlobs(t *testing.T) {
	model := compile(t, rosterSpec)

	channels := model.Channels()
	require.Len(t, channels, 3)

	// Globs select expanded groups; the union partitions by channel name.
	assert.Equal(t, "phd-2024", channels[0].Name)
	assert.Equal(t, []string{"a@x.com"}, emails(channels[0].Users))
	assert.True(t, channels[0].Private)
	assert.Equal(t, "phd-2025", channels[1].Name)
	assert.Equal(t, []string{"b@x.com"}, emails(channels[1].Users))

	// No globs means the whole directory.
	assert.Equal(t, "everyone", channels[2].Name)
	assert.Equal(t, []string{"a@x.com", "b@x.com", "c@x.com"}, emails(channels[2].Users))
	assert.False(t, channels[2].Private)
}

func TestCompileCrossSourceMerge(t *testing.T) {
	model := compile(t, `
users:
  - type: yaml
    contents: |
      - email: a@x.com
        name: Jane
        groups: [students]
      - email: b@x.com
  - type: yaml
    contents: |
      - email: a@x.com
        name: Jane Doe
        groups: [ta]
        degree: PhD
`)

	dir := model.Users()
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, dir.Keys())

	merged := dir.Get("a@x.com")
	name, _ := merged.GetString("name")
	assert.Equal(t, "Jane Doe", name) // later source overrides scalars
	groupsVal, _ := merged.Get("groups")
	assert.Equal(t, []any{"students", "ta"}, groupsVal) // lists union
	degree, _ := merged.GetString("degree")
	assert.Equal(t, "PhD", degree)
}

func TestCompileStrictMergeConflict(t *testing.T) {
	_, err := CompileSpecification("spec.yaml", []byte(`
settings:
  strict_merge: true
users:
  - type: yaml
    contents: |
      - email: a@x.com
        name: Jane
  - type: yaml
    contents: |
      - email: a@x.com
        name: Janet
`))
	var cerr *domain.MergeConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "a@x.com", cerr.Key)
	assert.Equal(t, "name", cerr.Field)
}

func TestCompileExplicitKeyAndDerivedFields(t *testing.T) {
	model := compile(t, `
vars:
  domain: x.com
users:
  - type: yaml
    contents: |
      - netid: jdoe
        name: Jane
      - netid: rroe
        name: Rex
    key: "{{ netid }}@{{ vars.domain }}"
    fields:
      email: "{{ netid }}@{{ vars.domain }}"
      all_emails:
        - "{{ netid }}@{{ vars.domain }}"
        - "{{ netid }}@alumni.{{ vars.domain }}"
`)

	dir := model.Users()
	assert.Equal(t, []string{"jdoe@x.com", "rroe@x.com"}, dir.Keys())

	rec := dir.Get("jdoe@x.com")
	email, _ := rec.GetString("email")
	assert.Equal(t, "jdoe@x.com", email)
	allEmails, _ := rec.Get("all_emails")
	assert.Equal(t, []any{"jdoe@x.com", "jdoe@alumni.x.com"}, allEmails)

	// The key pattern is stamped so later heuristic keying stays stable.
	stamped, _ := rec.GetString("key")
	assert.Equal(t, "{{ netid }}@{{ vars.domain }}", stamped)
}

func TestCompileSourceFilter(t *testing.T) {
	model := compile(t, `
users:
  - type: yaml
    contents: |
      - email: a@x.com
        active: true
      - email: b@x.com
        active: false
    filter: "active eq true"
`)
	assert.Equal(t, []string{"a@x.com"}, model.Users().Keys())
}

func TestCompileAliases(t *testing.T) {
	model := compile(t, `
settings:
  alternate_emails: "a@x.com, a.doe@x.com"
users:
  - type: yaml
    contents: |
      - email: a.doe@x.com
        name: Jane
      - email: b@x.com
`)

	rec := model.Users().Get("a.doe@x.com")
	require.NotNil(t, rec)
	email, _ := rec.GetString("email")
	assert.Equal(t, "a@x.com", email)
	aliases, _ := rec.Get("alternate_emails")
	assert.Equal(t, []any{"a@x.com", "a.doe@x.com"}, aliases)

	other := model.Users().Get("b@x.com")
	_, present := other.Get("alternate_emails")
	assert.False(t, present)
}

func TestCompilePermissionsPassThrough(t *testing.T) {
	model := compile(t, `
users:
  - type: yaml
    contents: |
      - email: a@x.com
channels:
  - name: announcements
    permissions:
      post: admins
`)
	channels := model.Channels()
	require.Len(t, channels, 1)
	perms, ok := channels[0].Permissions.(*domain.Record)
	require.True(t, ok)
	post, _ := perms.GetString("post")
	assert.Equal(t, "admins", post)
}

func TestCompileIdempotent(t *testing.T) {
	first, err := json.Marshal(compile(t, rosterSpec))
	require.NoError(t, err)
	second, err := json.Marshal(compile(t, rosterSpec))
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
}

func TestCompileEmptySections(t *testing.T) {
	model := compile(t, `
users:
  - type: yaml
    contents: |
      - email: a@x.com
`)
	assert.Empty(t, model.Groups())
	assert.Empty(t, model.Channels())

	data, err := json.Marshal(model)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"groups":[]`)
	assert.Contains(t, string(data), `"channels":[]`)
}

func TestCompileFileSource(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "roster-2024.json")
	latest := filepath.Join(dir, "roster-2025.json")
	require.NoError(t, os.WriteFile(old, []byte(`[{"email": "old@x.com"}]`), 0o644))
	require.NoError(t, os.WriteFile(latest, []byte(`[{"email": "new@x.com"}]`), 0o644))
	info, err := os.Stat(latest)
	require.NoError(t, err)
	older := info.ModTime().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old, older, older))

	doc := &Document{
		Settings: domain.Settings{},
		Vars:     map[string]string{"dir": dir},
		Users: []UserSourceConfig{{
			Type: loader.FormatJSON,
			File: "{{ vars.dir }}/roster-*.json",
			Sort: loader.SortNewest,
		}},
	}

	model, err := Compile(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@x.com"}, model.Users().Keys())
}

func TestCompileMissingSource(t *testing.T) {
	doc := &Document{
		Settings: domain.Settings{},
		Vars:     map[string]string{},
		Users: []UserSourceConfig{{
			Type: loader.FormatJSON,
			File: filepath.Join(string(os.PathSeparator), "nonexistent", "roster-*.json"),
			Sort: loader.SortNewest,
		}},
	}
	_, err := Compile(doc)
	var nferr *domain.SourceNotFoundError
	require.ErrorAs(t, err, &nferr)
}
