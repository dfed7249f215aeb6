package loader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jlumbroso/slacktivate/internal/domain"
)

func TestDecodeJSON(t *testing.T) {
	data := []byte(`[
		// roster snapshot
		{"email": "a@x.com", "year": 2025, "active": true},
		{"email": "b@x.com", "year": 2024, "tags": ["alumni"]}, // trailing comma next
	]`)

	records, err := Decode("roster.json", data, FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Field order follows the document.
	assert.Equal(t, []string{"email", "year", "active"}, records[0].Keys())

	year, _ := records[0].Get("year")
	assert.Equal(t, float64(2025), year)
	active, _ := records[0].Get("active")
	assert.Equal(t, true, active)
	tags, _ := records[1].Get("tags")
	assert.Equal(t, []any{"alumni"}, tags)
}

func TestDecodeJSONKeyedDocument(t *testing.T) {
	data := []byte(`{
		"a@x.com": {"email": "a@x.com"},
		"b@x.com": {"email": "b@x.com"}
	}`)

	records, err := Decode("keyed.json", data, FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 2)
	email, _ := records[0].GetString("email")
	assert.Equal(t, "a@x.com", email)
}

func TestDecodeJSONErrors(t *testing.T) {
	var perr *domain.ParseError

	_, err := Decode("bad.json", []byte(`{"email": `), FormatJSON)
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "bad.json", perr.Source)

	_, err = Decode("scalar.json", []byte(`"just a string"`), FormatJSON)
	require.ErrorAs(t, err, &perr)

	_, err = Decode("mixed.json", []byte(`[{"a": 1}, 2]`), FormatJSON)
	require.ErrorAs(t, err, &perr)
}

func TestDecodeYAML(t *testing.T) {
	data := []byte(`
- email: a@x.com
  year: 2025
  active: true
  note: null
- email: b@x.com
  tags:
    - alumni
`)

	records, err := Decode("roster.yaml", data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"email", "year", "active", "note"}, records[0].Keys())
	year, _ := records[0].Get("year")
	assert.Equal(t, float64(2025), year)
	active, _ := records[0].Get("active")
	assert.Equal(t, true, active)
	note, _ := records[0].Get("note")
	assert.Nil(t, note)
	tags, _ := records[1].Get("tags")
	assert.Equal(t, []any{"alumni"}, tags)
}

func TestDecodeYAMLKeyedDocument(t *testing.T) {
	data := []byte(`
a@x.com:
  email: a@x.com
b@x.com:
  email: b@x.com
`)
	records, err := Decode("keyed.yaml", data, FormatYAML)
	require.NoError(t, err)
	require.Len(t, records, 2)
}

func TestDecodeCSV(t *testing.T) {
	data := []byte("email,year,degree\na@x.com,2025,PhD\nb@x.com,2024,MSE\n")

	records, err := Decode("roster.csv", data, FormatCSV)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, []string{"email", "year", "degree"}, records[0].Keys())
	year, _ := records[0].Get("year")
	assert.Equal(t, "2025", year) // CSV values stay strings
}

func TestDecodeEmpty(t *testing.T) {
	records, err := Decode("empty.yaml", nil, FormatYAML)
	require.NoError(t, err)
	assert.Empty(t, records)

	records, err = Decode("empty.csv", nil, FormatCSV)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestParseFormat(t *testing.T) {
	for _, ok := range []string{"json", "yaml", "csv"} {
		_, err := ParseFormat(ok)
		assert.NoError(t, err)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestParseSortOrder(t *testing.T) {
	order, err := ParseSortOrder("")
	require.NoError(t, err)
	assert.Equal(t, SortNewest, order)

	_, err = ParseSortOrder("alphabetical")
	assert.Error(t, err)
}

func TestResolveFile(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	for i, name := range []string{"users-2023.json", "users-2024.json", "users-2025.json"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte("[]"), 0o644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	pattern := filepath.Join(dir, "users-*.json")

	newest, err := ResolveFile(pattern, SortNewest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users-2025.json"), newest)

	oldest, err := ResolveFile(pattern, SortOldest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users-2023.json"), oldest)

	single, err := ResolveFile(filepath.Join(dir, "users-2024.json"), SortNewest)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "users-2024.json"), single)
}

func TestResolveFileNotFound(t *testing.T) {
	dir := t.TempDir()
	_, err := ResolveFile(filepath.Join(dir, "missing-*.json"), SortNewest)

	var nferr *domain.SourceNotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Contains(t, nferr.Pattern, "missing-*.json")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "roster.yaml")
	require.NoError(t, os.WriteFile(p, []byte("- email: a@x.com\n"), 0o644))

	records, err := LoadFile(p, FormatYAML)
	require.NoError(t, err)
	require.Len(t, records, 1)
	email, _ := records[0].GetString("email")
	assert.Equal(t, "a@x.com", email)
}
