package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAliasGroups(t *testing.T) {
	table := ParseAliasGroups("a@x.com, a.doe@x.com\n\nb@x.com,b.roe@x.com, b2@x.com\n")

	assert.Equal(t, []string{"a@x.com", "a.doe@x.com"}, table["a@x.com"])
	assert.Equal(t, []string{"a@x.com", "a.doe@x.com"}, table["a.doe@x.com"])
	assert.Equal(t, []string{"b@x.com", "b.roe@x.com", "b2@x.com"}, table["b2@x.com"])
	assert.NotContains(t, table, "c@x.com")
}

func TestLoadAliasTable(t *testing.T) {
	// Inline: a comma or newline marks the value as alias-group text.
	table, err := LoadAliasTable("a@x.com, a.doe@x.com")
	require.NoError(t, err)
	assert.Contains(t, table, "a.doe@x.com")

	// Otherwise the value is a path.
	dir := t.TempDir()
	path := filepath.Join(dir, "aliases.txt")
	require.NoError(t, os.WriteFile(path, []byte("b@x.com, b.roe@x.com\n"), 0o644))
	table, err = LoadAliasTable(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"b@x.com", "b.roe@x.com"}, table["b.roe@x.com"])

	_, err = LoadAliasTable(filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestResolveAliases(t *testing.T) {
	table := ParseAliasGroups("a@x.com, a.doe@x.com")

	rec := record("email", "a.doe@x.com", "name", "Jane")
	ResolveAliases(rec, "email", table)

	email, _ := rec.GetString("email")
	assert.Equal(t, "a@x.com", email)
	aliases, _ := rec.Get(AliasesField)
	assert.Equal(t, []any{"a@x.com", "a.doe@x.com"}, aliases)

	// Unknown identities are untouched.
	other := record("email", "z@x.com")
	ResolveAliases(other, "email", table)
	email, _ = other.GetString("email")
	assert.Equal(t, "z@x.com", email)
	_, present := other.Get(AliasesField)
	assert.False(t, present)
}
