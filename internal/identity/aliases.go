package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/jlumbroso/slacktivate/internal/domain"
)

// AliasesField is the side field attached to records whose identity was
// rewritten through the alias table. It holds the full alias group so the
// provisioning layer can recognize equivalent identities across sources.
const AliasesField = "alternate_emails"

// AliasTable maps every known alias to its full alias group. The group's
// first member is the canonical identity.
type AliasTable map[string][]string

// ParseAliasGroups parses comma-separated alias groups, one group per
// line. Blank lines and blank entries are skipped.
func ParseAliasGroups(text string) AliasTable {
	table := make(AliasTable)
	for _, line := range strings.Split(text, "\n") {
		var group []string
		for _, entry := range strings.Split(line, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				group = append(group, entry)
			}
		}
		if len(group) == 0 {
			continue
		}
		for _, member := range group {
			table[member] = group
		}
	}
	return table
}

// LoadAliasTable accepts either inline alias-group text or a path to a
// file of alias groups. A value containing a newline or comma is inline;
// anything else must be a readable file.
func LoadAliasTable(value string) (AliasTable, error) {
	if strings.ContainsAny(value, "\n,") {
		return ParseAliasGroups(value), nil
	}
	data, err := os.ReadFile(value)
	if err != nil {
		return nil, fmt.Errorf("alias table %s: %w", value, err)
	}
	return ParseAliasGroups(string(data)), nil
}

// ResolveAliases rewrites a record's identity field to its alias group's
// canonical entry and attaches the full group under AliasesField. Records
// whose identity is unknown to the table are left untouched.
func ResolveAliases(rec *domain.Record, field string, table AliasTable) {
	current, ok := rec.GetString(field)
	if !ok {
		return
	}
	group, known := table[current]
	if !known || len(group) == 0 {
		return
	}
	rec.Set(field, group[0])
	aliases := make([]any, len(group))
	for i, a := range group {
		aliases[i] = a
	}
	rec.Set(AliasesField, aliases)
}
