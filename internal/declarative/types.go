// Package declarative parses, validates, and compiles workspace
// specifications: a settings section, global template variables, user
// sources, group rules, and channel rules. Compilation produces the fully
// resolved membership model consumed by the provisioning layer.
package declarative

import (
	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/loader"
)

// RawDocument is the specification after structural parsing but before
// schema validation: sections kept as ordered records so validation can
// name unexpected fields and derived-field expansion stays ordered.
type RawDocument struct {
	Source   string
	Settings *domain.Record
	Vars     *domain.Record
	Users    []*domain.Record
	Groups   []*domain.Record
	Channels []*domain.Record

	// UnknownSections lists top-level keys outside the known set.
	UnknownSections []string
}

// Document is a validated specification ready to compile.
type Document struct {
	Settings domain.Settings
	Vars     map[string]string
	Users    []UserSourceConfig
	Groups   []GroupConfig
	Channels []ChannelConfig
}

// UserSourceConfig declares one user source: where the records come from,
// how they are keyed, which derived fields to add, and an optional filter.
type UserSourceConfig struct {
	Type     loader.Format
	File     string // locator: literal path or glob; may reference vars
	Contents string // inline alternative to File
	Key      string // key template; empty means heuristic keying
	Fields   []DerivedField
	Filter   string
	Sort     loader.SortOrder
}

// DerivedField is one entry of a source's "fields" map. The single form
// sets the field to the rendered pattern; the list form renders every
// pattern and appends to an existing list-valued field of the same name.
type DerivedField struct {
	Name     string
	Patterns []string
	Append   bool
}

// GroupConfig declares one group rule: a name template and an optional
// filter. One rule expands to as many concrete groups as the template
// renders distinct names over the eligible users.
type GroupConfig struct {
	Name   string
	Filter string
}

// ChannelConfig declares one channel rule. Groups holds shell-style globs
// matched against already-expanded group names; absent globs mean the full
// user directory. Permissions passes through to the provisioning layer.
type ChannelConfig struct {
	Name        string
	Groups      []string
	Private     bool
	Filter      string
	Permissions any
}

// Section field schemas. A required entry lists alternatives: it is
// satisfied when any one of its names is present.
type sectionSchema struct {
	section  string
	required [][]string
	optional []string
}

var (
	userSourceSchema = sectionSchema{
		section:  "users",
		required: [][]string{{"type"}, {"file", "contents"}},
		optional: []string{"fields", "key", "filter", "sort"},
	}
	groupSchema = sectionSchema{
		section:  "groups",
		required: [][]string{{"name"}},
		optional: []string{"filter"},
	}
	channelSchema = sectionSchema{
		section:  "channels",
		required: [][]string{{"name"}},
		optional: []string{"groups", "private", "filter", "permissions"},
	}
)

func (s sectionSchema) allowed() []string {
	var out []string
	for _, alternatives := range s.required {
		out = append(out, alternatives...)
	}
	return append(out, s.optional...)
}
