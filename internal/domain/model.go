package domain

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Recognized settings consumed by the downstream provisioning layer.
// The compiler interprets none of these beyond alias loading and the
// merge mode; unrecognized settings pass through untouched.
const (
	SettingKeepCustomizedPhotos   = "keep_customized_photos"
	SettingKeepCustomizedName     = "keep_customized_name"
	SettingExtendGroupMemberships = "extend_group_memberships"
	SettingAlternateEmails        = "alternate_emails"
	SettingStrictMerge            = "strict_merge"
)

// AllSettings lists every recognized setting name.
var AllSettings = []string{
	SettingKeepCustomizedPhotos,
	SettingKeepCustomizedName,
	SettingExtendGroupMemberships,
	SettingAlternateEmails,
	SettingStrictMerge,
}

// Settings is the flat settings section of a specification.
type Settings map[string]any

// Bool reads a boolean setting. Both native booleans and case-insensitive
// "true"/"false" strings are accepted; anything else is false.
func (s Settings) Bool(name string) bool {
	v, ok := s[name]
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(val, "true")
	default:
		return false
	}
}

// String reads a string setting.
func (s Settings) String(name string) (string, bool) {
	v, ok := s[name]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Clone returns a shallow copy of the settings map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Group is one concrete group produced by expanding a group rule: a fully
// rendered name and its membership in first-seen order. Filter carries the
// rule's original query text for provenance.
type Group struct {
	Name   string    `json:"name"`
	Users  []*Record `json:"users"`
	Filter string    `json:"filter,omitempty"`
}

// Clone returns a deep copy of the group.
func (g Group) Clone() Group {
	users := make([]*Record, len(g.Users))
	for i, u := range g.Users {
		users[i] = u.Clone()
	}
	return Group{Name: g.Name, Users: users, Filter: g.Filter}
}

// Channel is one concrete channel produced by expanding a channel rule.
// Permissions is an opaque pass-through for the provisioning layer.
type Channel struct {
	Name        string    `json:"name"`
	Users       []*Record `json:"users"`
	Filter      string    `json:"filter,omitempty"`
	Private     bool      `json:"private"`
	Permissions any       `json:"permissions,omitempty"`
}

// Clone returns a deep copy of the channel.
func (c Channel) Clone() Channel {
	users := make([]*Record, len(c.Users))
	for i, u := range c.Users {
		users[i] = u.Clone()
	}
	return Channel{
		Name:        c.Name,
		Users:       users,
		Filter:      c.Filter,
		Private:     c.Private,
		Permissions: c.Permissions,
	}
}

// CompiledModel is the fully resolved membership model: the deduplicated
// user directory, the concrete groups, and the concrete channels. It is
// immutable after compilation; accessors return deep copies.
type CompiledModel struct {
	users    *Directory
	groups   []Group
	channels []Channel
	settings Settings
	vars     map[string]string
}

// NewCompiledModel assembles a compiled model. The compiler is the only
// intended caller; ownership of the arguments transfers to the model.
func NewCompiledModel(users *Directory, groups []Group, channels []Channel, settings Settings, vars map[string]string) *CompiledModel {
	return &CompiledModel{
		users:    users,
		groups:   groups,
		channels: channels,
		settings: settings,
		vars:     vars,
	}
}

// Users returns a deep copy of the user directory.
func (m *CompiledModel) Users() *Directory {
	return m.users.Clone()
}

// Groups returns a deep copy of the concrete groups, in declaration then
// first-seen partition order.
func (m *CompiledModel) Groups() []Group {
	out := make([]Group, len(m.groups))
	for i, g := range m.groups {
		out[i] = g.Clone()
	}
	return out
}

// Channels returns a deep copy of the concrete channels.
func (m *CompiledModel) Channels() []Channel {
	out := make([]Channel, len(m.channels))
	for i, c := range m.channels {
		out[i] = c.Clone()
	}
	return out
}

// Settings returns a copy of the settings section.
func (m *CompiledModel) Settings() Settings {
	return m.settings.Clone()
}

// Vars returns a copy of the global template variables.
func (m *CompiledModel) Vars() map[string]string {
	out := make(map[string]string, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out
}

// MarshalJSON serializes the model for consumers: users keyed by canonical
// key, then groups, channels, and settings.
func (m *CompiledModel) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"users":`)
	ub, err := json.Marshal(m.users)
	if err != nil {
		return nil, err
	}
	buf.Write(ub)
	buf.WriteString(`,"groups":`)
	gb, err := json.Marshal(m.groups)
	if err != nil {
		return nil, err
	}
	buf.Write(gb)
	buf.WriteString(`,"channels":`)
	cb, err := json.Marshal(m.channels)
	if err != nil {
		return nil, err
	}
	buf.Write(cb)
	if len(m.settings) > 0 {
		buf.WriteString(`,"settings":`)
		sb, err := json.Marshal(m.settings)
		if err != nil {
			return nil, err
		}
		buf.Write(sb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
