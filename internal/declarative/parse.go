package declarative

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/loader"
)

// LoadFile reads and structurally parses a specification file.
func LoadFile(path string) (*RawDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read specification: %w", err)
	}
	return Load(path, data)
}

// Load structurally parses specification bytes. Markup errors surface as
// ParseErrors naming the source; the yaml parser's line and column are
// carried through in the message.
func Load(source string, data []byte) (*RawDocument, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, domain.ErrParse(source, "empty specification")
	}
	value, err := loader.ConvertYAMLNode(doc.Content[0])
	if err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	root, ok := value.(*domain.Record)
	if !ok {
		return nil, domain.ErrParse(source, "specification is not a mapping")
	}

	raw := &RawDocument{Source: source}
	for _, key := range root.Keys() {
		v, _ := root.Get(key)
		switch key {
		case "settings":
			raw.Settings, err = sectionMapping(source, key, v)
		case "vars":
			raw.Vars, err = sectionMapping(source, key, v)
		case "users":
			raw.Users, err = sectionList(source, key, v)
		case "groups":
			raw.Groups, err = sectionList(source, key, v)
		case "channels":
			raw.Channels, err = sectionList(source, key, v)
		default:
			raw.UnknownSections = append(raw.UnknownSections, key)
		}
		if err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func sectionMapping(source, section string, v any) (*domain.Record, error) {
	rec, ok := v.(*domain.Record)
	if !ok {
		return nil, domain.ErrParse(source, "section %q must be a mapping", section)
	}
	return rec, nil
}

func sectionList(source, section string, v any) ([]*domain.Record, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, domain.ErrParse(source, "section %q must be a list", section)
	}
	out := make([]*domain.Record, 0, len(list))
	for i, item := range list {
		rec, ok := item.(*domain.Record)
		if !ok {
			return nil, domain.ErrParse(source, "%s[%d] is not a mapping", section, i)
		}
		out = append(out, rec)
	}
	return out, nil
}

// ParseSpecification parses, validates, and builds a specification in one
// call. Validation problems are aggregated into a single SchemaError so a
// caller sees every violation at once.
func ParseSpecification(source string, data []byte) (*Document, error) {
	raw, err := Load(source, data)
	if err != nil {
		return nil, err
	}
	if violations := Validate(raw, ValidateOptions{}); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.Error()
		}
		return nil, domain.ErrSchema("%s: %s", source, strings.Join(msgs, "; "))
	}
	return Build(raw)
}

// ParseSpecificationFile is ParseSpecification for a file path.
func ParseSpecificationFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read specification: %w", err)
	}
	return ParseSpecification(path, data)
}

// Build converts a validated raw document into typed configuration.
func Build(raw *RawDocument) (*Document, error) {
	doc := &Document{
		Settings: domain.Settings{},
		Vars:     map[string]string{},
	}

	if raw.Settings != nil {
		for _, key := range raw.Settings.Keys() {
			v, _ := raw.Settings.Get(key)
			doc.Settings[key] = v
		}
	}

	if raw.Vars != nil {
		for _, key := range raw.Vars.Keys() {
			v, _ := raw.Vars.Get(key)
			s, ok := scalarToString(v)
			if !ok {
				return nil, domain.ErrSchema("vars.%s: value must be a scalar", key)
			}
			doc.Vars[key] = s
		}
	}

	for i, rec := range raw.Users {
		src, err := buildUserSource(i, rec)
		if err != nil {
			return nil, err
		}
		doc.Users = append(doc.Users, src)
	}

	for i, rec := range raw.Groups {
		name, _ := rec.GetString("name")
		filterText, err := optionalString(rec, "filter", fmt.Sprintf("groups[%d]", i))
		if err != nil {
			return nil, err
		}
		doc.Groups = append(doc.Groups, GroupConfig{Name: name, Filter: filterText})
	}

	for i, rec := range raw.Channels {
		ch, err := buildChannel(i, rec)
		if err != nil {
			return nil, err
		}
		doc.Channels = append(doc.Channels, ch)
	}

	return doc, nil
}

func buildUserSource(index int, rec *domain.Record) (UserSourceConfig, error) {
	path := fmt.Sprintf("users[%d]", index)
	var src UserSourceConfig

	typeStr, _ := rec.GetString("type")
	format, err := loader.ParseFormat(typeStr)
	if err != nil {
		return src, domain.ErrSchema("%s: %s", path, err.Error())
	}
	src.Type = format

	if src.File, err = optionalString(rec, "file", path); err != nil {
		return src, err
	}
	if src.Contents, err = optionalString(rec, "contents", path); err != nil {
		return src, err
	}
	if src.Key, err = optionalString(rec, "key", path); err != nil {
		return src, err
	}
	if src.Filter, err = optionalString(rec, "filter", path); err != nil {
		return src, err
	}

	sortStr, err := optionalString(rec, "sort", path)
	if err != nil {
		return src, err
	}
	if src.Sort, err = loader.ParseSortOrder(sortStr); err != nil {
		return src, domain.ErrSchema("%s: %s", path, err.Error())
	}

	if fieldsVal, ok := rec.Get("fields"); ok {
		fieldsRec, isRec := fieldsVal.(*domain.Record)
		if !isRec {
			return src, domain.ErrSchema("%s: fields must be a mapping", path)
		}
		for _, name := range fieldsRec.Keys() {
			v, _ := fieldsRec.Get(name)
			switch val := v.(type) {
			case string:
				src.Fields = append(src.Fields, DerivedField{Name: name, Patterns: []string{val}})
			case []any:
				patterns := make([]string, 0, len(val))
				for _, p := range val {
					s, isStr := p.(string)
					if !isStr {
						return src, domain.ErrSchema("%s: fields.%s entries must be strings", path, name)
					}
					patterns = append(patterns, s)
				}
				src.Fields = append(src.Fields, DerivedField{Name: name, Patterns: patterns, Append: true})
			default:
				return src, domain.ErrSchema("%s: fields.%s must be a template or list of templates", path, name)
			}
		}
	}

	return src, nil
}

func buildChannel(index int, rec *domain.Record) (ChannelConfig, error) {
	path := fmt.Sprintf("channels[%d]", index)
	var ch ChannelConfig
	var err error

	ch.Name, _ = rec.GetString("name")
	if ch.Filter, err = optionalString(rec, "filter", path); err != nil {
		return ch, err
	}

	if groupsVal, ok := rec.Get("groups"); ok {
		switch val := groupsVal.(type) {
		case string:
			ch.Groups = []string{val}
		case []any:
			for _, g := range val {
				s, isStr := g.(string)
				if !isStr {
					return ch, domain.ErrSchema("%s: groups entries must be strings", path)
				}
				ch.Groups = append(ch.Groups, s)
			}
		default:
			return ch, domain.ErrSchema("%s: groups must be a glob or list of globs", path)
		}
	}

	if privVal, ok := rec.Get("private"); ok {
		switch val := privVal.(type) {
		case bool:
			ch.Private = val
		case string:
			ch.Private = strings.EqualFold(val, "true")
		default:
			return ch, domain.ErrSchema("%s: private must be a boolean", path)
		}
	}

	if perms, ok := rec.Get("permissions"); ok {
		ch.Permissions = perms
	}

	return ch, nil
}

func optionalString(rec *domain.Record, field, path string) (string, error) {
	v, ok := rec.Get(field)
	if !ok {
		return "", nil
	}
	s, isStr := v.(string)
	if !isStr {
		return "", domain.ErrSchema("%s: %s must be a string", path, field)
	}
	return s, nil
}

func scalarToString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
