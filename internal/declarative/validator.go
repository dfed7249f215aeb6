package declarative

import (
	"fmt"
	"path"
	"strings"

	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/filter"
	"github.com/jlumbroso/slacktivate/internal/loader"
	"github.com/jlumbroso/slacktivate/internal/template"
)

// ValidationError represents a single validation problem.
type ValidationError struct {
	Path    string // e.g. "users[0]" or "channels[2].filter"
	Message string
}

func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidateOptions configures validation behavior.
type ValidateOptions struct {
	// SkipSourceChecks disables resolving file locators against the
	// filesystem, for callers that validate a specification away from
	// its source files.
	SkipSourceChecks bool
}

// Validate checks a raw document against the section schemas and both
// embedded languages. It returns every violation found, not just the
// first, so one pass reports all configuration mistakes.
func Validate(raw *RawDocument, opts ValidateOptions) []ValidationError {
	var errs []ValidationError

	for _, section := range raw.UnknownSections {
		errs = append(errs, ValidationError{
			Message: fmt.Sprintf("unknown section %q (expected settings, vars, users, groups, channels)", section),
		})
	}

	if raw.Vars != nil {
		for _, key := range raw.Vars.Keys() {
			v, _ := raw.Vars.Get(key)
			if _, ok := scalarToString(v); !ok {
				errs = append(errs, ValidationError{
					Path:    "vars." + key,
					Message: "value must be a scalar",
				})
			}
		}
	}

	if raw.Settings != nil {
		validateSettings(raw.Settings, &errs)
	}

	vars := rawVars(raw)

	for i, rec := range raw.Users {
		p := fmt.Sprintf("users[%d]", i)
		validateFields(p, rec, userSourceSchema, &errs)
		validateUserSource(p, rec, vars, opts, &errs)
	}

	for i, rec := range raw.Groups {
		p := fmt.Sprintf("groups[%d]", i)
		validateFields(p, rec, groupSchema, &errs)
		validateNameAndFilter(p, rec, &errs)
	}

	for i, rec := range raw.Channels {
		p := fmt.Sprintf("channels[%d]", i)
		validateFields(p, rec, channelSchema, &errs)
		validateNameAndFilter(p, rec, &errs)
		validateChannelExtras(p, rec, &errs)
	}

	return errs
}

// validateFields enforces the section's required/alternative and strict
// field sets: every required entry must have at least one alternative
// present, and no field outside required∪optional is allowed.
func validateFields(p string, rec *domain.Record, schema sectionSchema, errs *[]ValidationError) {
	var missing []string
	for _, alternatives := range schema.required {
		found := false
		for _, name := range alternatives {
			if _, ok := rec.Get(name); ok {
				found = true
				break
			}
		}
		if !found {
			missing = append(missing, strings.Join(alternatives, "|"))
		}
	}
	if len(missing) > 0 {
		*errs = append(*errs, ValidationError{
			Path:    p,
			Message: fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
		})
	}

	allowed := schema.allowed()
	for _, key := range rec.Keys() {
		known := false
		for _, name := range allowed {
			if key == name {
				known = true
				break
			}
		}
		if !known {
			*errs = append(*errs, ValidationError{
				Path:    p,
				Message: fmt.Sprintf("unexpected field %q (allowed: %s)", key, strings.Join(allowed, ", ")),
			})
		}
	}
}

func validateUserSource(p string, rec *domain.Record, vars map[string]string, opts ValidateOptions, errs *[]ValidationError) {
	if typeVal, ok := rec.Get("type"); ok {
		typeStr, isStr := typeVal.(string)
		if !isStr {
			*errs = append(*errs, ValidationError{Path: p + ".type", Message: "must be a string"})
		} else if _, err := loader.ParseFormat(typeStr); err != nil {
			*errs = append(*errs, ValidationError{Path: p + ".type", Message: err.Error()})
		}
	}

	if sortVal, ok := rec.Get("sort"); ok {
		sortStr, isStr := sortVal.(string)
		if !isStr {
			*errs = append(*errs, ValidationError{Path: p + ".sort", Message: "must be a string"})
		} else if _, err := loader.ParseSortOrder(sortStr); err != nil {
			*errs = append(*errs, ValidationError{Path: p + ".sort", Message: err.Error()})
		}
	}

	if keyVal, ok := rec.Get("key"); ok {
		keyStr, isStr := keyVal.(string)
		if !isStr {
			*errs = append(*errs, ValidationError{Path: p + ".key", Message: "must be a string"})
		} else if err := template.CheckSyntax(keyStr); err != nil {
			*errs = append(*errs, ValidationError{Path: p + ".key", Message: err.Error()})
		}
	}

	if filterVal, ok := rec.Get("filter"); ok {
		validateFilterValue(p+".filter", filterVal, errs)
	}

	if fieldsVal, ok := rec.Get("fields"); ok {
		validateDerivedFields(p+".fields", fieldsVal, errs)
	}

	if fileVal, ok := rec.Get("file"); ok {
		validateFileLocator(p+".file", fileVal, vars, opts, errs)
	} else if contentsVal, ok := rec.Get("contents"); ok {
		if _, isStr := contentsVal.(string); !isStr {
			*errs = append(*errs, ValidationError{Path: p + ".contents", Message: "must be a string"})
		}
	}
}

// validateFileLocator checks that a file pattern references only vars and,
// unless source checks are skipped, that it resolves to at least one file
// right now — so a missing source fails at validation, not mid-compile.
func validateFileLocator(p string, fileVal any, vars map[string]string, opts ValidateOptions, errs *[]ValidationError) {
	pattern, isStr := fileVal.(string)
	if !isStr {
		*errs = append(*errs, ValidationError{Path: p, Message: "must be a string"})
		return
	}
	refs, err := template.ReferencedFields(pattern)
	if err != nil {
		*errs = append(*errs, ValidationError{Path: p, Message: err.Error()})
		return
	}
	if len(refs) > 0 {
		*errs = append(*errs, ValidationError{
			Path:    p,
			Message: fmt.Sprintf("file pattern may only reference vars, found record fields: %s", strings.Join(refs, ", ")),
		})
		return
	}
	if opts.SkipSourceChecks {
		return
	}
	rendered, err := template.Render(pattern, nil, vars)
	if err != nil {
		*errs = append(*errs, ValidationError{Path: p, Message: err.Error()})
		return
	}
	if _, err := loader.ResolveFile(rendered, loader.SortNewest); err != nil {
		*errs = append(*errs, ValidationError{Path: p, Message: err.Error()})
	}
}

func validateDerivedFields(p string, fieldsVal any, errs *[]ValidationError) {
	fieldsRec, isRec := fieldsVal.(*domain.Record)
	if !isRec {
		*errs = append(*errs, ValidationError{Path: p, Message: "must be a mapping of field name to template"})
		return
	}
	for _, name := range fieldsRec.Keys() {
		v, _ := fieldsRec.Get(name)
		switch val := v.(type) {
		case string:
			if err := template.CheckSyntax(val); err != nil {
				*errs = append(*errs, ValidationError{Path: p + "." + name, Message: err.Error()})
			}
		case []any:
			for j, pat := range val {
				s, isStr := pat.(string)
				if !isStr {
					*errs = append(*errs, ValidationError{
						Path:    fmt.Sprintf("%s.%s[%d]", p, name, j),
						Message: "must be a string",
					})
					continue
				}
				if err := template.CheckSyntax(s); err != nil {
					*errs = append(*errs, ValidationError{
						Path:    fmt.Sprintf("%s.%s[%d]", p, name, j),
						Message: err.Error(),
					})
				}
			}
		default:
			*errs = append(*errs, ValidationError{
				Path:    p + "." + name,
				Message: "must be a template or list of templates",
			})
		}
	}
}

func validateNameAndFilter(p string, rec *domain.Record, errs *[]ValidationError) {
	if nameVal, ok := rec.Get("name"); ok {
		nameStr, isStr := nameVal.(string)
		if !isStr {
			*errs = append(*errs, ValidationError{Path: p + ".name", Message: "must be a string"})
		} else if err := template.CheckSyntax(nameStr); err != nil {
			*errs = append(*errs, ValidationError{Path: p + ".name", Message: err.Error()})
		}
	}
	if filterVal, ok := rec.Get("filter"); ok {
		validateFilterValue(p+".filter", filterVal, errs)
	}
}

// validateFilterValue is the construct-and-discard parse: query syntax
// mistakes surface here, before any records exist.
func validateFilterValue(p string, filterVal any, errs *[]ValidationError) {
	filterStr, isStr := filterVal.(string)
	if !isStr {
		*errs = append(*errs, ValidationError{Path: p, Message: "must be a string"})
		return
	}
	if _, err := filter.Parse(filterStr); err != nil {
		*errs = append(*errs, ValidationError{Path: p, Message: err.Error()})
	}
}

func validateChannelExtras(p string, rec *domain.Record, errs *[]ValidationError) {
	if groupsVal, ok := rec.Get("groups"); ok {
		var globs []string
		switch val := groupsVal.(type) {
		case string:
			globs = []string{val}
		case []any:
			for j, g := range val {
				s, isStr := g.(string)
				if !isStr {
					*errs = append(*errs, ValidationError{
						Path:    fmt.Sprintf("%s.groups[%d]", p, j),
						Message: "must be a string",
					})
					continue
				}
				globs = append(globs, s)
			}
		default:
			*errs = append(*errs, ValidationError{Path: p + ".groups", Message: "must be a glob or list of globs"})
		}
		for _, glob := range globs {
			if _, err := path.Match(glob, ""); err != nil {
				*errs = append(*errs, ValidationError{
					Path:    p + ".groups",
					Message: fmt.Sprintf("bad glob %q", glob),
				})
			}
		}
	}

	if privVal, ok := rec.Get("private"); ok {
		switch val := privVal.(type) {
		case bool:
		case string:
			if !strings.EqualFold(val, "true") && !strings.EqualFold(val, "false") {
				*errs = append(*errs, ValidationError{Path: p + ".private", Message: fmt.Sprintf("not a boolean: %q", val)})
			}
		default:
			*errs = append(*errs, ValidationError{Path: p + ".private", Message: "must be a boolean"})
		}
	}
}

func validateSettings(settings *domain.Record, errs *[]ValidationError) {
	boolSettings := map[string]bool{
		domain.SettingKeepCustomizedPhotos:   true,
		domain.SettingKeepCustomizedName:     true,
		domain.SettingExtendGroupMemberships: true,
		domain.SettingStrictMerge:            true,
	}
	for _, key := range settings.Keys() {
		v, _ := settings.Get(key)
		if boolSettings[key] {
			switch val := v.(type) {
			case bool:
			case string:
				if !strings.EqualFold(val, "true") && !strings.EqualFold(val, "false") {
					*errs = append(*errs, ValidationError{Path: "settings." + key, Message: fmt.Sprintf("not a boolean: %q", val)})
				}
			default:
				*errs = append(*errs, ValidationError{Path: "settings." + key, Message: "must be a boolean"})
			}
		}
		if key == domain.SettingAlternateEmails {
			if _, isStr := v.(string); !isStr {
				*errs = append(*errs, ValidationError{Path: "settings." + key, Message: "must be a string (path or inline alias groups)"})
			}
		}
	}
}

func rawVars(raw *RawDocument) map[string]string {
	vars := map[string]string{}
	if raw.Vars == nil {
		return vars
	}
	for _, key := range raw.Vars.Keys() {
		v, _ := raw.Vars.Get(key)
		if s, ok := scalarToString(v); ok {
			vars[key] = s
		}
	}
	return vars
}
