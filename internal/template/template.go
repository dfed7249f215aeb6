// Package template implements the interpolation micro-language used by
// specification patterns: literal text with embedded field references of
// the form "{{ field }}", "{{ nested.path }}", or "{{ vars.name }}".
//
// Only substitution is supported. Record fields take precedence; the
// global variables are reachable exclusively through the "vars" namespace.
package template

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/jlumbroso/slacktivate/internal/domain"
)

const varsNamespace = "vars"

var refPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_-]*(\.[A-Za-z_][A-Za-z0-9_-]*)*$`)

// Render substitutes every reference in the pattern with the matching
// record field or global variable. A pattern with no references renders to
// itself. An unresolvable reference is a TemplateError naming the field.
func Render(pattern string, rec *domain.Record, vars map[string]string) (string, error) {
	return render(pattern, rec, vars, false)
}

// IsRenderable reports whether the pattern is syntactically valid,
// independently of any data.
func IsRenderable(pattern string) bool {
	return CheckSyntax(pattern) == nil
}

// CheckSyntax validates the pattern's reference syntax without rendering.
func CheckSyntax(pattern string) error {
	rest := pattern
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			return nil
		}
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return domain.ErrTemplate(pattern, "unterminated reference")
		}
		ref := strings.TrimSpace(rest[:end])
		if !refPattern.MatchString(ref) {
			return domain.ErrTemplate(pattern, "invalid reference %q", ref)
		}
		rest = rest[end+2:]
	}
}

// ReferencedFields discovers which top-level record fields a pattern reads,
// without any data. Probing renders the pattern repeatedly, supplying an
// empty-string stand-in for each field reported missing, until rendering
// succeeds. References into the vars namespace are not record fields and
// are not reported.
func ReferencedFields(pattern string) ([]string, error) {
	if err := CheckSyntax(pattern); err != nil {
		return nil, err
	}
	probe := domain.NewRecord()
	var fields []string
	for {
		_, err := render(pattern, probe, nil, true)
		if err == nil {
			return fields, nil
		}
		var terr *domain.TemplateError
		if errors.As(err, &terr) && terr.Field != "" {
			fields = append(fields, terr.Field)
			probe.Set(terr.Field, "")
			continue
		}
		return nil, err
	}
}

func render(pattern string, rec *domain.Record, vars map[string]string, probe bool) (string, error) {
	var b strings.Builder
	rest := pattern
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String(), nil
		}
		b.WriteString(rest[:start])
		rest = rest[start+2:]
		end := strings.Index(rest, "}}")
		if end < 0 {
			return "", domain.ErrTemplate(pattern, "unterminated reference")
		}
		ref := strings.TrimSpace(rest[:end])
		rest = rest[end+2:]
		if !refPattern.MatchString(ref) {
			return "", domain.ErrTemplate(pattern, "invalid reference %q", ref)
		}
		val, err := resolve(pattern, ref, rec, vars, probe)
		if err != nil {
			return "", err
		}
		b.WriteString(val)
	}
}

// resolve looks up a dotted reference. In probe mode only a missing
// top-level field is an error; everything past a probe stand-in resolves
// to the empty string so field discovery can terminate.
func resolve(pattern, ref string, rec *domain.Record, vars map[string]string, probe bool) (string, error) {
	segs := strings.Split(ref, ".")

	var cur any
	if rec != nil {
		if v, ok := rec.Get(segs[0]); ok {
			cur = v
		} else if segs[0] == varsNamespace && len(segs) > 1 {
			return resolveVars(pattern, ref, segs[1:], vars, probe)
		} else {
			return "", domain.ErrTemplateField(pattern, segs[0])
		}
	} else {
		if segs[0] == varsNamespace && len(segs) > 1 {
			return resolveVars(pattern, ref, segs[1:], vars, probe)
		}
		return "", domain.ErrTemplateField(pattern, segs[0])
	}

	for _, seg := range segs[1:] {
		nested, ok := cur.(*domain.Record)
		if !ok {
			if probe {
				return "", nil
			}
			return "", domain.ErrTemplateField(pattern, ref)
		}
		v, ok := nested.Get(seg)
		if !ok {
			if probe {
				return "", nil
			}
			return "", domain.ErrTemplateField(pattern, ref)
		}
		cur = v
	}
	return stringify(pattern, ref, cur, probe)
}

func resolveVars(pattern, ref string, segs []string, vars map[string]string, probe bool) (string, error) {
	if len(segs) != 1 {
		if probe {
			return "", nil
		}
		return "", domain.ErrTemplateField(pattern, ref)
	}
	v, ok := vars[segs[0]]
	if !ok {
		if probe {
			return "", nil
		}
		return "", domain.ErrTemplateField(pattern, ref)
	}
	return v, nil
}

func stringify(pattern, ref string, v any, probe bool) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case nil:
		return "", nil
	default:
		if probe {
			return "", nil
		}
		return "", domain.ErrTemplate(pattern, "reference %q is not a scalar", ref)
	}
}
