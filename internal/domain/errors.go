package domain

import "fmt"

// SchemaError indicates a specification section with missing or unexpected
// fields. It fails the whole compile.
type SchemaError struct {
	Message string
}

func (e *SchemaError) Error() string { return e.Message }

// ParseError indicates a malformed document or source. Source names the
// file or inline source; the message carries line/column when the
// underlying parser supplies them.
type ParseError struct {
	Source  string
	Message string
}

func (e *ParseError) Error() string {
	if e.Source != "" {
		return fmt.Sprintf("%s: %s", e.Source, e.Message)
	}
	return e.Message
}

// SourceNotFoundError indicates a source locator that resolved to nothing.
type SourceNotFoundError struct {
	Pattern string
	WorkDir string
}

func (e *SourceNotFoundError) Error() string {
	return fmt.Sprintf("source %q matched no files (working directory %s)", e.Pattern, e.WorkDir)
}

// TemplateError indicates a template that cannot be parsed or rendered.
// Field names the unresolvable reference when rendering against data.
type TemplateError struct {
	Pattern string
	Field   string
	Message string
}

func (e *TemplateError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("template %q: unresolved field %q", e.Pattern, e.Field)
	}
	return fmt.Sprintf("template %q: %s", e.Pattern, e.Message)
}

// MergeConflictError indicates two records sharing a canonical key that
// disagree on a non-list field while exact-only merging is in effect.
type MergeConflictError struct {
	Key   string
	Field string
}

func (e *MergeConflictError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("merge conflict on field %q", e.Field)
	}
	return fmt.Sprintf("merging the same user %q from different sources, conflict on %q", e.Key, e.Field)
}

// FilterSyntaxError indicates an invalid filter query.
type FilterSyntaxError struct {
	Query   string
	Message string
}

func (e *FilterSyntaxError) Error() string {
	return fmt.Sprintf("filter %q: %s", e.Query, e.Message)
}

// ErrSchema creates a SchemaError with a formatted message.
func ErrSchema(format string, args ...any) *SchemaError {
	return &SchemaError{Message: fmt.Sprintf(format, args...)}
}

// ErrParse creates a ParseError for a named source.
func ErrParse(source, format string, args ...any) *ParseError {
	return &ParseError{Source: source, Message: fmt.Sprintf(format, args...)}
}

// ErrSourceNotFound creates a SourceNotFoundError for an unexpanded pattern.
func ErrSourceNotFound(pattern, workDir string) *SourceNotFoundError {
	return &SourceNotFoundError{Pattern: pattern, WorkDir: workDir}
}

// ErrTemplateField creates a TemplateError for an unresolvable field.
func ErrTemplateField(pattern, field string) *TemplateError {
	return &TemplateError{Pattern: pattern, Field: field}
}

// ErrTemplate creates a TemplateError with a formatted message.
func ErrTemplate(pattern, format string, args ...any) *TemplateError {
	return &TemplateError{Pattern: pattern, Message: fmt.Sprintf(format, args...)}
}

// ErrMergeConflict creates a MergeConflictError for a key and field.
func ErrMergeConflict(key, field string) *MergeConflictError {
	return &MergeConflictError{Key: key, Field: field}
}

// ErrFilterSyntax creates a FilterSyntaxError with a formatted message.
func ErrFilterSyntax(query, format string, args ...any) *FilterSyntaxError {
	return &FilterSyntaxError{Query: query, Message: fmt.Sprintf(format, args...)}
}
