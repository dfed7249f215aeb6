// Package loader reads user sources in one of the structured record
// formats (json, yaml, csv) into ordered records. It also resolves file
// locators: a locator may be a glob, in which case exactly one match is
// selected by modification time ("pick latest snapshot", never a merge).
package loader

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/jlumbroso/slacktivate/internal/domain"
)

// Format identifies a record source format.
type Format string

// Supported record source formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ParseFormat validates a format tag.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatJSON, FormatYAML, FormatCSV:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unsupported source type %q (expected json, yaml or csv)", s)
	}
}

// SortOrder selects which file a multi-match glob resolves to.
type SortOrder string

// Allowed sort orders. Newest is the default.
const (
	SortNewest SortOrder = "newest"
	SortOldest SortOrder = "oldest"
)

// ParseSortOrder validates a sort option; the empty string means newest.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest:
		return SortOrder(s), nil
	default:
		return "", fmt.Errorf("unsupported sort order %q (expected newest or oldest)", s)
	}
}

// ResolveFile expands a locator glob and selects exactly one file by
// modification time. Zero matches is a SourceNotFoundError naming the
// unexpanded pattern and the working directory.
func ResolveFile(pattern string, order SortOrder) (string, error) {
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("bad glob %q: %w", pattern, err)
	}
	if len(matches) == 0 {
		wd, _ := os.Getwd()
		return "", domain.ErrSourceNotFound(pattern, wd)
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	best := ""
	var bestTime int64
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", m, err)
		}
		t := info.ModTime().UnixNano()
		newer := t > bestTime
		if order == SortOldest {
			newer = t < bestTime
		}
		// Ties break lexicographically so repeated runs stay deterministic.
		if best == "" || newer || (t == bestTime && m < best) {
			best = m
			bestTime = t
		}
	}
	return best, nil
}

// LoadFile reads and decodes one source file.
func LoadFile(path string, format Format) ([]*domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Decode(path, data, format)
}

// Decode parses source bytes into a sequence of records. A keyed document
// (object of records) is unkeyed: its values become the sequence, in
// document order. Decoding failures are ParseErrors naming the source.
func Decode(source string, data []byte, format Format) ([]*domain.Record, error) {
	switch format {
	case FormatJSON:
		return decodeJSON(source, data)
	case FormatYAML:
		return decodeYAML(source, data)
	case FormatCSV:
		return decodeCSV(source, data)
	default:
		return nil, domain.ErrParse(source, "unsupported source type %q", string(format))
	}
}

// === JSON ===

// decodeJSON tolerates comments and trailing commas (stripped before the
// strict decode) and preserves field order via a token walk.
func decodeJSON(source string, data []byte) ([]*domain.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
	dec.UseNumber()
	value, err := decodeJSONValue(dec)
	if err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, domain.ErrParse(source, "trailing content after document")
	}
	return sequenceOf(source, value)
}

func decodeJSONValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			rec := domain.NewRecord()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is not a string")
				}
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				rec.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return rec, nil
		case '[':
			var list []any
			for dec.More() {
				val, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				list = append(list, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return list, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	default:
		// string, bool, nil
		return tok, nil
	}
}

// === YAML ===

func decodeYAML(source string, data []byte) ([]*domain.Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}
	value, err := ConvertYAMLNode(doc.Content[0])
	if err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	return sequenceOf(source, value)
}

// ConvertYAMLNode maps a yaml.Node tree onto record values, preserving
// mapping key order. Exposed for the specification parser, which needs the
// same order-preserving conversion.
func ConvertYAMLNode(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.MappingNode:
		rec := domain.NewRecord()
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: mapping key is not a scalar", keyNode.Line)
			}
			val, err := ConvertYAMLNode(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			rec.Set(keyNode.Value, val)
		}
		return rec, nil
	case yaml.SequenceNode:
		list := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			val, err := ConvertYAMLNode(child)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case yaml.ScalarNode:
		return convertYAMLScalar(node)
	case yaml.AliasNode:
		return ConvertYAMLNode(node.Alias)
	default:
		return nil, fmt.Errorf("line %d: unsupported node kind", node.Line)
	}
}

func convertYAMLScalar(node *yaml.Node) (any, error) {
	switch node.Tag {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, err
		}
		return b, nil
	case "!!int", "!!float":
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, err
		}
		return f, nil
	default:
		return node.Value, nil
	}
}

// === CSV ===

// decodeCSV produces one record per row with header-derived field names.
// All values are strings.
func decodeCSV(source string, data []byte) ([]*domain.Record, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, domain.ErrParse(source, "%s", err.Error())
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	records := make([]*domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := domain.NewRecord()
		for i, name := range header {
			rec.Set(name, row[i])
		}
		records = append(records, rec)
	}
	return records, nil
}

// sequenceOf normalizes a decoded document to a record sequence.
func sequenceOf(source string, value any) ([]*domain.Record, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []any:
		records := make([]*domain.Record, 0, len(v))
		for i, item := range v {
			rec, ok := item.(*domain.Record)
			if !ok {
				return nil, domain.ErrParse(source, "element %d is not a record", i)
			}
			records = append(records, rec)
		}
		return records, nil
	case *domain.Record:
		records := make([]*domain.Record, 0, v.Len())
		for _, key := range v.Keys() {
			item, _ := v.Get(key)
			rec, ok := item.(*domain.Record)
			if !ok {
				return nil, domain.ErrParse(source, "entry %q is not a record", key)
			}
			records = append(records, rec)
		}
		return records, nil
	default:
		return nil, domain.ErrParse(source, "document is not a sequence or mapping of records")
	}
}
