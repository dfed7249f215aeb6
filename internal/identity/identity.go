// Package identity computes canonical keys for records, reindexes and
// deduplicates record collections, and merges records that share a key.
// Key computation is a pure function of (record, key pattern, vars): the
// same inputs always produce the same key, which is what makes repeated
// compiles diff-friendly.
package identity

import (
	"strconv"
	"strings"

	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/template"
)

// ComputeKey derives the canonical key for a record. With an explicit key
// pattern the pattern is rendered against the record. Without one, a
// heuristic applies, in priority order: an existing "key" field (treated
// as a pattern, as sources stamp their key pattern there), the first field
// whose string value contains "@", then the first field of the record.
// ok is false when no key can be derived at all (an empty or
// scalar-free record).
func ComputeKey(rec *domain.Record, keyPattern string, vars map[string]string) (key string, ok bool, err error) {
	if keyPattern != "" {
		key, err = template.Render(keyPattern, rec, vars)
		return key, err == nil, err
	}

	if stamped, isString := rec.GetString("key"); isString && stamped != "" {
		key, err = template.Render(stamped, rec, vars)
		return key, err == nil, err
	}

	for _, name := range rec.Keys() {
		v, _ := rec.Get(name)
		if s, isString := v.(string); isString && strings.Contains(s, "@") {
			return s, true, nil
		}
	}

	if _, first, found := rec.First(); found {
		if s, scalar := scalarString(first); scalar {
			return s, true, nil
		}
	}
	return "", false, nil
}

func scalarString(v any) (string, bool) {
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

// Reindex keys every record, building a directory in first-seen key order.
// Records that collide on a key replace the earlier value while keeping
// its position. If any record cannot produce a heuristic key, the whole
// reindex is abandoned (ok is false) rather than partially applied; the
// caller keeps the original, unindexed collection.
func Reindex(records []*domain.Record, keyPattern string, vars map[string]string) (dir *domain.Directory, ok bool, err error) {
	dir = domain.NewDirectory()
	for _, rec := range records {
		key, keyed, err := ComputeKey(rec, keyPattern, vars)
		if err != nil {
			return nil, false, err
		}
		if !keyed {
			return nil, false, nil
		}
		dir.Set(key, rec)
	}
	return dir, true, nil
}

// Merge combines two records sharing a canonical key, field by field:
// fields missing from old are added; list-valued fields on both sides are
// unioned (new elements appended in order, old first); any other conflict
// is overridden by new — unless exactOnly is set, in which case a value
// conflict on a non-list field is a MergeConflictError naming the field.
func Merge(old, new *domain.Record, exactOnly bool) (*domain.Record, error) {
	if old == nil {
		return new, nil
	}
	if new == nil {
		return old, nil
	}
	result := old.Clone()
	for _, key := range new.Keys() {
		newVal, _ := new.Get(key)
		oldVal, exists := result.Get(key)
		if !exists {
			result.Set(key, domain.CloneValue(newVal))
			continue
		}

		oldList, oldIsList := oldVal.([]any)
		newList, newIsList := newVal.([]any)
		if oldIsList && newIsList {
			merged := oldList
			for _, item := range newList {
				seen := false
				for _, existing := range merged {
					if domain.ValueEqual(existing, item) {
						seen = true
						break
					}
				}
				if !seen {
					merged = append(merged, domain.CloneValue(item))
				}
			}
			result.Set(key, merged)
			continue
		}

		if exactOnly && !domain.ValueEqual(oldVal, newVal) {
			return nil, domain.ErrMergeConflict("", key)
		}
		result.Set(key, domain.CloneValue(newVal))
	}
	return result, nil
}

// Deduplicate removes exact key collisions from a record sequence by
// reindexing and unindexing. When reindexing is abandoned the input is
// returned unchanged.
func Deduplicate(records []*domain.Record, keyPattern string, vars map[string]string) ([]*domain.Record, error) {
	dir, ok, err := Reindex(records, keyPattern, vars)
	if err != nil {
		return nil, err
	}
	if !ok {
		return records, nil
	}
	return dir.Records(), nil
}
