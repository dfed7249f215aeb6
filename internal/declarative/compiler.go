package declarative

import (
	"errors"
	"fmt"
	"path"

	"github.com/jlumbroso/slacktivate/internal/domain"
	"github.com/jlumbroso/slacktivate/internal/filter"
	"github.com/jlumbroso/slacktivate/internal/identity"
	"github.com/jlumbroso/slacktivate/internal/loader"
	"github.com/jlumbroso/slacktivate/internal/template"
)

// identityField is the record field alias resolution rewrites.
const identityField = "email"

// Compile turns a validated specification into the resolved membership
// model: sources load and merge into one user directory, group rules
// expand into concrete groups, channel rules expand into concrete
// channels against those groups. Every stage runs in declaration order
// and the compile is all-or-nothing.
func Compile(doc *Document) (*domain.CompiledModel, error) {
	dir, err := buildDirectory(doc)
	if err != nil {
		return nil, err
	}

	if aliasValue, ok := doc.Settings.String(domain.SettingAlternateEmails); ok {
		table, err := identity.LoadAliasTable(aliasValue)
		if err != nil {
			return nil, err
		}
		for _, rec := range dir.Records() {
			identity.ResolveAliases(rec, identityField, table)
		}
	}

	groups := make([]domain.Group, 0, len(doc.Groups))
	for i, gc := range doc.Groups {
		expanded, err := expandGroup(gc, dir, doc.Vars)
		if err != nil {
			return nil, fmt.Errorf("groups[%d]: %w", i, err)
		}
		groups = append(groups, expanded...)
	}

	channels := make([]domain.Channel, 0, len(doc.Channels))
	for i, cc := range doc.Channels {
		expanded, err := expandChannel(cc, groups, dir, doc.Vars)
		if err != nil {
			return nil, fmt.Errorf("channels[%d]: %w", i, err)
		}
		channels = append(channels, expanded...)
	}

	return domain.NewCompiledModel(dir, groups, channels, doc.Settings, doc.Vars), nil
}

// CompileSpecification parses, validates, and compiles in one call.
func CompileSpecification(source string, data []byte) (*domain.CompiledModel, error) {
	doc, err := ParseSpecification(source, data)
	if err != nil {
		return nil, err
	}
	return Compile(doc)
}

// buildDirectory loads every user source in declaration order and merges
// the records into one directory. A key appearing in more than one source
// merges explicitly; strict_merge switches to exact-only merging, where a
// non-list conflict aborts the compile.
func buildDirectory(doc *Document) (*domain.Directory, error) {
	dir := domain.NewDirectory()
	exactOnly := doc.Settings.Bool(domain.SettingStrictMerge)

	for i, src := range doc.Users {
		name := fmt.Sprintf("users[%d]", i)
		records, sourceName, err := loadSource(src, doc.Vars)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		for _, rec := range records {
			key, keyed, err := identity.ComputeKey(rec, "", doc.Vars)
			if err != nil {
				return nil, fmt.Errorf("%s (%s): %w", name, sourceName, err)
			}
			if !keyed {
				return nil, fmt.Errorf("%s (%s): cannot compute identity key for record", name, sourceName)
			}

			existing := dir.Get(key)
			if existing == nil {
				dir.Set(key, rec)
				continue
			}
			merged, err := identity.Merge(existing, rec, exactOnly)
			if err != nil {
				var conflict *domain.MergeConflictError
				if errors.As(err, &conflict) {
					return nil, fmt.Errorf("%s (%s): %w", name, sourceName, domain.ErrMergeConflict(key, conflict.Field))
				}
				return nil, fmt.Errorf("%s (%s): %w", name, sourceName, err)
			}
			dir.Set(key, merged)
		}
	}
	return dir, nil
}

// loadSource reads one user source and applies its per-source pipeline:
// reindex under an explicit key (stamping the key pattern on each record),
// derived-field expansion, then the optional filter.
func loadSource(src UserSourceConfig, vars map[string]string) ([]*domain.Record, string, error) {
	var records []*domain.Record
	sourceName := "inline contents"

	if src.File != "" {
		pattern, err := template.Render(src.File, nil, vars)
		if err != nil {
			return nil, src.File, err
		}
		resolved, err := loader.ResolveFile(pattern, src.Sort)
		if err != nil {
			return nil, pattern, err
		}
		sourceName = resolved
		if records, err = loader.LoadFile(resolved, src.Type); err != nil {
			return nil, sourceName, err
		}
	} else {
		var err error
		if records, err = loader.Decode(sourceName, []byte(src.Contents), src.Type); err != nil {
			return nil, sourceName, err
		}
	}

	if src.Key != "" {
		reindexed, _, err := identity.Reindex(records, src.Key, vars)
		if err != nil {
			return nil, sourceName, err
		}
		records = reindexed.Records()
		for _, rec := range records {
			rec.Set("key", src.Key)
		}
	}

	for _, field := range src.Fields {
		for _, rec := range records {
			if err := expandDerivedField(rec, field, vars); err != nil {
				return nil, sourceName, err
			}
		}
	}

	if src.Filter != "" {
		query, err := filter.Parse(src.Filter)
		if err != nil {
			return nil, sourceName, err
		}
		records = query.Apply(records)
	}

	return records, sourceName, nil
}

func expandDerivedField(rec *domain.Record, field DerivedField, vars map[string]string) error {
	if !field.Append {
		rendered, err := template.Render(field.Patterns[0], rec, vars)
		if err != nil {
			return err
		}
		rec.Set(field.Name, rendered)
		return nil
	}

	// List form: render every pattern and append to an existing
	// list-valued field of the same name.
	var list []any
	if existing, ok := rec.Get(field.Name); ok {
		if existingList, isList := existing.([]any); isList {
			list = existingList
		}
	}
	for _, pattern := range field.Patterns {
		rendered, err := template.Render(pattern, rec, vars)
		if err != nil {
			return err
		}
		list = append(list, rendered)
	}
	rec.Set(field.Name, list)
	return nil
}

// expandGroup applies the rule's filter to the full user set and
// partitions the result by the rendered name template: every distinct
// rendered name becomes one group, membership in first-seen order. One
// rule can therefore expand to many groups purely through its template.
func expandGroup(gc GroupConfig, dir *domain.Directory, vars map[string]string) ([]domain.Group, error) {
	target := dir.Records()

	if gc.Filter != "" {
		query, err := filter.Parse(gc.Filter)
		if err != nil {
			return nil, err
		}
		target = query.Apply(target)
	}

	names, members, err := partitionByName(gc.Name, target, vars)
	if err != nil {
		return nil, err
	}

	groups := make([]domain.Group, 0, len(names))
	for i, name := range names {
		groups = append(groups, domain.Group{Name: name, Users: members[i], Filter: gc.Filter})
	}
	return groups, nil
}

// expandChannel resolves the rule's group globs against the concrete
// group names (union of matching memberships, deduplicated), falls back
// to the full directory when no globs are given, filters, and partitions
// by the rendered channel name.
func expandChannel(cc ChannelConfig, groups []domain.Group, dir *domain.Directory, vars map[string]string) ([]domain.Channel, error) {
	var target []*domain.Record

	if len(cc.Groups) > 0 {
		matched := make(map[string]bool, len(groups))
		for _, g := range groups {
			for _, glob := range cc.Groups {
				ok, err := path.Match(glob, g.Name)
				if err != nil {
					return nil, domain.ErrSchema("bad glob %q", glob)
				}
				if ok {
					matched[g.Name] = true
					break
				}
			}
		}
		for _, g := range groups {
			if matched[g.Name] {
				target = append(target, g.Users...)
			}
		}
		var err error
		if target, err = identity.Deduplicate(target, "", vars); err != nil {
			return nil, err
		}
	} else {
		target = dir.Records()
	}

	if cc.Filter != "" {
		query, err := filter.Parse(cc.Filter)
		if err != nil {
			return nil, err
		}
		target = query.Apply(target)
	}

	names, members, err := partitionByName(cc.Name, target, vars)
	if err != nil {
		return nil, err
	}

	channels := make([]domain.Channel, 0, len(names))
	for i, name := range names {
		channels = append(channels, domain.Channel{
			Name:        name,
			Users:       members[i],
			Filter:      cc.Filter,
			Private:     cc.Private,
			Permissions: cc.Permissions,
		})
	}
	return channels, nil
}

// partitionByName groups records by the string each renders to under the
// name template. Partition order is first-seen; member order within a
// partition is input order. The union of all partitions is exactly the
// input and every record lands in exactly one partition.
func partitionByName(pattern string, records []*domain.Record, vars map[string]string) ([]string, [][]*domain.Record, error) {
	var order []string
	buckets := make(map[string][]*domain.Record)

	for _, rec := range records {
		name, err := template.Render(pattern, rec, vars)
		if err != nil {
			return nil, nil, err
		}
		if _, seen := buckets[name]; !seen {
			order = append(order, name)
		}
		buckets[name] = append(buckets[name], rec)
	}

	members := make([][]*domain.Record, len(order))
	for i, name := range order {
		members[i] = buckets[name]
	}
	return order, members, nil
}
