package replicate

import (
	"strings"

	"cellenics/internal/entitymodel"
	"cellenics/internal/table/core"
)

// RewriteRecord returns a copy of rec in which every identifier found at one of
// entity's reference paths is renamed into ns. Fields outside the reference
// paths are copied unchanged, and rec itself is never modified.
//
// Identifiers held by fields missing from the catalog are not renamed, so the
// clone keeps pointing at the original entity.
func RewriteRecord(rec core.Record, entity entitymodel.Entity, ns Namespace) core.Record {
	out := rec.Clone()
	rename := func(id string) string { return RewriteID(id, ns) }
	for _, ref := range entity.References {
		ref.Path.Apply(out, rename)
	}
	return out
}

// RewriteKey renames the leading id segments of a blob key, one per layout entry.
// The final segment names the object and keeps its name, unless it is the
// whole key, in which case the key is the owner id itself. Empty segments are
// kept as they are.
func RewriteKey(key string, layout []entitymodel.EntityType, ns Namespace) string {
	segments := strings.Split(key, "/")
	ids := min(len(layout), len(segments)-1)
	if len(segments) == 1 {
		ids = min(len(layout), 1)
	}
	for i := range ids {
		segments[i] = RewriteID(segments[i], ns)
	}
	return strings.Join(segments, "/")
}

// grantWriters adds users to the write permission set of a cloned root record.
func grantWriters(rec core.Record, writers []string) {
	if len(writers) == 0 {
		return
	}
	seen := map[string]bool{}
	var merged core.StringSet
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			merged = append(merged, s)
		}
	}
	switch existing := rec[writersField].(type) {
	case core.StringSet:
		for _, s := range existing {
			add(s)
		}
	case []string:
		for _, s := range existing {
			add(s)
		}
	case []any:
		for _, v := range existing {
			if s, ok := v.(string); ok {
				add(s)
			}
		}
	}
	for _, w := range writers {
		add(w)
	}
	rec[writersField] = merged
}

const writersField = "rbac_can_write"
