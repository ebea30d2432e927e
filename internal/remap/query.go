// Package remap rewrites internal references inside query documents,
// visualization settings and parameter mappings using the identity maps of
// one clone run. Every operation works on a deep copy and never mutates
// caller-owned structures; references that cannot be mapped are logged and
// left as-is, never invented.
package remap

import (
	"log"

	"github.com/google/uuid"
	"github.com/mohae/deepcopy"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/mbql"
)

// Query rewrites a dataset query against the target database: the database
// reference is replaced, and for structured (non-native) queries the
// source table and every field reference are remapped through the run's
// identity maps. Unmapped references stay byte-identical to the source.
func Query(query map[string]any, targetDatabaseID int, state *domain.CloneState) map[string]any {
	if query == nil {
		return nil
	}

	root := mbql.Parse(query).(*mbql.Object)

	if _, ok := root.Get("database"); ok {
		root.Entries["database"] = &mbql.Scalar{Val: targetDatabaseID}
	}

	queryType := ""
	if n, ok := root.Get("type"); ok {
		if s, ok := n.(*mbql.Scalar); ok {
			queryType, _ = s.Val.(string)
		}
	}

	if inner, ok := root.Get("query"); ok && queryType == "query" {
		if innerObj, ok := inner.(*mbql.Object); ok {
			remapSourceTable(innerObj, state.Tables)
			if unresolved := mbql.RewriteFields(innerObj, state.Fields); len(unresolved) > 0 {
				log.Printf("[REMAP] warning: %d unresolved field references in query: %v", len(unresolved), unresolved)
			}
		}
	}

	return root.Value().(map[string]any)
}

func remapSourceTable(query *mbql.Object, tables domain.IdentityMap) {
	n, ok := query.Get("source-table")
	if !ok {
		return
	}
	scalar, ok := n.(*mbql.Scalar)
	if !ok {
		return
	}
	// Non-integer source tables ("card__N" references) pass through.
	id, ok := mbql.AsInt(scalar.Val)
	if !ok {
		return
	}
	if mapped, ok := tables.Resolve(id); ok {
		scalar.Val = mapped
	} else {
		log.Printf("[REMAP] warning: unresolved source-table %d", id)
	}
}

// RegenerateTemplateTags assigns fresh random ids to every native-query
// template tag, preventing tag collisions between the source question and
// its clone. Both the classic "native" layout and the staged MBQL layout
// are handled. The query is mutated in place; callers pass the already
// copied document produced by Query.
func RegenerateTemplateTags(query map[string]any) {
	if query == nil {
		return
	}
	if native, ok := query["native"].(map[string]any); ok {
		regenerateTags(native)
	}
	if stages, ok := query["stages"].([]any); ok {
		for _, raw := range stages {
			if stage, ok := raw.(map[string]any); ok {
				regenerateTags(stage)
			}
		}
	}
}

func regenerateTags(holder map[string]any) {
	tags, ok := holder["template-tags"].(map[string]any)
	if !ok {
		return
	}
	for name, raw := range tags {
		tag, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if _, ok := tag["id"]; ok {
			tag["id"] = uuid.NewString()
			log.Printf("[REMAP] regenerated template tag %q id", name)
		}
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	return deepcopy.Copy(m).(map[string]any)
}
