package remap

import (
	"log"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/mbql"
)

// ParameterMappings rewrites a dashcard's parameter mappings for its cloned
// card: the owning card id is replaced and any field reference embedded in
// the mapping target is remapped. A target whose field could not be
// resolved is logged but kept as-is.
func ParameterMappings(mappings []map[string]any, newCardID int, state *domain.CloneState) []map[string]any {
	if len(mappings) == 0 {
		return nil
	}
	remapped := make([]map[string]any, 0, len(mappings))
	for _, mapping := range mappings {
		out := deepCopyMap(mapping)
		out["card_id"] = newCardID

		if target, ok := out["target"].([]any); ok {
			node := mbql.Parse(target)
			if unresolved := mbql.RewriteFields(node, state.Fields); len(unresolved) > 0 {
				log.Printf("[REMAP] warning: could not remap parameter target fields: %v", unresolved)
			}
			out["target"] = node.Value().([]any)
		}
		remapped = append(remapped, out)
	}
	return remapped
}

// DashboardParameters rewrites dashboard-level filters. A filter may carry a
// values_source_config referencing a hidden question that populates its
// dropdown; that card id is remapped through the question map, which is why
// hidden filter-source questions must be cloned before this runs.
func DashboardParameters(params []map[string]any, state *domain.CloneState) []map[string]any {
	if len(params) == 0 {
		return nil
	}
	remapped := make([]map[string]any, 0, len(params))
	for _, param := range params {
		out := deepCopyMap(param)
		if source, ok := out["values_source_config"].(map[string]any); ok {
			if cardID, ok := mbql.AsInt(source["card_id"]); ok {
				if mapped, ok := state.Questions.Resolve(cardID); ok {
					source["card_id"] = mapped
				} else {
					log.Printf("[REMAP] warning: filter %v references card %d which was not cloned", out["name"], cardID)
				}
			}
		}
		remapped = append(remapped, out)
	}
	return remapped
}

// FilterSourceCardIDs returns the ids of hidden questions referenced only
// by filter dropdown configurations, deduplicated in encounter order.
func FilterSourceCardIDs(params []map[string]any) []int {
	var ids []int
	seen := map[int]bool{}
	for _, param := range params {
		source, ok := param["values_source_config"].(map[string]any)
		if !ok {
			continue
		}
		cardID, ok := mbql.AsInt(source["card_id"])
		if !ok || cardID == 0 || seen[cardID] {
			continue
		}
		seen[cardID] = true
		ids = append(ids, cardID)
	}
	return ids
}

// Series rewrites a dashcard's series list through the question map.
// Entries may be bare card ids or full card objects; entries whose card was
// not cloned are dropped with a warning.
func Series(series []any, state *domain.CloneState) []any {
	if len(series) == 0 {
		return nil
	}
	var remapped []any
	for _, item := range series {
		switch entry := item.(type) {
		case map[string]any:
			oldID, ok := mbql.AsInt(entry["id"])
			if !ok {
				continue
			}
			if mapped, ok := state.Questions.Resolve(oldID); ok {
				out := deepCopyMap(entry)
				out["id"] = mapped
				remapped = append(remapped, out)
			} else {
				log.Printf("[REMAP] warning: could not remap series card %d", oldID)
			}
		default:
			oldID, ok := mbql.AsInt(item)
			if !ok {
				continue
			}
			if mapped, ok := state.Questions.Resolve(oldID); ok {
				remapped = append(remapped, mapped)
			} else {
				log.Printf("[REMAP] warning: could not remap series card %d", oldID)
			}
		}
	}
	return remapped
}
