package remap

import (
	"log"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/mbql"
)

// ClickBehaviors rewrites every click-behavior directive inside
// visualization settings: the top level "click_behavior", the per-column
// occurrences under "column_settings", and the alternate "click" key. Each
// occurrence is processed exactly once. fallbackTabs is consulted only when
// the target dashboard has no per-target tab map recorded yet.
func ClickBehaviors(viz map[string]any, state *domain.CloneState, fallbackTabs domain.IdentityMap) map[string]any {
	if viz == nil {
		return nil
	}
	viz = deepCopyMap(viz)

	if cb, ok := viz["click_behavior"].(map[string]any); ok {
		remapClickBehavior(cb, state, fallbackTabs)
	}
	if columns, ok := viz["column_settings"].(map[string]any); ok {
		for _, raw := range columns {
			colSettings, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if cb, ok := colSettings["click_behavior"].(map[string]any); ok {
				remapClickBehavior(cb, state, fallbackTabs)
			}
		}
	}
	// The alternate "click" key carries the same shape; "click_behavior"
	// itself was already handled above and must not run twice.
	if cb, ok := viz["click"].(map[string]any); ok {
		remapClickBehavior(cb, state, fallbackTabs)
	}

	return viz
}

func remapClickBehavior(cb map[string]any, state *domain.CloneState, fallbackTabs domain.IdentityMap) {
	linkType, _ := cb["linkType"].(string)
	targetID, hasTarget := mbql.AsInt(cb["targetId"])

	switch {
	case linkType == "dashboard" && hasTarget:
		// Self-links remap the same way: the dashboard map already holds the
		// clone's own identity by the time its cards are processed.
		newTarget := targetID
		if mapped, ok := state.Dashboards.Resolve(targetID); ok {
			newTarget = mapped
			cb["targetId"] = mapped
		}
		remapTabReference(cb, newTarget, state, fallbackTabs)

	case linkType == "question" && hasTarget:
		if mapped, ok := state.Questions.Resolve(targetID); ok {
			cb["targetId"] = mapped
		}
	}

	remapBehaviorParameterMapping(cb, state)
}

// remapTabReference resolves a tab id against the target dashboard's own
// tab map when one exists, else the fallback map. A tab id that is neither
// a known source id nor an already-remapped clone id is dropped with a
// warning rather than invented.
func remapTabReference(cb map[string]any, targetDashboard int, state *domain.CloneState, fallbackTabs domain.IdentityMap) {
	raw, ok := cb["tabId"]
	if !ok {
		return
	}
	oldTab, ok := mbql.AsInt(raw)
	if !ok {
		return
	}

	tabs := state.TabsFor(targetDashboard, fallbackTabs)
	if len(tabs) == 0 {
		log.Printf("[REMAP] warning: no tab mapping for dashboard %d, keeping tab %d", targetDashboard, oldTab)
		return
	}

	switch {
	case hasKey(tabs, oldTab):
		cb["tabId"] = tabs[oldTab]
	case tabs.HasValue(oldTab):
		// Already a clone-side tab id from an earlier pass; leave it.
	default:
		log.Printf("[REMAP] warning: tab %d not found for dashboard %d, clearing tab reference", oldTab, targetDashboard)
		delete(cb, "tabId")
	}
}

func hasKey(m domain.IdentityMap, k int) bool {
	_, ok := m[k]
	return ok
}

// remapBehaviorParameterMapping rewrites field references embedded in the
// click behavior's parameterMapping sources.
func remapBehaviorParameterMapping(cb map[string]any, state *domain.CloneState) {
	params, ok := cb["parameterMapping"].(map[string]any)
	if !ok {
		return
	}
	for _, raw := range params {
		mapping, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		source, ok := mapping["source"].(map[string]any)
		if !ok {
			continue
		}
		if kind, _ := source["type"].(string); kind != "column" {
			continue
		}
		ref, ok := source["id"].([]any)
		if !ok {
			continue
		}
		node := mbql.Parse(ref)
		if unresolved := mbql.RewriteFields(node, state.Fields); len(unresolved) > 0 {
			log.Printf("[REMAP] warning: unresolved field references in click parameter mapping: %v", unresolved)
		}
		source["id"] = node.Value()
	}
}
