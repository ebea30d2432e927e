package remap

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/rpattn/dashclone/internal/domain"
)

func decode(t *testing.T, raw string) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatalf("failed to decode fixture: %v", err)
	}
	return m
}

func stateWith(tables, fields, questions, dashboards map[int]int) *domain.CloneState {
	state := domain.NewCloneState()
	for k, v := range tables {
		state.Tables.Record(k, v)
	}
	for k, v := range fields {
		state.Fields.Record(k, v)
	}
	for k, v := range questions {
		state.Questions.Record(k, v)
	}
	for k, v := range dashboards {
		state.Dashboards.Record(k, v)
	}
	return state
}

func TestQueryRemapsStructuredQuery(t *testing.T) {
	query := decode(t, `{
		"database": 1,
		"type": "query",
		"query": {
			"source-table": 10,
			"aggregation": [["count"]],
			"breakout": [["field", 100, null]],
			"filter": ["=", ["field", 101, {"source-field": 102}], "done"]
		}
	}`)
	state := stateWith(map[int]int{10: 20}, map[int]int{100: 200, 101: 201, 102: 202}, nil, nil)

	got := Query(query, 2, state)

	inner := got["query"].(map[string]any)
	if got["database"] != 2 {
		t.Fatalf("expected database 2, got %v", got["database"])
	}
	if inner["source-table"] != 20 {
		t.Fatalf("expected source-table 20, got %v", inner["source-table"])
	}
	breakout := inner["breakout"].([]any)[0].([]any)
	if breakout[1] != 200 {
		t.Fatalf("expected field 200, got %v", breakout[1])
	}
	filterRef := inner["filter"].([]any)[1].([]any)
	if filterRef[1] != 201 {
		t.Fatalf("expected field 201, got %v", filterRef[1])
	}
	if src := filterRef[2].(map[string]any)["source-field"]; src != 202 {
		t.Fatalf("expected source-field 202, got %v", src)
	}
}

func TestQueryDoesNotMutateInput(t *testing.T) {
	raw := `{"database": 1, "type": "query", "query": {"source-table": 10, "breakout": [["field", 100, null]]}}`
	query := decode(t, raw)
	state := stateWith(map[int]int{10: 20}, map[int]int{100: 200}, nil, nil)

	Query(query, 2, state)

	if !reflect.DeepEqual(query, decode(t, raw)) {
		t.Fatalf("input document was mutated: %#v", query)
	}
}

func TestQueryNativePassesSQLThrough(t *testing.T) {
	query := decode(t, `{
		"database": 1,
		"type": "native",
		"native": {"query": "SELECT * FROM MoveJobDetails", "template-tags": {}}
	}`)
	state := stateWith(nil, nil, nil, nil)

	got := Query(query, 2, state)

	if got["database"] != 2 {
		t.Fatalf("expected database 2, got %v", got["database"])
	}
	native := got["native"].(map[string]any)
	if native["query"] != "SELECT * FROM MoveJobDetails" {
		t.Fatalf("native SQL must pass through unchanged, got %v", native["query"])
	}
}

func TestQueryLeavesCardSourceTablesAlone(t *testing.T) {
	query := decode(t, `{"database": 1, "type": "query", "query": {"source-table": "card__55"}}`)
	state := stateWith(map[int]int{10: 20}, nil, nil, nil)

	got := Query(query, 2, state)

	inner := got["query"].(map[string]any)
	if inner["source-table"] != "card__55" {
		t.Fatalf("card references must pass through, got %v", inner["source-table"])
	}
}

func TestQueryKeepsUnmappedReferences(t *testing.T) {
	query := decode(t, `{"database": 1, "type": "query", "query": {"source-table": 99, "breakout": [["field", 88, null]]}}`)
	state := stateWith(nil, nil, nil, nil)

	got := Query(query, 2, state)

	inner := got["query"].(map[string]any)
	if v, _ := inner["source-table"].(float64); v != 99 {
		t.Fatalf("unmapped source-table must stay, got %v", inner["source-table"])
	}
	breakout := inner["breakout"].([]any)[0].([]any)
	if breakout[1] != 88 {
		t.Fatalf("unmapped field must stay, got %v", breakout[1])
	}
}

func TestRegenerateTemplateTagsNativeLayout(t *testing.T) {
	query := decode(t, `{
		"type": "native",
		"native": {
			"query": "SELECT * FROM t WHERE x = {{x}}",
			"template-tags": {
				"x": {"id": "aaaa-bbbb", "name": "x", "type": "text"}
			}
		}
	}`)

	RegenerateTemplateTags(query)

	tag := query["native"].(map[string]any)["template-tags"].(map[string]any)["x"].(map[string]any)
	id, _ := tag["id"].(string)
	if id == "" || id == "aaaa-bbbb" {
		t.Fatalf("expected a fresh tag id, got %q", id)
	}
	if tag["name"] != "x" || tag["type"] != "text" {
		t.Fatalf("other tag properties must survive: %#v", tag)
	}
}

func TestRegenerateTemplateTagsStagesLayout(t *testing.T) {
	query := decode(t, `{
		"stages": [
			{"template-tags": {"a": {"id": "one"}}},
			{"template-tags": {"b": {"id": "two"}}}
		]
	}`)

	RegenerateTemplateTags(query)

	stages := query["stages"].([]any)
	for i, name := range []string{"a", "b"} {
		tag := stages[i].(map[string]any)["template-tags"].(map[string]any)[name].(map[string]any)
		id, _ := tag["id"].(string)
		if id == "" || id == "one" || id == "two" {
			t.Fatalf("stage %d tag %q kept its old id", i, name)
		}
	}
}
