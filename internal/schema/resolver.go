// Package schema builds name-based cross-maps between two data sources'
// structural metadata. Remapping is best-effort: unmatched tables and
// fields are logged, not treated as errors.
package schema

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/metabase"
)

// BuildMappings fetches metadata for the source and target databases and
// populates the table and field identity maps in state. Matching order per
// table: exact name, then name with the schema qualifier stripped. Per
// field: schema-qualified name, unqualified name, then bare field name
// against any target table. First successful match wins; each source id
// maps to at most one target id.
func BuildMappings(ctx context.Context, api metabase.API, sourceDB, targetDB int, state *domain.CloneState) error {
	source, err := api.GetDatabaseMetadata(ctx, sourceDB)
	if err != nil {
		return fmt.Errorf("failed to fetch source schema %d: %w", sourceDB, err)
	}
	target, err := api.GetDatabaseMetadata(ctx, targetDB)
	if err != nil {
		return fmt.Errorf("failed to fetch target schema %d: %w", targetDB, err)
	}

	idx := indexTarget(target)

	var unmappedTables, unmappedFields []string
	for _, table := range source.Tables {
		fullName := strings.ToLower(table.Name)
		simpleName := stripQualifier(fullName)

		targetTableID, ok := idx.tables[fullName]
		if !ok {
			targetTableID, ok = idx.tables[simpleName]
		}
		if !ok {
			unmappedTables = append(unmappedTables, fullName)
			continue
		}
		state.Tables.Record(table.ID, targetTableID)

		for _, field := range table.Fields {
			fieldName := strings.ToLower(field.Name)
			targetFieldID, ok := idx.fields[fullName+"."+fieldName]
			if !ok {
				targetFieldID, ok = idx.fields[simpleName+"."+fieldName]
			}
			if !ok {
				// Last resort: any target field of the same bare name.
				targetFieldID, ok = idx.fieldsByName[fieldName]
			}
			if !ok {
				unmappedFields = append(unmappedFields, fullName+"."+fieldName)
				continue
			}
			state.Fields.Record(field.ID, targetFieldID)
		}
	}

	log.Printf("[SCHEMA] mapped %d tables, %d fields (%d -> %d)",
		len(state.Tables), len(state.Fields), sourceDB, targetDB)
	if len(unmappedTables) > 0 {
		log.Printf("[SCHEMA] warning: %d unmapped tables: %s", len(unmappedTables), preview(unmappedTables))
	}
	if len(unmappedFields) > 0 {
		log.Printf("[SCHEMA] warning: %d unmapped fields: %s", len(unmappedFields), preview(unmappedFields))
	}
	return nil
}

type targetIndex struct {
	tables       map[string]int
	fields       map[string]int
	fieldsByName map[string]int
}

func indexTarget(meta *domain.DatabaseMetadata) targetIndex {
	idx := targetIndex{
		tables:       map[string]int{},
		fields:       map[string]int{},
		fieldsByName: map[string]int{},
	}
	for _, table := range meta.Tables {
		fullName := strings.ToLower(table.Name)
		simpleName := stripQualifier(fullName)

		recordOnce(idx.tables, fullName, table.ID)
		recordOnce(idx.tables, simpleName, table.ID)

		for _, field := range table.Fields {
			fieldName := strings.ToLower(field.Name)
			recordOnce(idx.fields, fullName+"."+fieldName, field.ID)
			recordOnce(idx.fields, simpleName+"."+fieldName, field.ID)
			recordOnce(idx.fieldsByName, fieldName, field.ID)
		}
	}
	return idx
}

// recordOnce keeps the first id registered for a name so lookup order stays
// deterministic when names collide across schemas.
func recordOnce(m map[string]int, key string, id int) {
	if _, ok := m[key]; !ok {
		m[key] = id
	}
}

func stripQualifier(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[i+1:]
	}
	return name
}

func preview(names []string) string {
	const limit = 10
	if len(names) > limit {
		return strings.Join(names[:limit], ", ") + ", ..."
	}
	return strings.Join(names, ", ")
}
