// Package identify classifies Metabase databases into migration types by
// scanning their table structures. Each migration product creates a known
// set of tables in its database; finding enough of them identifies the type.
package identify

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/metabase"
)

// Signatures maps a database type to table names unique to that type.
type Signatures map[string][]string

// DefaultSignatures covers the three migration products. The table lists
// only need to stay distinctive, not complete.
func DefaultSignatures() Signatures {
	return Signatures{
		"content": {
			"UsersContentMigInfo",
			"UsersContentDataSize",
			"MoveWorkSpaces",
			"MoveWorkSpaceStatus",
			"MoveFileSize",
			"MoveJobDetails",
			"FileFolderInfo",
			"FilePermissionDetail",
			"DeltaMoveInfo",
			"DeltaScheduler",
		},
		"message": {
			"MessageWorkSpace",
			"MessageWorkSpaceTransferStatus",
			"MessageJob",
			"MessageMoveQueue",
			"MessageReport",
			"MessageReportWS",
			"UsersMessageInfo",
			"MessageDmsChannelsInfo",
			"MessageTransferConfiguration",
			"SlackDms",
			"ChannelsFileDetail",
			"ConversationsFetchingInfo",
		},
		"email": {
			"emailInfo",
			"emailWorkSpace",
			"emailMoveQueue",
			"emailFolderInfo",
			"emailJobDetails",
			"emailBatches",
			"EmailPikingQueue",
			"CalendarDetails",
			"calendarEvent",
			"contactsInfo",
			"ContactMoveQueue",
		},
	}
}

// MinMatchThreshold is how many signature tables must be present before a
// classification is trusted. One table can collide by coincidence; two in
// the same signature set almost never do.
const MinMatchThreshold = 2

// scanWorkers bounds concurrent metadata fetches against the platform.
const scanWorkers = 5

// DatabaseInfo is the scan result for one database.
type DatabaseInfo struct {
	ID            int      `json:"id"`
	Name          string   `json:"name"`
	Engine        string   `json:"engine"`
	Tables        []string `json:"tables"`
	Type          string   `json:"identified_type,omitempty"`
	Confidence    float64  `json:"match_confidence"`
	MatchedTables []string `json:"matched_tables,omitempty"`
}

// Identifier classifies databases against a signature set.
type Identifier struct {
	api        metabase.API
	signatures Signatures
}

func New(api metabase.API) *Identifier {
	return &Identifier{api: api, signatures: DefaultSignatures()}
}

// NewWithSignatures builds an identifier with a custom signature set.
func NewWithSignatures(api metabase.API, signatures Signatures) *Identifier {
	return &Identifier{api: api, signatures: signatures}
}

// Classify matches a table list against the signature sets and returns the
// best type, its confidence (matched fraction of the signature set) and the
// matched signature tables. Type is empty when nothing clears the threshold.
func (i *Identifier) Classify(tables []string) (string, float64, []string) {
	lowered := make([]string, 0, len(tables))
	for _, t := range tables {
		lowered = append(lowered, strings.ToLower(t))
	}

	bestType := ""
	bestConfidence := 0.0
	var bestMatched []string

	types := make([]string, 0, len(i.signatures))
	for dbType := range i.signatures {
		types = append(types, dbType)
	}
	sort.Strings(types)

	for _, dbType := range types {
		signature := i.signatures[dbType]
		if len(signature) == 0 {
			continue
		}
		var matched []string
		for _, sig := range signature {
			sigLower := strings.ToLower(sig)
			for _, table := range lowered {
				// Table names pick up prefixes and suffixes across product
				// versions, so a containment either way counts.
				if sigLower == table || strings.Contains(table, sigLower) || strings.Contains(sigLower, table) {
					matched = append(matched, sig)
					break
				}
			}
		}
		if len(matched) < MinMatchThreshold {
			continue
		}
		confidence := float64(len(matched)) / float64(len(signature))
		if confidence > bestConfidence {
			bestType = dbType
			bestConfidence = confidence
			bestMatched = matched
		}
	}
	return bestType, bestConfidence, bestMatched
}

// IdentifyDatabase fetches one database's tables and classifies it.
func (i *Identifier) IdentifyDatabase(ctx context.Context, db domain.Database) (*DatabaseInfo, error) {
	tables, err := i.tableNames(ctx, db.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read tables of database %d: %w", db.ID, err)
	}
	dbType, confidence, matched := i.Classify(tables)
	return &DatabaseInfo{
		ID:            db.ID,
		Name:          db.Name,
		Engine:        db.Engine,
		Tables:        tables,
		Type:          dbType,
		Confidence:    confidence,
		MatchedTables: matched,
	}, nil
}

// ScanAll classifies every database on the platform, fetching metadata with
// a bounded number of concurrent requests. A database whose metadata cannot
// be read is reported untyped with no tables rather than failing the scan.
func (i *Identifier) ScanAll(ctx context.Context) ([]DatabaseInfo, error) {
	databases, err := i.api.ListDatabases(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	log.Printf("[IDENTIFY] scanning %d databases", len(databases))

	results := make([]DatabaseInfo, len(databases))
	sem := make(chan struct{}, scanWorkers)
	var wg sync.WaitGroup

	for idx, db := range databases {
		wg.Add(1)
		go func(idx int, db domain.Database) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			info, err := i.IdentifyDatabase(ctx, db)
			if err != nil {
				log.Printf("[IDENTIFY] warning: %v", err)
				results[idx] = DatabaseInfo{ID: db.ID, Name: db.Name, Engine: db.Engine}
				return
			}
			results[idx] = *info
		}(idx, db)
	}
	wg.Wait()

	typed := 0
	for _, info := range results {
		if info.Type != "" {
			typed++
		}
	}
	log.Printf("[IDENTIFY] scan complete, %d/%d databases identified", typed, len(results))
	return results, nil
}

// FindByType returns the databases of one type, ordered by descending
// classification confidence.
func FindByType(infos []DatabaseInfo, dbType string) []DatabaseInfo {
	var out []DatabaseInfo
	for _, info := range infos {
		if info.Type == dbType {
			out = append(out, info)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Confidence > out[b].Confidence })
	return out
}

func (i *Identifier) tableNames(ctx context.Context, databaseID int) ([]string, error) {
	meta, err := i.api.GetDatabaseMetadata(ctx, databaseID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var names []string
	for _, table := range meta.Tables {
		for _, name := range []string{strings.ToLower(table.Name), strings.ToLower(table.DisplayName)} {
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, nil
}
