package identify

import (
	"context"
	"fmt"
	"testing"

	"github.com/rpattn/dashclone/internal/domain"
	"github.com/rpattn/dashclone/internal/metabase"
)

// metadataStub serves canned metadata; every other API method is unused.
type metadataStub struct {
	metabase.API
	databases []domain.Database
	metadata  map[int]*domain.DatabaseMetadata
}

func (s *metadataStub) ListDatabases(ctx context.Context) ([]domain.Database, error) {
	return s.databases, nil
}

func (s *metadataStub) GetDatabaseMetadata(ctx context.Context, databaseID int) (*domain.DatabaseMetadata, error) {
	meta, ok := s.metadata[databaseID]
	if !ok {
		return nil, fmt.Errorf("metadata %d: %w", databaseID, metabase.ErrNotFound)
	}
	return meta, nil
}

func tablesMeta(id int, names ...string) *domain.DatabaseMetadata {
	meta := &domain.DatabaseMetadata{ID: id}
	for _, n := range names {
		meta.Tables = append(meta.Tables, domain.Table{Name: n})
	}
	return meta
}

func TestClassifyRequiresTwoMatches(t *testing.T) {
	i := New(nil)

	dbType, _, _ := i.Classify([]string{"filefolderinfo", "users", "orders"})
	if dbType != "" {
		t.Fatalf("a single signature match must stay untyped, got %q", dbType)
	}

	dbType, confidence, matched := i.Classify([]string{"filefolderinfo", "deltascheduler", "orders"})
	if dbType != "content" {
		t.Fatalf("expected content, got %q", dbType)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 matched tables, got %v", matched)
	}
	want := 2.0 / 10.0
	if confidence != want {
		t.Fatalf("expected confidence %v, got %v", want, confidence)
	}
}

func TestClassifyMatchesByContainment(t *testing.T) {
	i := New(nil)

	// Product versions prefix and suffix the signature names.
	dbType, _, _ := i.Classify([]string{"acme_moveworkspaces_v2", "acme_movejobdetails"})
	if dbType != "content" {
		t.Fatalf("expected containment match to content, got %q", dbType)
	}
}

func TestClassifyPicksHighestConfidence(t *testing.T) {
	i := NewWithSignatures(nil, Signatures{
		"alpha": {"shared", "alphaonly", "alphamore", "alphaextra"},
		"beta":  {"shared", "betaonly"},
	})

	// Both clear the threshold; beta matches 2/2 against alpha's 2/4.
	dbType, confidence, _ := i.Classify([]string{"shared", "alphaonly", "betaonly"})
	if dbType != "beta" {
		t.Fatalf("expected beta, got %q", dbType)
	}
	if confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", confidence)
	}
}

func TestScanAllAbsorbsUnreadableDatabase(t *testing.T) {
	stub := &metadataStub{
		databases: []domain.Database{
			{ID: 1, Name: "Acme", Engine: "sqlserver"},
			{ID: 2, Name: "Broken", Engine: "sqlserver"},
			{ID: 3, Name: "Globex", Engine: "sqlserver"},
		},
		metadata: map[int]*domain.DatabaseMetadata{
			1: tablesMeta(1, "MessageWorkSpace", "MessageJob", "Other"),
			3: tablesMeta(3, "emailInfo", "emailWorkSpace", "CalendarDetails"),
		},
	}

	infos, err := New(stub).ScanAll(context.Background())
	if err != nil {
		t.Fatalf("ScanAll returned error: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 results, got %d", len(infos))
	}
	if infos[0].Type != "message" {
		t.Fatalf("expected message for database 1, got %q", infos[0].Type)
	}
	if infos[1].Type != "" || infos[1].Name != "Broken" || len(infos[1].Tables) != 0 {
		t.Fatalf("unreadable database must stay untyped: %+v", infos[1])
	}
	if infos[2].Type != "email" {
		t.Fatalf("expected email for database 3, got %q", infos[2].Type)
	}
}

func TestTableNamesDeduplicatesDisplayNames(t *testing.T) {
	stub := &metadataStub{metadata: map[int]*domain.DatabaseMetadata{
		1: {ID: 1, Tables: []domain.Table{
			{Name: "MoveJobDetails", DisplayName: "Move Job Details"},
			{Name: "movejobdetails", DisplayName: ""},
		}},
	}}

	info, err := New(stub).IdentifyDatabase(context.Background(), domain.Database{ID: 1, Name: "Acme"})
	if err != nil {
		t.Fatalf("IdentifyDatabase returned error: %v", err)
	}
	want := []string{"movejobdetails", "move job details"}
	if len(info.Tables) != len(want) {
		t.Fatalf("expected %v, got %v", want, info.Tables)
	}
	for idx, name := range want {
		if info.Tables[idx] != name {
			t.Fatalf("expected %v, got %v", want, info.Tables)
		}
	}
}

func TestFindByTypeOrdersByConfidence(t *testing.T) {
	infos := []DatabaseInfo{
		{ID: 1, Type: "content", Confidence: 0.4},
		{ID: 2, Type: "email", Confidence: 0.9},
		{ID: 3, Type: "content", Confidence: 0.8},
	}

	content := FindByType(infos, "content")
	if len(content) != 2 || content[0].ID != 3 || content[1].ID != 1 {
		t.Fatalf("unexpected order: %+v", content)
	}
	if len(FindByType(infos, "message")) != 0 {
		t.Fatalf("expected no message databases")
	}
}
