package domain

import "fmt"

// IdentityMap maps a source-side id to its clone-side id for one entity
// kind. Keys are unique; the first recorded mapping for a key wins and is
// never overwritten or removed during a run.
type IdentityMap map[int]int

// Record stores src -> dst unless src is already mapped.
func (m IdentityMap) Record(src, dst int) {
	if _, ok := m[src]; ok {
		return
	}
	m[src] = dst
}

// Resolve looks up the clone-side id for src.
func (m IdentityMap) Resolve(src int) (int, bool) {
	dst, ok := m[src]
	return dst, ok
}

// HasValue reports whether id already appears as a clone-side id, meaning
// it has been remapped and must not be remapped again.
func (m IdentityMap) HasValue(id int) bool {
	for _, v := range m {
		if v == id {
			return true
		}
	}
	return false
}

// FailureKind classifies what failed during a clone run.
type FailureKind string

const (
	FailureQuestion   FailureKind = "question"
	FailureDashboard  FailureKind = "dashboard"
	FailureCollection FailureKind = "collection"
	FailureAttach     FailureKind = "attach"
)

// CloneFailure records one absorbed failure so the caller can tell exactly
// which entities did not make it.
type CloneFailure struct {
	Kind     FailureKind `json:"kind"`
	SourceID int         `json:"source_id"`
	Name     string      `json:"name,omitempty"`
	Err      string      `json:"error"`
}

func (f CloneFailure) String() string {
	return fmt.Sprintf("%s %d (%s): %s", f.Kind, f.SourceID, f.Name, f.Err)
}

// CloneState holds all identifier mappings for one orchestration run. It is
// created at run start, owned by that run alone, and discarded afterward; a
// fresh run over the same source starts from empty maps.
type CloneState struct {
	Tables     IdentityMap
	Fields     IdentityMap
	Questions  IdentityMap
	Dashboards IdentityMap

	// DashboardTabs maps a clone-side dashboard id to that dashboard's own
	// tab identity map. Consulted only when rewriting click behaviors whose
	// target is that dashboard; FallbackTabs is used when no per-target map
	// exists yet.
	DashboardTabs map[int]IdentityMap
	FallbackTabs  IdentityMap

	Failures []CloneFailure
}

// NewCloneState returns an empty per-run state.
func NewCloneState() *CloneState {
	return &CloneState{
		Tables:        IdentityMap{},
		Fields:        IdentityMap{},
		Questions:     IdentityMap{},
		Dashboards:    IdentityMap{},
		DashboardTabs: map[int]IdentityMap{},
		FallbackTabs:  IdentityMap{},
	}
}

// RecordTabs stores the tab identity map for a clone-side dashboard.
func (s *CloneState) RecordTabs(dashboardID int, tabs IdentityMap) {
	if len(tabs) == 0 {
		return
	}
	s.DashboardTabs[dashboardID] = tabs
	s.FallbackTabs = tabs
}

// TabsFor returns the tab map to use when rewriting a click behavior that
// targets the given clone-side dashboard. The per-target map takes
// precedence over the supplied fallback.
func (s *CloneState) TabsFor(dashboardID int, fallback IdentityMap) IdentityMap {
	if m, ok := s.DashboardTabs[dashboardID]; ok {
		return m
	}
	return fallback
}

// RecordFailure appends an absorbed failure.
func (s *CloneState) RecordFailure(kind FailureKind, sourceID int, name string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	s.Failures = append(s.Failures, CloneFailure{Kind: kind, SourceID: sourceID, Name: name, Err: msg})
}
