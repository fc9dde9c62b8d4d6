package editor

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/util"
)

// Session is the mutable editor state for one open design image. All
// reads and writes go through its mutex; the geometry, dedup, and
// rescale math lives in the pure functions of this package. A drag
// holds exclusive ownership of the cut-line slice until released.
type Session struct {
	ID      string
	SplitID string

	mu          sync.Mutex
	geometry    DisplayGeometry
	hasGeometry bool
	sections    []collab.Section
	cutLines    []float64
	drag        *DragHandle
	closed      bool
}

// Snapshot is an immutable copy of session state for callers outside
// the editing loop (API handlers, exports).
type Snapshot struct {
	ID       string            `json:"id"`
	SplitID  string            `json:"split_id"`
	Geometry DisplayGeometry   `json:"geometry"`
	Sections []collab.Section  `json:"sections"`
	CutLines []float64         `json:"cut_lines"`
	Dragging bool              `json:"dragging"`
}

// NewSession creates a session seeded with detected sections. Geometry
// is unset until the first measurement arrives via SetGeometry.
func NewSession(splitID string, sections []collab.Section) *Session {
	return &Session{
		ID:       uuid.NewString(),
		SplitID:  splitID,
		sections: append([]collab.Section(nil), sections...),
	}
}

// SetGeometry applies a new display measurement. On the first call the
// cut lines are derived from section bounds; afterwards existing lines
// are rescaled proportionally so manual adjustments survive, then the
// commit-point dedup runs. Mutations are rejected during a drag.
func (s *Session) SetGeometry(containerWidth, maxHeight float64, naturalWidth, naturalHeight float64) (DisplayGeometry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return DisplayGeometry{}, ErrSessionClosed
	}
	if s.drag != nil {
		return DisplayGeometry{}, ErrDragActive
	}

	if s.hasGeometry {
		// Natural size is immutable after load.
		naturalWidth = s.geometry.NaturalWidth
		naturalHeight = s.geometry.NaturalHeight
	}

	geometry, err := ComputeDisplayGeometry(naturalWidth, naturalHeight, containerWidth, maxHeight)
	if err != nil {
		return DisplayGeometry{}, err
	}

	if s.hasGeometry {
		rescaled := RescaleCutLines(s.cutLines, s.geometry.DisplayHeight, geometry.DisplayHeight)
		s.cutLines = NormalizeCutLines(rescaled, geometry.DisplayHeight)
	} else {
		s.cutLines = DeriveCutLines(s.sections, geometry.DisplayHeight)
	}

	s.geometry = geometry
	s.hasGeometry = true
	return geometry, nil
}

// AddCutLine inserts a line at the given pixel offset and re-sorts.
func (s *Session) AddCutLine(y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}

	y = util.Clamp(util.Finite(y, 0), 0, s.geometry.DisplayHeight)
	s.cutLines = append(s.cutLines, y)
	sort.Float64s(s.cutLines)
	return nil
}

// RemoveCutLine removes one line by index.
func (s *Session) RemoveCutLine(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}
	if index < 0 || index >= len(s.cutLines) {
		return fmt.Errorf("cut line index %d out of range", index)
	}

	s.cutLines = append(s.cutLines[:index], s.cutLines[index+1:]...)
	return nil
}

// CutLines returns a copy of the current cut-line set.
func (s *Session) CutLines() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.cutLines...)
}

// ExportCutLines returns the cut lines with commit-point dedup applied.
// The stored set is replaced with the normalized one.
func (s *Session) ExportCutLines() ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return nil, err
	}

	s.cutLines = NormalizeCutLines(s.cutLines, s.geometry.DisplayHeight)
	return append([]float64(nil), s.cutLines...), nil
}

// Sections returns a copy of the current section list.
func (s *Session) Sections() []collab.Section {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]collab.Section(nil), s.sections...)
}

// ReplaceSections installs a fresh detection result (full regeneration)
// and re-derives the cut lines from scratch. Manual line edits do not
// survive a regeneration; they belong to the previous suggestion set.
func (s *Session) ReplaceSections(sections []collab.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}

	s.sections = append([]collab.Section(nil), sections...)
	if s.hasGeometry {
		s.cutLines = DeriveCutLines(s.sections, s.geometry.DisplayHeight)
	}
	return nil
}

// AddSection appends a manual section with a generated id.
func (s *Session) AddSection(bounds collab.Rect, sectionType collab.SectionType, description string) (collab.Section, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return collab.Section{}, err
	}

	section := collab.Section{
		ID:          uuid.NewString(),
		Index:       len(s.sections),
		Type:        sectionType.Normalize(),
		Bounds:      bounds,
		Confidence:  1, // user-defined
		Description: description,
	}
	s.sections = append(s.sections, section)
	return section, nil
}

// UpdateSection mutates one section's type and/or bounds.
func (s *Session) UpdateSection(id string, sectionType *collab.SectionType, bounds *collab.Rect) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}

	for i := range s.sections {
		if s.sections[i].ID != id {
			continue
		}
		if sectionType != nil {
			s.sections[i].Type = sectionType.Normalize()
		}
		if bounds != nil {
			s.sections[i].Bounds = *bounds
		}
		return nil
	}
	return fmt.Errorf("section %s not found", id)
}

// RemoveSection deletes one section by id and reindexes the rest.
func (s *Session) RemoveSection(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.mutableLocked(); err != nil {
		return err
	}

	for i := range s.sections {
		if s.sections[i].ID != id {
			continue
		}
		s.sections = append(s.sections[:i], s.sections[i+1:]...)
		for j := range s.sections {
			s.sections[j].Index = j
		}
		return nil
	}
	return fmt.Errorf("section %s not found", id)
}

// Geometry returns the current display geometry and whether a
// measurement has been applied yet.
func (s *Session) Geometry() (DisplayGeometry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.geometry, s.hasGeometry
}

// TakeSnapshot copies the session state.
func (s *Session) TakeSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:       s.ID,
		SplitID:  s.SplitID,
		Geometry: s.geometry,
		Sections: append([]collab.Section(nil), s.sections...),
		CutLines: append([]float64(nil), s.cutLines...),
		Dragging: s.drag != nil,
	}
}

// Close tears down the session. An active drag is force-released.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.drag != nil {
		s.drag.released = true
		s.drag = nil
	}
	s.closed = true
}

// mutableLocked reports whether the session accepts mutations.
// Caller must hold s.mu.
func (s *Session) mutableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.drag != nil {
		return ErrDragActive
	}
	return nil
}
