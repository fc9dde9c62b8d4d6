package editor

import (
	"fmt"
	"sort"

	"github.com/halcyonforge/cutplane/util"
)

// DragHandle is the scoped ownership token for one cut-line drag.
// Acquiring it moves the session from Idle to Dragging; every other
// mutation path is rejected until Release. Listeners in the rendering
// layer map directly onto the handle's lifetime: acquire on press,
// release on release, never registered globally.
type DragHandle struct {
	session  *Session
	index    int
	released bool
}

// BeginDrag starts dragging the line at index. Only one drag may be
// active at a time.
func (s *Session) BeginDrag(index int) (*DragHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.drag != nil {
		return nil, ErrDragActive
	}
	if index < 0 || index >= len(s.cutLines) {
		return nil, fmt.Errorf("cut line index %d out of range", index)
	}

	handle := &DragHandle{session: s, index: index}
	s.drag = handle
	return handle, nil
}

// Move updates the dragged line's offset, clamped to the display
// height. Deduplication is deliberately skipped here to stay responsive;
// it is enforced at commit points (geometry change, export).
func (h *DragHandle) Move(y float64) error {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.released || s.drag != h {
		return ErrDragReleased
	}

	s.cutLines[h.index] = util.Clamp(util.Finite(y, 0), 0, s.geometry.DisplayHeight)
	return nil
}

// Position returns the dragged line's current offset.
func (h *DragHandle) Position() (float64, error) {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.released || s.drag != h {
		return 0, ErrDragReleased
	}
	return s.cutLines[h.index], nil
}

// Release ends the drag, re-sorts the full list, and returns the
// session to Idle. Releasing twice is a no-op.
func (h *DragHandle) Release() {
	s := h.session
	s.mu.Lock()
	defer s.mu.Unlock()

	if h.released || s.drag != h {
		return
	}

	h.released = true
	s.drag = nil
	sort.Float64s(s.cutLines)
}
