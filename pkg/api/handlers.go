package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/halcyonforge/cutplane/pkg/collab"
	"github.com/halcyonforge/cutplane/pkg/editor"
	"github.com/halcyonforge/cutplane/util/log"
)

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sessionsMu.Lock()
	open := len(s.sessions)
	s.sessionsMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"open_sessions": open,
	})
}

type createSessionRequest struct {
	SplitID        string           `json:"split_id"`
	UploadID       string           `json:"upload_id"`
	NaturalWidth   float64          `json:"natural_width"`
	NaturalHeight  float64          `json:"natural_height"`
	ContainerWidth float64          `json:"container_width"`
	MaxHeight      float64          `json:"max_height"`
	Sections       []collab.Section `json:"sections,omitempty"`
}

// handleCreateSession opens an editing session. Sections come from the
// request body when supplied, otherwise from the split summary (with
// the recent-splits fallback when only the upload id is known).
func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.closing.IsSet() {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	splitID := req.SplitID
	sections := req.Sections
	if len(sections) == 0 {
		split, err := s.pipeline.ResolveSplit(r.Context(), req.SplitID, req.UploadID)
		if err != nil {
			log.Printf("Failed to resolve split (%q/%q): %v", req.SplitID, req.UploadID, err)
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		splitID = split.ID
		sections = split.Sections
	}

	session := editor.NewSession(splitID, sections)

	containerWidth := req.ContainerWidth
	if containerWidth <= 0 {
		containerWidth = s.defaultContainerWidth
	}
	maxHeight := req.MaxHeight
	if maxHeight <= 0 {
		maxHeight = s.defaultMaxHeight
	}

	if _, err := session.SetGeometry(containerWidth, maxHeight, req.NaturalWidth, req.NaturalHeight); err != nil {
		// Geometry errors block editing; the client may retry with a
		// decoded natural size.
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.sessionsMu.Lock()
	s.sessions[session.ID] = &sessionEntry{session: session, ctx: ctx, cancel: cancel}
	s.sessionsMu.Unlock()

	writeJSON(w, http.StatusCreated, session.TakeSnapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.sessionsMu.Lock()
	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.sessionsMu.Unlock()

	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	// Cancel outstanding collaborator calls before closing the state.
	entry.cancel()
	entry.session.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGeometry(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		ContainerWidth float64 `json:"container_width"`
		MaxHeight      float64 `json:"max_height"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if _, err := entry.session.SetGeometry(req.ContainerWidth, req.MaxHeight, 0, 0); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

func (s *Server) handleAddCutLine(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Y float64 `json:"y"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := entry.session.AddCutLine(req.Y); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

func (s *Server) handleRemoveCutLine(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "Invalid cut line index", http.StatusBadRequest)
		return
	}

	if err := entry.session.RemoveCutLine(index); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

// handleDrag moves one cut line through its drag lifecycle. The first
// request for an index acquires the drag, subsequent ones move it, and
// done releases it. Only one drag per session may be active.
func (s *Server) handleDrag(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "Invalid cut line index", http.StatusBadRequest)
		return
	}

	var req struct {
		Y    float64 `json:"y"`
		Done bool    `json:"done"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	entry.dragMu.Lock()
	defer entry.dragMu.Unlock()

	if entry.drag == nil {
		handle, err := entry.session.BeginDrag(index)
		if err != nil {
			writeSessionError(w, err)
			return
		}
		entry.drag = handle
		entry.dragIndex = index
	} else if entry.dragIndex != index {
		http.Error(w, "Another drag is active", http.StatusConflict)
		return
	}

	if err := entry.drag.Move(req.Y); err != nil {
		entry.drag = nil
		writeSessionError(w, err)
		return
	}

	if req.Done {
		entry.drag.Release()
		entry.drag = nil
	}

	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

// handleRedetect asks the detection collaborator for a fresh suggestion
// set and installs it. Manual cut-line edits belong to the previous
// suggestion set and are re-derived, not preserved.
func (s *Server) handleRedetect(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if s.detector == nil {
		http.Error(w, "No detector configured", http.StatusNotImplemented)
		return
	}

	var req struct {
		ImageRef string `json:"image_ref"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sections, err := s.detector.DetectSections(entry.ctx, req.ImageRef)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	if err := entry.session.ReplaceSections(sections); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

func (s *Server) handleAddSection(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Bounds      collab.Rect        `json:"bounds"`
		Type        collab.SectionType `json:"type"`
		Description string             `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	section, err := entry.session.AddSection(req.Bounds, req.Type, req.Description)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, section)
}

func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	var req struct {
		Type   *collab.SectionType `json:"type,omitempty"`
		Bounds *collab.Rect        `json:"bounds,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := entry.session.UpdateSection(r.PathValue("sid"), req.Type, req.Bounds); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

func (s *Server) handleRemoveSection(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	if err := entry.session.RemoveSection(r.PathValue("sid")); err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry.session.TakeSnapshot())
}

// handleGenerate runs the confirm flow and broadcasts the finished
// gallery to WebSocket listeners.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.lookupSession(r.PathValue("id"))
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	// Commit point: enforce cut line invariants before export.
	if _, err := entry.session.ExportCutLines(); err != nil {
		writeSessionError(w, err)
		return
	}

	result, err := s.pipeline.GenerateCrops(entry.ctx, entry.session.SplitID, entry.session.Sections())
	if err != nil {
		writeSessionError(w, err)
		return
	}

	s.Broadcast("gallery_ready", map[string]interface{}{
		"session_id": entry.session.ID,
		"items":      len(result.Items),
		"warning":    result.Warning,
	})

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// writeSessionError maps editor errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, editor.ErrDragActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, editor.ErrSessionClosed):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, editor.ErrGeometryUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, editor.ErrNoSections):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
