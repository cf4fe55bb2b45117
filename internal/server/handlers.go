package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/thruflo/goalboard/internal/loop"
	"github.com/thruflo/goalboard/internal/report"
	"github.com/thruflo/goalboard/internal/store"
	"github.com/thruflo/goalboard/internal/view"
)

const maxBodyBytes = 1 << 20

// indexPage is the data for the full dashboard page.
type indexPage struct {
	Dashboard  view.Dashboard
	NextOffset uint64
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.render(w, "login", map[string]string{})
		return
	}
	s.render(w, "index", indexPage{
		Dashboard:  view.Build(s.controller.Snapshot()),
		NextOffset: s.hub.LastSeq() + 1,
	})
}

func (s *Server) handleDashboardPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.render(w, "dashboard", view.Build(s.controller.Snapshot()))
}

// handleStartRun starts a run for the submitted goal.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := decodeRequest(r, &req, func() { req.Goal = r.FormValue("goal") }); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	runID, err := s.controller.Start(s.runContext(), req.Goal)
	switch {
	case errors.Is(err, loop.ErrBlankGoal):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, loop.ErrAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		s.log.Error("failed to start run", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

// handleStopRun asks the active run to stop after its current iteration.
func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	stopping := s.controller.Stop()
	if wantsHTML(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopping": stopping})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to list runs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleHistoryGet(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHistoryReport(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookupRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, report.Render(run.Snapshot()))
}

func (s *Server) lookupRun(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	if s.history == nil {
		http.Error(w, "history is disabled", http.StatusNotFound)
		return store.Run{}, false
	}
	run, err := s.history.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return store.Run{}, false
	}
	if err != nil {
		s.log.Error("failed to load run", "id", r.PathValue("id"), "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return store.Run{}, false
	}
	return run, true
}

// render executes a named template into a buffer so a failure can still
// produce a clean error response.
func (s *Server) render(w http.ResponseWriter, name string, data any) {
	s.renderStatus(w, http.StatusOK, name, data)
}

func (s *Server) renderStatus(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.log.Error("template failed", "template", name, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeRequest reads a JSON body into v. Any other content type is parsed
// as a form and handed to fromForm.
func decodeRequest(r *http.Request, v any, fromForm func()) error {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return err
	}
	fromForm()
	return nil
}

// wantsHTML reports whether the caller is a browser form post rather than
// a script.
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
