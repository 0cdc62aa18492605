package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nikbrunner/bmsort/internal/ai"
	"github.com/nikbrunner/bmsort/internal/backup"
	"github.com/nikbrunner/bmsort/internal/categorize"
	"github.com/nikbrunner/bmsort/internal/engine"
	"github.com/nikbrunner/bmsort/internal/model"
	"github.com/nikbrunner/bmsort/internal/storage"
	"github.com/nikbrunner/bmsort/internal/tree"
)

// maxBody bounds request bodies; backups of large trees fit comfortably.
const maxBody = 32 << 20

func sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sendJSONError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, map[string]string{"error": message}, status)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, categorize.ErrNoCredential),
		errors.Is(err, backup.ErrInvalidBackup):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrBusy), errors.Is(err, engine.ErrNoPlan):
		return http.StatusConflict
	case errors.Is(err, engine.ErrNoBookmarks):
		return http.StatusUnprocessableEntity
	case errors.Is(err, categorize.ErrParse), errors.Is(err, ai.ErrAPIRequest):
		return http.StatusBadGateway
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error().Err(err).Str("op", op).Msg("request failed")
	}
	sendJSONError(w, err.Error(), status)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.fail(w, "stats", err)
		return
	}
	sendJSON(w, stats, http.StatusOK)
}

func (s *Server) getFolders(w http.ResponseWriter, r *http.Request) {
	folders, err := s.engine.Folders(r.Context())
	if err != nil {
		s.fail(w, "folders", err)
		return
	}
	if folders == nil {
		folders = []tree.FolderRecord{}
	}
	sendJSON(w, folders, http.StatusOK)
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, s.engine.State(), http.StatusOK)
}

func (s *Server) clearState(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearState()
	w.WriteHeader(http.StatusNoContent)
}

// Runs are detached from the request context: a client that disconnects
// stops listening but does not cancel the run.

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	cm, err := s.engine.Analyze(context.WithoutCancel(r.Context()))
	if err != nil {
		s.fail(w, "analyze", err)
		return
	}
	sendJSON(w, cm, http.StatusOK)
}

func (s *Server) organize(w http.ResponseWriter, r *http.Request) {
	var plan *model.CategoryMap
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		sendJSONError(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		plan = model.NewCategoryMap()
		if err := json.Unmarshal(body, plan); err != nil {
			sendJSONError(w, "Invalid plan: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	report, err := s.engine.Organize(context.WithoutCancel(r.Context()), plan)
	if err != nil {
		s.fail(w, "organize", err)
		return
	}
	sendJSON(w, report, http.StatusOK)
}

func (s *Server) getBackup(w http.ResponseWriter, r *http.Request) {
	doc, err := s.engine.Backup(r.Context())
	if err != nil {
		s.fail(w, "backup", err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="bookmarks-backup.json"`)
	sendJSON(w, doc, http.StatusOK)
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	doc, err := backup.Decode(io.LimitReader(r.Body, maxBody))
	if err != nil {
		s.fail(w, "restore", err)
		return
	}
	res, err := s.engine.Restore(context.WithoutCancel(r.Context()), doc)
	if err != nil {
		s.fail(w, "restore", err)
		return
	}
	sendJSON(w, res, http.StatusOK)
}

// settingsView hides the credential.
type settingsView struct {
	storage.Settings
	APIKey    string `json:"apiKey,omitempty"`
	APIKeySet bool   `json:"apiKeySet"`
}

func viewOf(st storage.Settings) settingsView {
	return settingsView{Settings: st, APIKeySet: st.APIKey != ""}
}

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, viewOf(s.engine.Settings()), http.StatusOK)
}

// updateSettings merges the body over the current settings. An omitted or
// empty apiKey keeps the stored one.
func (s *Server) updateSettings(w http.ResponseWriter, r *http.Request) {
	current := s.engine.Settings()
	next := current
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&next); err != nil {
		sendJSONError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	if next.APIKey == "" {
		next.APIKey = current.APIKey
	}
	if next.MaxRootCategories < 1 || next.BatchSize < 1 {
		sendJSONError(w, "maxRootCategories and batchSize must be positive", http.StatusBadRequest)
		return
	}
	if err := s.engine.UpdateSettings(next); err != nil {
		s.fail(w, "settings", err)
		return
	}
	sendJSON(w, viewOf(next), http.StatusOK)
}

// streamProgress writes the current state, then every progress notification,
// as server-sent events until the client goes away.
func (s *Server) streamProgress(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		sendJSONError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, unsubscribe := s.engine.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	st := s.engine.State()
	writeEvent(w, engine.Progress{Status: st.Status, Phase: st.Phase, Percent: st.Progress})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case p, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, p)
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, p engine.Progress) {
	data, _ := json.Marshal(p)
	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
}
