package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/gluk-w/claworc/console/internal/database"
	"github.com/gluk-w/claworc/console/internal/terminal"
)

const historyLimit = 50

type consoleSessionResponse struct {
	ID            string `json:"id"`
	Mode          string `json:"mode"`
	Status        string `json:"status"`
	BytesReceived int64  `json:"bytes_received"`
	Closed        bool   `json:"closed"`
	CreatedAt     string `json:"created_at"`
}

// ListConsoleSessions returns the terminals currently tracked for an instance.
func ListConsoleSessions(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}

	resp := []consoleSessionResponse{}
	if Terminals != nil {
		for _, c := range Terminals.List(strconv.FormatUint(uint64(id), 10)) {
			v := c.View()
			resp = append(resp, consoleSessionResponse{
				ID:            c.ID(),
				Mode:          string(v.Mode),
				Status:        string(v.Status),
				BytesReceived: v.BytesReceived,
				Closed:        c.IsClosed(),
				CreatedAt:     c.CreatedAt().UTC().Format(time.RFC3339),
			})
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// CloseConsoleSession closes one terminal of an instance.
func CloseConsoleSession(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "Session ID required")
		return
	}
	if Terminals == nil {
		writeError(w, http.StatusServiceUnavailable, "Terminal manager not initialized")
		return
	}

	c := Terminals.Get(sessionID)
	if c == nil || c.Target().ID != strconv.FormatUint(uint64(id), 10) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err := Terminals.CloseSession(sessionID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to close session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

// ListConsoleHistory returns the audit records of closed terminals.
func ListConsoleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}
	records, err := database.ListSessions(id, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": records})
}

// GetConsoleTranscript returns the recorded transcript of a closed terminal.
func GetConsoleTranscript(w http.ResponseWriter, r *http.Request) {
	id, ok := instanceIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid instance ID")
		return
	}
	rec, err := database.GetSession(chi.URLParam(r, "sessionId"))
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to load session")
		return
	}
	if rec.InstanceID != id {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if rec.Transcript == "" {
		writeError(w, http.StatusNotFound, "No transcript recorded")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(rec.Transcript))
}

// RecordConsoleSession persists the audit record of a closed terminal. It is
// installed as the terminal manager's close hook.
func RecordConsoleSession(sum terminal.Summary) {
	if database.DB == nil {
		return
	}
	instanceID, err := strconv.ParseUint(sum.Target.ID, 10, 64)
	if err != nil {
		log.Printf("[console] %s: not recording session for unmanaged target %q", sum.ID, sum.Target.ID)
		return
	}
	rec := &database.TerminalSession{
		ID:            sum.ID,
		InstanceID:    uint(instanceID),
		Mode:          string(sum.Mode),
		Status:        string(sum.Status),
		BytesReceived: sum.BytesReceived,
		Commands:      sum.Commands,
		Transcript:    string(sum.Transcript),
		CreatedAt:     sum.CreatedAt,
		ClosedAt:      sum.ClosedAt,
	}
	if err := database.RecordSession(rec); err != nil {
		log.Printf("[console] %s: record session: %v", sum.ID, err)
	}
}
