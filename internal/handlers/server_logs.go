package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gluk-w/claworc/console/internal/logging"
)

const (
	defaultLogLines = 200
	maxLogLines     = 5000
)

func GetServerLogs(w http.ResponseWriter, r *http.Request) {
	lines := defaultLogLines
	if q := r.URL.Query().Get("lines"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = min(n, maxLogLines)
	}

	content, err := logging.ReadTail(lines)
	if err != nil {
		log.Printf("[handlers] read server logs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read logs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": content})
}

func ClearServerLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		log.Printf("[handlers] clear server logs: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to clear logs")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
