package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/faheemlabs/faheem/pkg/logging"
	"github.com/faheemlabs/faheem/pkg/transcriber"
	"github.com/faheemlabs/faheem/pkg/upload"
)

// API is the thin HTTP surface over the worklist: submit files, set
// metadata, start runs, observe events over the websocket, export
// transcripts.
type API struct {
	manager *Manager
	hub     *Hub
	spool   string
	logger  *slog.Logger
}

func NewAPI(manager *Manager, hub *Hub, spoolDir string) *API {
	if spoolDir == "" {
		spoolDir = os.TempDir()
	}
	return &API{
		manager: manager,
		hub:     hub,
		spool:   spoolDir,
		logger:  logging.NewComponentLogger(slog.Default(), "worklist_api"),
	}
}

func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /jobs", a.handleList)
	mux.HandleFunc("POST /jobs", a.handleAdd)
	mux.HandleFunc("PUT /jobs/{id}/metadata", a.handleSetMetadata)
	mux.HandleFunc("POST /jobs/start", a.handleStartAll)
	mux.HandleFunc("DELETE /jobs/completed", a.handleClearCompleted)
	mux.HandleFunc("DELETE /jobs", a.handleClearAll)
	mux.HandleFunc("GET /jobs/{id}/export", a.handleExport)
	if a.hub != nil {
		mux.HandleFunc("GET /ws", a.hub.HandleWS)
	}
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":            a.manager.List(),
		"is_transcribing": a.manager.IsTranscribing(),
	})
}

// handleAdd accepts a multipart form with a "file" part and an optional
// "last_modified" field carrying the file's mtime in epoch milliseconds.
// The bytes are spooled to disk so every upload strategy can re-open
// them. Job identity is derived from name, size and mtime, so without
// the field resubmitting the same file is never detected as a duplicate.
func (a *API) handleAdd(w http.ResponseWriter, r *http.Request) {
	reader, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	var (
		haveFile bool
		path     string
		fileName string
		mimeType string
		size     int64
		modTime  = time.Now()
	)
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if haveFile {
				os.Remove(path)
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		switch part.FormName() {
		case "last_modified":
			raw, err := io.ReadAll(io.LimitReader(part, 64))
			part.Close()
			if err != nil {
				continue
			}
			if ms, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64); err == nil && ms > 0 {
				modTime = time.UnixMilli(ms)
			}
		case "file":
			if haveFile {
				part.Close()
				continue
			}
			spooled, err := os.CreateTemp(a.spool, "faheem-upload-*")
			if err != nil {
				writeError(w, http.StatusInternalServerError, "spool file")
				return
			}
			n, err := io.Copy(spooled, io.LimitReader(part, MaxFileSize+1))
			fileName = filepath.Base(part.FileName())
			mimeType = partMimeType(part.Header.Get("Content-Type"))
			part.Close()
			spooled.Close()
			if err != nil {
				os.Remove(spooled.Name())
				writeError(w, http.StatusInternalServerError, "spool file")
				return
			}
			haveFile = true
			path = spooled.Name()
			size = n
		default:
			part.Close()
		}
	}
	if !haveFile {
		writeError(w, http.StatusBadRequest, "missing file part")
		return
	}

	spooledPath := path
	f := upload.File{
		Name:     fileName,
		MimeType: mimeType,
		Size:     size,
		Open: func() (io.ReadCloser, error) {
			return os.Open(spooledPath)
		},
	}
	job, err := a.manager.Add(f, modTime)
	if err != nil {
		os.Remove(path)
		switch {
		case errors.Is(err, ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ErrDuplicate):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (a *API) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var md transcriber.Metadata
	if err := json.NewDecoder(r.Body).Decode(&md); err != nil {
		writeError(w, http.StatusBadRequest, "invalid metadata payload")
		return
	}
	job, err := a.manager.SetMetadata(id, md)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, ErrWrongStatus):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handleStartAll(w http.ResponseWriter, r *http.Request) {
	// Runs outlive the triggering request, so they are not tied to its
	// context.
	started := a.manager.StartAll(context.Background())
	writeJSON(w, http.StatusAccepted, map[string]int{"started": started})
}

func (a *API) handleClearCompleted(w http.ResponseWriter, r *http.Request) {
	a.manager.ClearCompleted()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleClearAll(w http.ResponseWriter, r *http.Request) {
	a.manager.ClearAll()
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	text, err := a.manager.ExportPlainText(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".txt"))
	io.WriteString(w, text)
}

func partMimeType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return "application/octet-stream"
	}
	return ct
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
