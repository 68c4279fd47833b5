package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/asynkron/applypatch/internal/journal"
	"github.com/asynkron/applypatch/internal/logging"
	"github.com/asynkron/applypatch/internal/schema"
	"github.com/asynkron/applypatch/pkg/patch"
)

type parseRequest struct {
	Patch string `json:"patch"`
}

type applyRequest struct {
	Patch  string            `json:"patch"`
	Files  map[string]string `json:"files"`
	DryRun bool              `json:"dry_run"`
}

type changeView struct {
	Status   string `json:"status"`
	Path     string `json:"path"`
	MoveFrom string `json:"move_from,omitempty"`
	Diff     string `json:"diff"`
}

type applyResponse struct {
	Summary string            `json:"summary"`
	DryRun  bool              `json:"dry_run,omitempty"`
	Results []patch.Result    `json:"results,omitempty"`
	Changes []changeView      `json:"changes,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
}

type errorResponse struct {
	Error  string   `json:"error"`
	Code   string   `json:"code,omitempty"`
	Report string   `json:"report,omitempty"`
	Issues []string `json:"issues,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// decodeValidated reads the body, checks it against the named schema and
// decodes it into dst. It writes the error response itself and reports
// whether the handler may continue.
func decodeValidated(w http.ResponseWriter, r *http.Request, name schema.Name, dst any) bool {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "request body too large"})
		return false
	}
	if err := schema.Validate(name, raw); err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request", Issues: verr.Issues})
			return false
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return false
	}
	return true
}

func writePatchError(w http.ResponseWriter, err error) {
	var pe *patch.Error
	if !errors.As(err, &pe) {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	status := http.StatusUnprocessableEntity
	if pe.Code == patch.CodeIO {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorResponse{Error: pe.Message, Code: pe.Code, Report: patch.FormatError(pe)})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if !decodeValidated(w, r, schema.ParseRequest, &req) {
		return
	}
	operations, err := patch.Parse(req.Patch)
	if err != nil {
		writePatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": patch.Views(operations)})
}

func (s *Server) handleApply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req applyRequest
	if !decodeValidated(w, r, schema.ApplyRequest, &req) {
		return
	}

	fail := func(err error) {
		evt := Event{Type: EventFailed, TraceID: logging.TraceID(ctx), Time: time.Now().UTC(), Error: err.Error()}
		var pe *patch.Error
		if errors.As(err, &pe) {
			evt.Code = pe.Code
		}
		s.events.publish(evt)
		s.logger.Warn(ctx, "apply failed", logging.Field("reason", err.Error()))
		writePatchError(w, err)
	}

	operations, err := patch.Parse(req.Patch)
	if err != nil {
		fail(err)
		return
	}

	var store patch.Store
	var memory *patch.MemoryStore
	if req.Files != nil {
		memory = patch.NewMemoryStore(req.Files)
		store = memory
	} else {
		fs, err := patch.NewFilesystemStore(s.root)
		if err != nil {
			fail(err)
			return
		}
		store = fs
	}

	cs, err := patch.Stage(ctx, operations, store)
	if err != nil {
		fail(err)
		return
	}

	if req.DryRun {
		resp := applyResponse{Summary: patch.Summary(cs.Operations()), DryRun: true, Changes: []changeView{}}
		for _, change := range cs.Changes() {
			if change.Status == patch.StatusUnchanged {
				continue
			}
			resp.Changes = append(resp.Changes, changeView{
				Status:   string(change.Status),
				Path:     change.Path,
				MoveFrom: change.MoveFrom,
				Diff:     change.Diff(),
			})
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	results, err := cs.Commit(ctx)
	if err != nil {
		fail(err)
		return
	}
	resp := applyResponse{Summary: patch.Summary(cs.Operations()), Results: results}
	if memory != nil {
		resp.Files = memory.Files()
	} else if s.journal != nil {
		fs := store.(*patch.FilesystemStore)
		if _, err := s.journal.Record(ctx, journal.NewEntry("http", fs.Root, req.Patch, cs.Operations(), results)); err != nil {
			s.logger.Error(ctx, "failed to record patch", err)
		}
	}

	s.events.publish(Event{
		Type:    EventApplied,
		TraceID: logging.TraceID(ctx),
		Time:    time.Now().UTC(),
		Summary: resp.Summary,
		Results: results,
	})
	s.logger.Info(ctx, "patch applied", logging.Field("operations", cs.Operations()), logging.Field("files", len(results)))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "journal is disabled"})
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	entries, err := s.journal.List(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
