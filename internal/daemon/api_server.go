package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vconv/internal/api"
	"vconv/internal/config"
	"vconv/internal/formats"
	"vconv/internal/handles"
	"vconv/internal/logging"
	"vconv/internal/queue"
	"vconv/internal/services"
)

const (
	// maxUploadFiles bounds how many files one enqueue request may carry.
	maxUploadFiles = 16
	// multipartOverhead covers part headers and small form fields.
	multipartOverhead = 1 << 20
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="160" height="120" viewBox="0 0 160 120"><rect width="160" height="120" fill="#d9d9d9"/><path d="M66 42v36l30-18z" fill="#8c8c8c"/></svg>`

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
	}
	// Uploads and downloads can be hundreds of MiB, so only header reads are
	// bounded.
	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/queue", s.handleQueue)
	mux.HandleFunc("/api/queue/", s.handleQueueItem)
	mux.HandleFunc("/api/history", s.handleHistory)
	mux.HandleFunc("/api/history/", s.handleHistoryItem)
	mux.HandleFunc("/api/handles/", s.handleHandle)
	mux.HandleFunc(handles.Placeholder, s.handlePlaceholder)
	return mux
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	deps := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		deps[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:         status.Running,
		PID:             status.PID,
		Mode:            string(status.Queue.Mode),
		ActiveJob:       status.Queue.ActiveJob,
		Queue:           api.FromQueueSummary(status.Queue),
		LockFilePath:    status.LockFilePath,
		HistoryDriver:   status.HistoryDriver,
		HistoryFallback: status.HistoryFallback,
		Dependencies:    deps,
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, api.QueueListResponse{Jobs: api.FromJobs(s.daemon.scheduler.Jobs())})
	case http.MethodPost:
		s.handleEnqueue(w, r)
	case http.MethodDelete:
		s.daemon.scheduler.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// stagedUpload is one file part of an enqueue request. path is empty when
// nothing was kept on disk: unsupported extensions are never written and
// oversized parts are deleted once they pass the cap.
type stagedUpload struct {
	name string
	path string
	size int64
}

func (s *apiServer) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithRequestID(r.Context(), uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	maxBytes := s.daemon.cfg.MaxInputBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes(maxBytes))
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form: "+err.Error())
		return
	}

	var (
		target  string
		uploads []stagedUpload
	)
	// Staged files not handed to the scheduler are removed on return.
	defer func() {
		for _, up := range uploads {
			if up.path != "" {
				_ = os.Remove(up.path)
			}
		}
	}()
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeUploadError(w, err)
			return
		}
		switch part.FormName() {
		case "target":
			value, err := io.ReadAll(io.LimitReader(part, 64))
			if err != nil {
				part.Close()
				s.writeUploadError(w, err)
				return
			}
			target = string(value)
		case "file":
			if part.FileName() == "" {
				break
			}
			up, err := s.stage(filepath.Base(part.FileName()), part, maxBytes)
			if err != nil {
				part.Close()
				s.writeUploadError(w, err)
				return
			}
			uploads = append(uploads, up)
		}
		part.Close()
	}

	target = formats.Normalize(target)
	if target == "" {
		target = s.daemon.cfg.Conversion.DefaultTarget
	}
	if len(uploads) == 0 {
		s.writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	var (
		resp      api.EnqueueResponse
		firstKind string
		firstErr  string
	)
	reject := func(name string, err error) {
		rejection := api.Rejection{Name: name, Error: err.Error()}
		var verr *formats.ValidationError
		if errors.As(err, &verr) {
			rejection.Kind = string(verr.Kind)
		}
		if firstErr == "" {
			firstErr, firstKind = rejection.Error, rejection.Kind
		}
		resp.Rejected = append(resp.Rejected, rejection)
		logger.Info("upload rejected", logging.String("source", name), logging.String("reason", rejection.Error))
	}

	for i := range uploads {
		up := &uploads[i]
		if err := formats.Validate(up.name, up.size, target, maxBytes); err != nil {
			reject(up.name, err)
			continue
		}
		job, err := s.daemon.scheduler.Enqueue(ctx, queue.Upload{
			Source: queue.Source{Name: up.name, Size: up.size, Path: up.path, Owned: true},
			Target: target,
		})
		if err != nil {
			reject(up.name, err)
			continue
		}
		up.path = ""
		resp.Jobs = append(resp.Jobs, api.FromJob(job))
	}

	if len(resp.Jobs) == 0 {
		s.writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Error: firstErr, Kind: firstKind})
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

// maxRequestBytes bounds a whole enqueue request: maxUploadFiles parts at
// the per-file cap plus room for headers and form fields.
func maxRequestBytes(maxBytes int64) int64 {
	if maxBytes <= 0 {
		maxBytes = formats.DefaultMaxInputBytes
	}
	return maxUploadFiles*(maxBytes+1) + multipartOverhead
}

// stage copies at most maxBytes+1 bytes of an upload into the staging
// directory. The extra byte is enough for Validate to report the file as
// too large, at which point the partial copy is discarded.
func (s *apiServer) stage(name string, src io.Reader, maxBytes int64) (stagedUpload, error) {
	up := stagedUpload{name: name}
	if !formats.IsSupported(formats.SourceFormat(name)) {
		return up, nil
	}
	dst, err := os.CreateTemp(s.daemon.cfg.Paths.StagingDir, StagedUploadPattern+filepath.Ext(name))
	if err != nil {
		return up, fmt.Errorf("stage upload: %w", err)
	}
	written, err := io.Copy(dst, io.LimitReader(src, maxBytes+1))
	closeErr := dst.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil || written > maxBytes {
		_ = os.Remove(dst.Name())
		if err != nil {
			return up, fmt.Errorf("stage upload: %w", err)
		}
		up.size = written
		return up, nil
	}
	up.path = dst.Name()
	up.size = written
	return up, nil
}

func (s *apiServer) writeUploadError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
		return
	}
	s.writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
}

func (s *apiServer) handleQueueItem(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitItemPath(r.URL.Path, "/api/queue/")
	if !ok {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	switch {
	case sub == "" && r.Method == http.MethodGet:
		job, found := s.daemon.scheduler.Job(id)
		if !found {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.JobResponse{Job: api.FromJob(job)})
	case sub == "" && r.Method == http.MethodDelete:
		if err := s.daemon.scheduler.Remove(id); err != nil {
			s.writeServiceError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case sub == "result" && r.Method == http.MethodGet:
		job, found := s.daemon.scheduler.Job(id)
		if !found {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if job.Status != queue.StatusCompleted {
			s.writeError(w, http.StatusConflict, "job has no result ("+string(job.Status)+")")
			return
		}
		s.writeBlob(w, job.Result, job.ResultMIME, job.ResultFilename)
	case sub == "thumbnail" && r.Method == http.MethodGet:
		job, found := s.daemon.scheduler.Job(id)
		if !found {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		if len(job.Thumbnail) == 0 {
			http.Redirect(w, r, handles.Placeholder, http.StatusFound)
			return
		}
		s.writeBlob(w, job.Thumbnail, job.ThumbnailMIME, "")
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		entries, err := s.daemon.history.List(r.Context())
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.HistoryListResponse{Entries: api.FromHistoryEntries(entries)})
	case http.MethodDelete:
		if err := s.daemon.history.Clear(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	id, sub, ok := splitItemPath(r.URL.Path, "/api/history/")
	if !ok || sub != "file" {
		s.writeError(w, http.StatusNotFound, "history entry not found")
		return
	}
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	entry, err := s.daemon.history.Get(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if entry.Degraded || len(entry.Result) == 0 {
		s.writeError(w, http.StatusGone, "converted file was not retained")
		return
	}
	s.writeBlob(w, entry.Result, entry.ResultMIME, entry.ConvertedFilename)
}

func (s *apiServer) handleHandle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/handles/")
	data, mediaType, ok := s.daemon.handles.Resolve(token)
	if !ok {
		s.writeError(w, http.StatusNotFound, "handle expired or unknown")
		return
	}
	s.writeBlob(w, data, mediaType, "")
}

func (s *apiServer) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	_, _ = io.WriteString(w, placeholderSVG)
}

// splitItemPath parses "<prefix><id>[/<sub>]".
func splitItemPath(path, prefix string) (id, sub string, ok bool) {
	rest := strings.TrimPrefix(path, prefix)
	if rest == "" || rest == path {
		return "", "", false
	}
	id, sub, _ = strings.Cut(rest, "/")
	if id == "" || strings.Contains(sub, "/") {
		return "", "", false
	}
	return id, sub, true
}

func (s *apiServer) writeBlob(w http.ResponseWriter, data []byte, mediaType, filename string) {
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if filename != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *apiServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
