package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vyvo/modelpack/pkg/auth"
	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/queue"
	"github.com/vyvo/modelpack/pkg/registry"
)

const streamClosed = "[stream closed]"

// buildQueue is the part of queue.Queue the service uses.
type buildQueue interface {
	Enqueue(ctx context.Context, build builder.Build) error
	Get(ctx context.Context, id string) (*queue.Record, error)
	Pending(ctx context.Context) (int64, error)
}

type server struct {
	root     string
	memStore *builder.MemStore
	history  builder.History
	queue    buildQueue
	pipeline []builder.Option
	notifier *registry.Notifier
	apiKey   string
	poll     time.Duration
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Require(s.apiKey))
		r.Post("/builds", s.handleCreateBuild)
		r.Get("/builds", s.handleListBuilds)
		r.Route("/builds/{buildID}", func(r chi.Router) {
			r.Get("/", s.handleGetBuild)
			r.Get("/logs", s.handleStreamLogs)
		})
	})
	return r
}

// handleHealth also reports the queue backlog when builds go through Redis.
func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		respondJSON(w, map[string]any{"status": "ok"}, http.StatusOK)
		return
	}
	pending, err := s.queue.Pending(r.Context())
	if err != nil {
		respondJSON(w, map[string]any{"status": "degraded", "error": err.Error()}, http.StatusServiceUnavailable)
		return
	}
	respondJSON(w, map[string]any{"status": "ok", "pending": pending}, http.StatusOK)
}

func (s *server) handleCreateBuild(w http.ResponseWriter, r *http.Request) {
	var payload builder.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}

	dir, err := s.resolveDir(payload.Dir)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	job, err := jobFor(dir, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	build := builder.Build{
		ID:               uuid.NewString(),
		Dir:              job.Dir,
		ModelPath:        job.ModelPath,
		RequirementsPath: job.RequirementsPath,
		EntryFile:        job.EntryFile,
		ImageName:        job.ImageName,
		Stage:            builder.StageNew,
		Status:           builder.StatusQueued,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if s.queue != nil {
		s.persist(build)
		if err := s.queue.Enqueue(r.Context(), build); err != nil {
			log.Printf("enqueue build %s failed: %v", build.ID, err)
			builder.StoreRecorder{History: s.history}.SetStatus(build.ID, builder.StatusFailed, "enqueue failed")
			respondError(w, http.StatusServiceUnavailable, "build queue unavailable")
			return
		}
		respondJSON(w, map[string]any{"build": build}, http.StatusAccepted)
		return
	}

	if _, err := s.memStore.CreateIfIdle(build); err != nil {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.persist(build)
	respondJSON(w, map[string]any{"build": build}, http.StatusAccepted)

	go s.runBuild(build)
}

func (s *server) persist(build builder.Build) {
	if s.history == nil {
		return
	}
	if err := s.history.Create(build); err != nil {
		log.Printf("persist build failed: %v", err)
	}
}

func (s *server) runBuild(build builder.Build) {
	defer s.memStore.CloseSubscribers(build.ID)

	ctx := context.Background()
	if err := builder.Execute(ctx, build, s.recorder(), s.pipeline...); err != nil {
		log.Printf("build %s failed: %v", build.ID, err)
		return
	}
	if err := s.notifier.ImageBuilt(ctx, build); err != nil {
		log.Printf("registry notify: %v", err)
	}
}

func (s *server) recorder() builder.StoreRecorder {
	return builder.StoreRecorder{Mem: s.memStore, History: s.history}
}

// resolveDir maps a requested directory onto the workspace root, refusing
// anything that would leave it.
func (s *server) resolveDir(requested string) (string, error) {
	if requested == "" {
		return "", errors.New("dir is required")
	}
	rel := filepath.Clean(requested)
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(s.root, rel)
		if err != nil {
			return "", fmt.Errorf("dir %q is outside the workspace", requested)
		}
		rel = r
	}
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("dir %q is outside the workspace", requested)
	}

	dir := filepath.Join(s.root, rel)
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("dir %q does not exist", requested)
		}
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("dir %q is not a directory", requested)
	}
	return dir, nil
}

// jobFor builds the job for dir, filling fields the request left empty from
// the directory's modelpack.yaml when one exists.
func jobFor(dir string, payload builder.CreateRequest) (builder.Job, error) {
	job := builder.Job{
		Dir:              dir,
		ModelPath:        payload.ModelPath,
		RequirementsPath: payload.RequirementsPath,
		EntryFile:        payload.EntryFile,
		ImageName:        payload.ImageName,
	}

	manifestPath := filepath.Join(dir, builder.ManifestFileName)
	if _, err := os.Stat(manifestPath); err == nil {
		m, err := builder.LoadManifest(manifestPath)
		if err != nil {
			return builder.Job{}, err
		}
		if job.ModelPath == "" {
			job.ModelPath = m.ModelPath
		}
		if job.RequirementsPath == "" {
			job.RequirementsPath = m.RequirementsPath
		}
		if job.EntryFile == "" {
			job.EntryFile = m.EntryFile
		}
		if job.ImageName == "" {
			job.ImageName = m.ImageName
		}
	}

	if job.ModelPath == "" {
		return builder.Job{}, errors.New("model_path is required")
	}
	return job.WithDefaults(), nil
}

func (s *server) handleListBuilds(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		builds, err := s.history.List()
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]any{"builds": builds}, http.StatusOK)
		return
	}
	respondJSON(w, map[string]any{"builds": s.memStore.List()}, http.StatusOK)
}

func (s *server) handleGetBuild(w http.ResponseWriter, r *http.Request) {
	build, err := s.lookup(r.Context(), chi.URLParam(r, "buildID"))
	if err != nil {
		respondLookupError(w, err)
		return
	}
	respondJSON(w, map[string]any{"build": build}, http.StatusOK)
}

func (s *server) lookup(ctx context.Context, id string) (builder.Build, error) {
	if b, err := s.memStore.Get(id); err == nil {
		return b, nil
	}
	switch {
	case s.history != nil:
		return s.history.Get(id)
	case s.queue != nil:
		rec, err := s.queue.Get(ctx, id)
		if err != nil {
			return builder.Build{}, err
		}
		return rec.Build, nil
	default:
		return builder.Build{}, builder.ErrBuildNotFound
	}
}

func (s *server) handleStreamLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, err := s.memStore.Subscribe(id)
	if errors.Is(err, builder.ErrBuildNotFound) && s.history != nil {
		s.streamPersistedLogs(w, r, flusher, id)
		return
	}
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	startStream(w)
	done := r.Context().Done()
	for {
		select {
		case <-done:
			return
		case msg, ok := <-ch:
			if !ok {
				writeEvent(w, flusher, streamClosed)
				return
			}
			writeEvent(w, flusher, msg)
		}
	}
}

// streamPersistedLogs follows a build run by a worker by polling the build
// history until the build finishes.
func (s *server) streamPersistedLogs(w http.ResponseWriter, r *http.Request, flusher http.Flusher, id string) {
	if _, err := s.history.Get(id); err != nil {
		respondLookupError(w, err)
		return
	}
	startStream(w)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	sent := 0
	for {
		build, err := s.history.Get(id)
		if err != nil {
			log.Printf("log stream %s: %v", id, err)
			return
		}
		lines, err := s.history.LogsSince(id, sent)
		if err != nil {
			log.Printf("log stream %s: %v", id, err)
			return
		}
		for _, line := range lines {
			writeEvent(w, flusher, line)
		}
		sent += len(lines)

		if build.Status.Finished() {
			writeEvent(w, flusher, streamClosed)
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func startStream(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, data string) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func respondLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, builder.ErrBuildNotFound) || errors.Is(err, queue.ErrNotFound) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, map[string]string{"error": message}, status)
}
