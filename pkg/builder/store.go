package builder

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrBuildNotFound is returned for unknown build IDs.
	ErrBuildNotFound = errors.New("build not found")
	// ErrBuildInProgress is returned when a directory already has an unfinished build.
	ErrBuildInProgress = errors.New("build already in progress")
)

type subscriber chan string

type buildRecord struct {
	build       Build
	subscribers []subscriber
	logs        []string
	closed      bool
}

// MemStore keeps build records in memory and supports log subscriptions.
type MemStore struct {
	mu    sync.RWMutex
	items map[string]*buildRecord
}

func NewMemStore() *MemStore {
	return &MemStore{items: make(map[string]*buildRecord)}
}

func (s *MemStore) Create(build Build) Build {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := &buildRecord{build: build}
	s.items[build.ID] = rec
	return rec.build
}

// CreateIfIdle records build unless an unfinished build already targets the
// same directory.
func (s *MemStore) CreateIfIdle(build Build) (Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.items {
		if rec.build.Dir == build.Dir && !rec.build.Status.Finished() {
			return Build{}, fmt.Errorf("%w: %s is used by build %s", ErrBuildInProgress, build.Dir, rec.build.ID)
		}
	}
	s.items[build.ID] = &buildRecord{build: build}
	return build, nil
}

// SetStatus moves a build to status at the given time. Finished statuses
// also stamp FinishedAt.
func (s *MemStore) SetStatus(id string, status Status, at time.Time, errMsg string) (Build, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return Build{}, ErrBuildNotFound
	}
	rec.build.Status = status
	rec.build.Error = errMsg
	rec.build.UpdatedAt = at
	if status.Finished() {
		rec.build.FinishedAt = at
	}
	return rec.build, nil
}

// SetStage records the last pipeline stage a build reached.
func (s *MemStore) SetStage(id string, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return ErrBuildNotFound
	}
	rec.build.Stage = stage
	rec.build.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) AppendLog(id string, line string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return
	}
	rec.logs = append(rec.logs, line)
	for _, sub := range rec.subscribers {
		select {
		case sub <- line:
		default:
		}
	}
}

// Logs returns a copy of the lines recorded for a build.
func (s *MemStore) Logs(id string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[id]
	if !ok {
		return nil, ErrBuildNotFound
	}
	return append([]string(nil), rec.logs...), nil
}

func (s *MemStore) Get(id string) (Build, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[id]
	if !ok {
		return Build{}, ErrBuildNotFound
	}
	return rec.build, nil
}

// List returns builds newest first.
func (s *MemStore) List() []Build {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Build, 0, len(s.items))
	for _, rec := range s.items {
		result = append(result, rec.build)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Subscribe replays the lines logged so far and then follows new ones. The
// channel is closed once the build finishes.
func (s *MemStore) Subscribe(id string) (<-chan string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return nil, ErrBuildNotFound
	}

	ch := make(subscriber, len(rec.logs)+32)
	for _, line := range rec.logs {
		ch <- line
	}
	if rec.closed {
		close(ch)
		return ch, nil
	}
	rec.subscribers = append(rec.subscribers, ch)
	return ch, nil
}

// CloseSubscribers ends every log subscription for a finished build.
func (s *MemStore) CloseSubscribers(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.items[id]
	if !ok {
		return
	}
	for _, sub := range rec.subscribers {
		close(sub)
	}
	rec.subscribers = nil
	rec.closed = true
}
