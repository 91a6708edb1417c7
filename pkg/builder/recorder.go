package builder

import (
	"log"
	"time"
)

// History is durable build bookkeeping. *PostgresStore implements it.
type History interface {
	Create(build Build) error
	Get(id string) (Build, error)
	List() ([]Build, error)
	UpdateStage(id string, stage Stage) error
	UpdateStatus(id string, status Status, at time.Time, errMsg string) error
	AppendLog(id string, line string) error
	LogsSince(id string, offset int) ([]string, error)
}

// StoreRecorder fans build progress out to the in-memory store and to the
// build history. Either may be nil. History errors are logged, not returned.
type StoreRecorder struct {
	Mem     *MemStore
	History History
}

func (r StoreRecorder) AppendLog(id string, line string) {
	if r.Mem != nil {
		r.Mem.AppendLog(id, line)
	}
	if r.History != nil {
		if err := r.History.AppendLog(id, line); err != nil {
			log.Printf("persist log error: %v", err)
		}
	}
}

func (r StoreRecorder) SetStage(id string, stage Stage) {
	if r.Mem != nil {
		if err := r.Mem.SetStage(id, stage); err != nil {
			log.Printf("memory stage error: %v", err)
		}
	}
	if r.History != nil {
		if err := r.History.UpdateStage(id, stage); err != nil {
			log.Printf("history stage error: %v", err)
		}
	}
}

func (r StoreRecorder) SetStatus(id string, status Status, errMsg string) {
	now := time.Now().UTC()
	if r.Mem != nil {
		if _, err := r.Mem.SetStatus(id, status, now, errMsg); err != nil {
			log.Printf("memory status error: %v", err)
		}
	}
	if r.History != nil {
		if err := r.History.UpdateStatus(id, status, now, errMsg); err != nil {
			log.Printf("history status error: %v", err)
		}
	}
}
