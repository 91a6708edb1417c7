package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/vyvo/modelpack/pkg/builder"
	"github.com/vyvo/modelpack/pkg/config"
	"github.com/vyvo/modelpack/pkg/queue"
	"github.com/vyvo/modelpack/pkg/registry"
	"github.com/vyvo/modelpack/pkg/telemetry"
)

// buildQueue is the part of queue.Queue the worker loop needs.
type buildQueue interface {
	Dequeue(ctx context.Context, workerID string) (*queue.Record, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, errMsg string) error
}

type worker struct {
	id       string
	queue    buildQueue
	recorder builder.Recorder
	pipeline []builder.Option
	notifier *registry.Notifier
	backoff  time.Duration
}

func main() {
	cfg, err := config.LoadService()
	if err != nil {
		log.Fatalf("worker config: %v", err)
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Fatal("BUILDER_REDIS_URL is required")
	}

	shutdownTracer := telemetry.InitTracer(context.Background(), "modelpack-build-worker", cfg.Telemetry, os.Stdout)
	defer func() { _ = shutdownTracer(context.Background()) }()

	q, err := queue.NewQueue(cfg.RedisURL)
	if err != nil {
		log.Fatalf("worker redis init failed: %v", err)
	}
	defer q.Close()

	var history builder.History
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		pg, err := builder.NewPostgresStore(dsn)
		if err != nil {
			log.Fatalf("worker postgres init failed: %v", err)
		}
		defer pg.Close()
		history = pg
	}

	pipeline, err := cfg.PipelineOptions()
	if err != nil {
		log.Fatalf("worker pipeline config: %v", err)
	}

	id := cfg.WorkerID
	if id == "" {
		host, _ := os.Hostname()
		id = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}

	w := &worker{
		id:       id,
		queue:    q,
		recorder: logRecorder{builder.StoreRecorder{History: history}},
		pipeline: pipeline,
		notifier: registry.NewNotifier(cfg.RegistryURL, cfg.APIKey),
		backoff:  5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("build worker %s started", id)
	w.run(ctx)
	log.Printf("build worker %s stopped", id)
}

// run processes queued builds until ctx is cancelled.
func (w *worker) run(ctx context.Context) {
	for ctx.Err() == nil {
		rec, err := w.queue.Dequeue(ctx, w.id)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("dequeue error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		if rec == nil {
			continue
		}
		w.process(ctx, rec.Build)
	}
}

func (w *worker) process(ctx context.Context, build builder.Build) {
	log.Printf("worker %s picked up build %s (%s)", w.id, build.ID, build.Dir)

	// Finishing bookkeeping must survive a shutdown signal.
	bookkeeping := context.WithoutCancel(ctx)

	err := builder.Execute(ctx, build, w.recorder, w.pipeline...)
	if err != nil {
		log.Printf("build %s failed: %v", build.ID, err)
		if qErr := w.queue.Fail(bookkeeping, build.ID, err.Error()); qErr != nil {
			log.Printf("queue fail %s: %v", build.ID, qErr)
		}
		return
	}
	if qErr := w.queue.Complete(bookkeeping, build.ID); qErr != nil {
		log.Printf("queue complete %s: %v", build.ID, qErr)
	}
	if nErr := w.notifier.ImageBuilt(bookkeeping, build); nErr != nil {
		log.Printf("registry notify: %v", nErr)
	}
}

// logRecorder mirrors build output into the worker's own log.
type logRecorder struct {
	builder.StoreRecorder
}

func (r logRecorder) AppendLog(id string, line string) {
	log.Printf("[%s] %s", id, line)
	r.StoreRecorder.AppendLog(id, line)
}
