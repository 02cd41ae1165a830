package blur

import (
	"image"
	"sync"

	"github.com/google/uuid"

	"storyview-server-go/internal/platform/logging"
)

const jobQueueSize = 64

type job struct {
	id     string
	img    *image.RGBA
	radius int
}

// Worker blurs images on a dedicated goroutine so callers never block
// on pixel work. Results are handed to the sink registered at submit
// time; canceling a job unregisters the sink and the result is dropped
// when it surfaces.
type Worker struct {
	logger *logging.Logger
	jobs   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu    sync.Mutex
	sinks map[string]func(*image.RGBA)
}

// NewWorker starts a blur worker. The logger may be nil.
func NewWorker(logger *logging.Logger) *Worker {
	w := &Worker{
		logger: logger,
		jobs:   make(chan job, jobQueueSize),
		stopCh: make(chan struct{}),
		sinks:  make(map[string]func(*image.RGBA)),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

var (
	sharedOnce sync.Once
	shared     *Worker
)

// Shared returns the process-wide worker, starting it on first use.
func Shared() *Worker {
	sharedOnce.Do(func() {
		shared = NewWorker(logging.DefaultLogger)
	})
	return shared
}

// Submit queues img for blurring and returns the job id. The sink runs
// on the worker goroutine once the blur finishes. When the queue is
// full the job is dropped and the sink never fires; placeholders then
// keep their unblurred mosaic, which is only a cosmetic downgrade.
func (w *Worker) Submit(img *image.RGBA, radius int, sink func(*image.RGBA)) string {
	id := uuid.New().String()
	w.mu.Lock()
	w.sinks[id] = sink
	w.mu.Unlock()

	select {
	case w.jobs <- job{id: id, img: img, radius: radius}:
	default:
		w.mu.Lock()
		delete(w.sinks, id)
		w.mu.Unlock()
		w.logger.WarnTag("BLUR", "queue full, dropping job %s", id)
	}
	return id
}

// Cancel unregisters the job's sink. The blur may still run, but its
// result is discarded.
func (w *Worker) Cancel(id string) {
	w.mu.Lock()
	delete(w.sinks, id)
	w.mu.Unlock()
}

// Pending reports queued jobs and registered sinks, for status reporting.
func (w *Worker) Pending() (queued, registered int) {
	w.mu.Lock()
	registered = len(w.sinks)
	w.mu.Unlock()
	return len(w.jobs), registered
}

// Stop shuts the worker down and waits for the in-flight job.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopCh:
			return
		case j := <-w.jobs:
			w.process(j)
		}
	}
}

func (w *Worker) process(j job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.ErrorTag("BLUR", "job %s panicked: %v", j.id, r)
		}
	}()

	Blur(j.img, j.radius)

	w.mu.Lock()
	sink, ok := w.sinks[j.id]
	delete(w.sinks, j.id)
	w.mu.Unlock()
	if !ok {
		w.logger.DebugTag("BLUR", "job %s canceled, result dropped", j.id)
		return
	}
	sink(j.img)
}
