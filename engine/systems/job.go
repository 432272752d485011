package systems

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/spaghettifunk/marionette/engine/core"
)

// JobTask is a unit of background work. OnComplete or OnFailure runs on the
// worker goroutine once Run returns; neither may touch engine state directly.
type JobTask struct {
	ID         uuid.UUID
	Name       string
	Run        func(ctx context.Context) (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	mutex    sync.RWMutex
	isClosed bool
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	js.start()

	return js, nil
}

func (js *JobSystem) start() {
	for i := 0; i < js.numWorkers; i++ {
		js.wg.Add(1)
		go func() {
			defer js.wg.Done()
			for job := range js.jobQueue {
				js.execute(job)
			}
		}()
	}
}

func (js *JobSystem) execute(job JobTask) {
	result, err := job.Run(js.ctx)
	if err != nil {
		core.LogError("job %s (%s) failed: %v", job.Name, core.ShortID(job.ID), err)
		if job.OnFailure != nil {
			job.OnFailure(err)
		}
		return
	}
	if job.OnComplete != nil {
		job.OnComplete(result)
	}
}

/**
 * @brief Shuts the job system down. Running jobs see their context cancelled;
 * queued jobs still run, with a cancelled context.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.isClosed {
		js.mutex.Unlock()
		return nil
	}
	js.isClosed = true
	js.cancel()
	close(js.jobQueue)
	js.mutex.Unlock()

	js.wg.Wait()
	return nil
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) (uuid.UUID, error) {
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.isClosed {
		return uuid.Nil, core.ErrShuttingDown
	}
	if jt.ID == uuid.Nil {
		jt.ID = core.NewID()
	}
	js.jobQueue <- jt
	return jt.ID, nil
}

// AddWorkNonBlocking submits from a new goroutine and returns immediately.
func (js *JobSystem) AddWorkNonBlocking(jt JobTask) {
	go func() {
		if _, err := js.Submit(jt); err != nil && jt.OnFailure != nil {
			jt.OnFailure(err)
		}
	}()
}
