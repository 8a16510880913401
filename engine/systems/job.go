package systems

import (
	"errors"
	"fmt"
	"sync"

	"github.com/spaghettifunk/anima-gfx/engine/core"
)

// JobTask is one unit of work. Run executes on a worker goroutine; OnComplete
// and OnFailure execute on whichever goroutine calls Update, so they may
// touch the renderer.
type JobTask struct {
	Name       string
	Run        func() (interface{}, error)
	OnComplete func(result interface{})
	OnFailure  func(err error)
}

type jobResult struct {
	task   JobTask
	result interface{}
	err    error
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan JobTask
	wg         sync.WaitGroup

	// closeMu guards closed and the queue send; mu guards finished, so a
	// blocked Submit never stalls the workers.
	closeMu  sync.RWMutex
	closed   bool
	mu       sync.Mutex
	finished []jobResult
}

var ErrNoWorkers = fmt.Errorf("attempting to create worker pool with less than 1 worker")
var ErrNegativeChannelSize = fmt.Errorf("attempting to create worker pool with a negative channel size")
var ErrJobSystemClosed = errors.New("job system is shut down")
var ErrJobQueueFull = errors.New("job queue is full")

func NewJobSystem(numWorkers int, channelSize int) (*JobSystem, error) {
	if numWorkers <= 0 {
		return nil, ErrNoWorkers
	}
	if channelSize < 0 {
		return nil, ErrNegativeChannelSize
	}

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan JobTask, channelSize),
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
				result, err := js.run(job)
				js.mu.Lock()
				js.finished = append(js.finished, jobResult{task: job, result: result, err: err})
				js.mu.Unlock()
			}
		}()
	}
}

// run keeps a panicking job from taking its worker down.
func (js *JobSystem) run(job JobTask) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, r)
		}
	}()
	return job.Run()
}

/**
 * @brief Shuts the job system down. Queued jobs still run, their callbacks
 * are dropped.
 */
func (js *JobSystem) Shutdown() error {
	js.closeMu.Lock()
	if js.closed {
		js.closeMu.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.closeMu.Unlock()

	js.wg.Wait()

	js.mu.Lock()
	if n := len(js.finished); n > 0 {
		core.LogDebug("job system shut down with %d undelivered results", n)
	}
	js.finished = nil
	js.mu.Unlock()
	return nil
}

/**
 * @brief Updates the job system. Should happen once an update cycle: runs
 * the callbacks of every job finished since the last call, in completion
 * order, and returns how many ran.
 */
func (js *JobSystem) Update() int {
	js.mu.Lock()
	finished := js.finished
	js.finished = nil
	js.mu.Unlock()

	for _, f := range finished {
		if f.err != nil {
			core.LogError("job %s failed: %s", f.task.Name, f.err)
			if f.task.OnFailure != nil {
				f.task.OnFailure(f.err)
			}
			continue
		}
		if f.task.OnComplete != nil {
			f.task.OnComplete(f.result)
		}
	}
	return len(finished)
}

/**
 * @brief Submits the provided job to be queued for execution. Blocks while
 * the queue is full.
 * @param jt The description of the job to be executed.
 */
func (js *JobSystem) Submit(jt JobTask) error {
	js.closeMu.RLock()
	defer js.closeMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	js.jobQueue <- jt
	return nil
}

// TrySubmit queues jt only if there is room right now.
func (js *JobSystem) TrySubmit(jt JobTask) error {
	js.closeMu.RLock()
	defer js.closeMu.RUnlock()
	if js.closed {
		return ErrJobSystemClosed
	}
	select {
	case js.jobQueue <- jt:
		return nil
	default:
		return ErrJobQueueFull
	}
}
