package systems

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/spark/engine/core"
)

/** @brief Describes a type of job */
type JobType int

const (
	/**
	 * @brief A general job that does not have any specific thread requirements.
	 */
	JOB_TYPE_GENERAL JobType = 0x02
	/**
	 * @brief A resource loading job.
	 */
	JOB_TYPE_RESOURCE_LOAD JobType = 0x04
	/**
	 * @brief A resource writing job, e.g. an external savable being written to its own file.
	 */
	JOB_TYPE_RESOURCE_WRITE JobType = 0x08
)

// Job is a unit of work handed to the JobSystem. It doubles as the future of
// its own result: Wait blocks until the job ran and returns its error.
type Job struct {
	JobType JobType
	// Name is used for logging only.
	Name string
	// Run is invoked on a worker. Required.
	Run func() error
	// OnComplete is invoked after Run succeeded. Optional.
	OnComplete func()
	// OnFailure is invoked with the error returned by Run. Optional.
	OnFailure func(error)

	once sync.Once
	done chan struct{}
	err  error
}

func NewJob(jobType JobType, name string, run func() error) *Job {
	return &Job{
		JobType: jobType,
		Name:    name,
		Run:     run,
		done:    make(chan struct{}),
	}
}

// Wait blocks until the job finished and returns the error of Run, if any.
func (j *Job) Wait() error {
	<-j.done
	return j.err
}

// Done reports whether the job already finished.
func (j *Job) Done() bool {
	select {
	case <-j.done:
		return true
	default:
		return false
	}
}

func (j *Job) prepare() {
	if j.done == nil {
		j.done = make(chan struct{})
	}
}

func (j *Job) finish(err error) {
	j.once.Do(func() {
		j.err = err
		if err != nil {
			if j.OnFailure != nil {
				j.OnFailure(err)
			}
		} else if j.OnComplete != nil {
			j.OnComplete()
		}
		close(j.done)
	})
}

func (j *Job) execute() {
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("job %q panicked: %v", j.Name, r)
			}
		}()
		err = j.Run()
	}()
	if err != nil {
		core.LogError("job %q failed: %s", j.Name, err)
	}
	j.finish(err)
}

type JobSystem struct {
	numWorkers int
	jobQueue   chan *Job
	wg         sync.WaitGroup

	mutex  sync.RWMutex
	closed bool
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

	js := &JobSystem{
		numWorkers: numWorkers,
		jobQueue:   make(chan *Job, channelSize),
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
				job.execute()
			}
		}()
	}
}

/**
 * @brief Shuts the job system down. Queued jobs still run before the workers exit.
 */
func (js *JobSystem) Shutdown() error {
	js.mutex.Lock()
	if js.closed {
		js.mutex.Unlock()
		return nil
	}
	js.closed = true
	close(js.jobQueue)
	js.mutex.Unlock()

	js.wg.Wait()
	return nil
}

// AddWorkNonBlocking queues the job from a new goroutine and returns immediately.
// Jobs queued from inside other jobs must use it, so a full queue never stalls a worker.
func (js *JobSystem) AddWorkNonBlocking(job *Job) *Job {
	job.prepare()
	go js.Submit(job)
	return job
}

/**
 * @brief Submits the provided job to be queued for execution.
 * Blocks while the queue is full. A job submitted after Shutdown fails with ErrJobSystemShutdown.
 */
func (js *JobSystem) Submit(job *Job) *Job {
	job.prepare()
	js.mutex.RLock()
	defer js.mutex.RUnlock()
	if js.closed {
		job.finish(core.ErrJobSystemShutdown)
		return job
	}
	js.jobQueue <- job
	return job
}
