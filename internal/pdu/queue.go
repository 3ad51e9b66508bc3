package pdu

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Task is one unit of deferred work.
type Task struct {
	Name string
	Run  func() error
}

// Queue is an unbounded FIFO drained by a single worker goroutine, so the
// tasks of one PDU unit never run concurrently.
type Queue struct {
	name    string
	mu      sync.Mutex
	tasks   []Task
	counter int
	signal  chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// NewQueue starts the worker of a new queue.
func NewQueue(name string) *Queue {
	q := &Queue{
		name:   name,
		signal: make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go q.work()
	return q
}

// Enqueue appends fn under a unique name derived from name and returns that
// name. It never blocks. Tasks enqueued after Stop are dropped.
func (q *Queue) Enqueue(name string, fn func() error) string {
	q.mu.Lock()
	taskName := fmt.Sprintf("%s-ID-%d", name, q.counter)
	q.counter++
	select {
	case <-q.quit:
		q.mu.Unlock()
		log.Warn().Str("queue", q.name).Str("task", taskName).Msg("queue is stopped, dropping task")
		return taskName
	default:
	}
	q.tasks = append(q.tasks, Task{Name: taskName, Run: fn})
	q.mu.Unlock()

	log.Info().Str("queue", q.name).Str("task", taskName).Msg("added task")
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return taskName
}

// Len is the number of tasks waiting to run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

func (q *Queue) next() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 {
		return Task{}, false
	}
	t := q.tasks[0]
	q.tasks[0] = Task{}
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *Queue) work() {
	defer close(q.done)
	for {
		select {
		case <-q.quit:
			return
		default:
		}
		t, ok := q.next()
		if !ok {
			select {
			case <-q.quit:
				return
			case <-q.signal:
			}
			continue
		}
		q.run(t)
	}
}

func (q *Queue) run(t Task) {
	logger := log.With().Str("queue", q.name).Str("task", t.Name).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Msgf("task panicked: %v", r)
		}
	}()
	logger.Info().Msg("running task")
	if err := t.Run(); err != nil {
		logger.Error().Err(err).Msg("task failed")
		return
	}
	logger.Info().Msg("task done")
}

// Stop makes the worker exit once the running task, if any, returns, and
// waits for it. Pending tasks are discarded. Stop may be called more than
// once.
func (q *Queue) Stop() {
	q.once.Do(func() {
		q.mu.Lock()
		close(q.quit)
		dropped := len(q.tasks)
		q.tasks = nil
		q.mu.Unlock()
		if dropped > 0 {
			log.Warn().Str("queue", q.name).Int("dropped", dropped).Msg("discarding pending tasks")
		}
	})
	<-q.done
}
