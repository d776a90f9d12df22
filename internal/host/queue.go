package host

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-jsbridge/internal/goroutineid"
)

// serialQueue runs jobs one at a time, in push order, on a single goroutine
// it owns. Jobs still pending when the queue closes are dropped.
type serialQueue struct {
	name   string
	logger *slog.Logger

	mu     sync.Mutex
	jobs   []func()
	closed bool

	wake chan struct{}
	done chan struct{}
	gid  atomic.Int64
}

func newSerialQueue(name string, logger *slog.Logger) *serialQueue {
	q := &serialQueue{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	started := make(chan struct{})
	go q.run(started)
	<-started
	return q
}

func (q *serialQueue) push(job func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// close stops the queue without waiting, so a job may close its own queue.
func (q *serialQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.jobs = nil
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *serialQueue) owns() bool {
	return goroutineid.Get() == q.gid.Load()
}

func (q *serialQueue) run(started chan<- struct{}) {
	defer close(q.done)
	q.gid.Store(goroutineid.Get())
	close(started)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			<-q.wake
			continue
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.exec(job)
	}
}

func (q *serialQueue) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("job panicked", slog.String("queue", q.name), slog.String("panic", fmt.Sprint(r)))
		}
	}()
	job()
}
