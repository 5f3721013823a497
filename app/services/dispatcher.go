// Package services provides external service integrations and technical concerns like geolocation and webhooks
package services

import (
	"context"
	"log"
	"sync"
)

// Task is a unit of background work enqueued after a visit is persisted
type Task func(ctx context.Context)

// TaskDispatcher decouples visit side effects (geolocation enrichment,
// webhook delivery) from the redirect response path. Enqueue never blocks the
// caller: when the buffer is full the task is dropped and counted, since a
// lost enrichment is cheaper than a slow redirect.
type TaskDispatcher interface {
	Enqueue(task Task) bool
	Stop(ctx context.Context)
}

// TaskDispatcherImpl implements TaskDispatcher with a buffered channel and a
// fixed worker pool
type TaskDispatcherImpl struct {
	queue chan Task
	wg    sync.WaitGroup

	// mu orders Enqueue sends against the close of queue in Stop: senders
	// hold the read side, Stop closes under the write side
	mu      sync.RWMutex
	stopped bool
	once    sync.Once
}

// NewTaskDispatcher creates a dispatcher with the given queue buffer and
// worker count and starts the workers
func NewTaskDispatcher(buffer, workers int) *TaskDispatcherImpl {
	if buffer <= 0 {
		buffer = 1024
	}
	if workers <= 0 {
		workers = 4
	}
	d := &TaskDispatcherImpl{
		queue: make(chan Task, buffer),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *TaskDispatcherImpl) worker() {
	defer d.wg.Done()
	for task := range d.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Dispatcher task panicked: %v", r)
				}
			}()
			task(context.Background())
		}()
	}
}

// Enqueue submits a task, reporting false when the dispatcher is stopped or
// the queue is full
func (d *TaskDispatcherImpl) Enqueue(task Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return false
	}
	select {
	case d.queue <- task:
		return true
	default:
		log.Printf("Dispatcher queue full, dropping task")
		return false
	}
}

// Stop closes the queue and waits for in-flight tasks, up to the context
// deadline
func (d *TaskDispatcherImpl) Stop(ctx context.Context) {
	d.once.Do(func() {
		d.mu.Lock()
		d.stopped = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("Dispatcher drain timed out: %v", ctx.Err())
	}
}

// SynchronousDispatcher runs every task inline; used in tests so assertions
// can run right after the call that enqueued the task
type SynchronousDispatcher struct{}

func NewSynchronousDispatcher() *SynchronousDispatcher { return &SynchronousDispatcher{} }

func (SynchronousDispatcher) Enqueue(task Task) bool {
	task(context.Background())
	return true
}

func (SynchronousDispatcher) Stop(context.Context) {}
