package server

import (
	"errors"
	"fmt"
	"sync"
)

// ErrWorkerStopped is returned by Do once Stop has been called.
var ErrWorkerStopped = errors.New("engine worker stopped")

type job struct {
	fn    func(*Analyzer) interface{}
	reply chan jobResult
}

type jobResult struct {
	value interface{}
	err   error
}

// EngineWorker owns an Analyzer and runs every request against it on one
// goroutine, in submission order. LSP handlers run concurrently and must go
// through the worker.
type EngineWorker struct {
	analyzer *Analyzer
	jobs     chan job
	quit     chan struct{}
	stopOnce sync.Once
}

// NewEngineWorker starts a worker for a.
func NewEngineWorker(a *Analyzer) *EngineWorker {
	w := &EngineWorker{
		analyzer: a,
		jobs:     make(chan job, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *EngineWorker) loop() {
	for {
		select {
		case j := <-w.jobs:
			j.reply <- w.run(j.fn)
		case <-w.quit:
			return
		}
	}
}

func (w *EngineWorker) run(fn func(*Analyzer) interface{}) (res jobResult) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("%v", r)
		}
	}()
	res.value = fn(w.analyzer)
	return res
}

// Do runs fn on the worker goroutine and waits for its result. A panic inside
// fn is returned as an error. After Stop, Do returns ErrWorkerStopped without
// running fn.
func (w *EngineWorker) Do(fn func(*Analyzer) interface{}) (interface{}, error) {
	select {
	case <-w.quit:
		return nil, ErrWorkerStopped
	default:
	}

	j := job{fn: fn, reply: make(chan jobResult, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}

	select {
	case res := <-j.reply:
		return res.value, res.err
	case <-w.quit:
		// The loop may have finished the job just before quitting.
		select {
		case res := <-j.reply:
			return res.value, res.err
		default:
			return nil, ErrWorkerStopped
		}
	}
}

// Stop shuts the worker down. It is safe to call more than once.
func (w *EngineWorker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
