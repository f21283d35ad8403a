// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package engine coordinates conversion jobs: a bounded worker pool runs one
// job per worker through the parse, decode, extract and encode stages, with
// poll-based status, best-effort progress notifications and chunk-boundary
// cancellation.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/pdiddy/mf4bridge/pkg/types"
)

var (
	// ErrInvalidInput reports a rejected input path (missing file or wrong
	// extension), detected before a job is queued.
	ErrInvalidInput = errors.New("engine: invalid input")

	// ErrUnknownJob reports a job ID with no registered job.
	ErrUnknownJob = errors.New("engine: unknown job")

	// ErrClosed reports a submit to a closed engine.
	ErrClosed = errors.New("engine: closed")
)

// inputExtensions lists the accepted input file extensions.
var inputExtensions = map[string]bool{".mf4": true, ".mdf": true}

const queueCapacity = 1024

// Engine is the conversion coordinator. Jobs share nothing: each owns its
// container, record buffers and output handles exclusively.
type Engine struct {
	cfg    types.EngineConfig
	events chan types.ProgressEvent
	queue  chan *job
	wg     sync.WaitGroup

	mu     sync.Mutex
	jobs   map[string]*job
	closed bool
}

// New starts an engine with cfg.Workers pool workers. Close releases them.
func New(cfg types.EngineConfig) *Engine {
	cfg = cfg.Normalized()
	e := &Engine{
		cfg:    cfg,
		events: make(chan types.ProgressEvent, cfg.ProgressBuffer),
		queue:  make(chan *job, queueCapacity),
		jobs:   make(map[string]*job),
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for j := range e.queue {
				j.run(e)
			}
		}()
	}
	return e
}

// Submit validates the input path and queues a conversion job for it,
// returning the job ID. key may be nil for unencrypted containers.
func (e *Engine) Submit(path string, formats []types.FormatTag, outDir string, key []byte) (string, error) {
	if len(formats) == 0 {
		return "", fmt.Errorf("%w: no output formats requested", ErrInvalidInput)
	}
	if ext := strings.ToLower(filepath.Ext(path)); !inputExtensions[ext] {
		return "", fmt.Errorf("%w: %s: extension %q is not an MDF4 container", ErrInvalidInput, path, ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidInput, path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrInvalidInput, path)
	}

	j := newJob(uuid.NewString(), path, outDir, formats, key)

	// The enqueue happens under the mutex so a concurrent Close cannot
	// close the queue between the closed check and the send.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	select {
	case e.queue <- j:
	default:
		return "", fmt.Errorf("%w: job queue is full", ErrInvalidInput)
	}
	e.jobs[j.id] = j
	return j.id, nil
}

// Poll returns the current status snapshot of a job.
func (e *Engine) Poll(id string) (types.JobStatus, error) {
	j, err := e.lookup(id)
	if err != nil {
		return types.JobStatus{}, err
	}
	return j.status(), nil
}

// Cancel marks a job cancelled. The pipeline aborts at the next chunk
// boundary; already-flushed output bytes stay on disk and the caller must
// treat them as incomplete.
func (e *Engine) Cancel(id string) error {
	j, err := e.lookup(id)
	if err != nil {
		return err
	}
	j.cancelled.Store(true)
	return nil
}

// Wait blocks until the job reaches a terminal stage and returns its final
// status.
func (e *Engine) Wait(id string) (types.JobStatus, error) {
	j, err := e.lookup(id)
	if err != nil {
		return types.JobStatus{}, err
	}
	<-j.done
	return j.status(), nil
}

// Events returns the progress notification channel. Sends never block the
// pipeline: when the consumer lags, notifications are dropped.
func (e *Engine) Events() <-chan types.ProgressEvent {
	return e.events
}

// Close stops accepting jobs, waits for queued jobs to finish and closes the
// progress channel.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	close(e.queue)
	e.wg.Wait()
	close(e.events)
}

func (e *Engine) lookup(id string) (*job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	return j, nil
}

// emit sends a progress event without blocking.
func (e *Engine) emit(ev types.ProgressEvent) {
	select {
	case e.events <- ev:
	default:
	}
}
