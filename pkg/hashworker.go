package nanodc

import (
	"context"
	"errors"
	"sync"
)

// hashJob is one file handed to the worker pool.
type hashJob struct {
	JobID uint64
	File  *scannedFile
}

// hashResult carries a finished job back to the collector.
type hashResult struct {
	Job  *hashJob
	Hash HashRef
	Err  error
}

// hashWorkerPool runs a fixed number of hashing goroutines. Results arrive on
// Results() until every submitted job is done and FinishSubmitting was called.
type hashWorkerPool struct {
	hasher      Hasher
	ctx         context.Context
	cancelled   func() bool
	hashJobChan chan *hashJob
	resultChan  chan hashResult
	wg          sync.WaitGroup
	closed      bool       // track if channel is closed
	closeMutex  sync.Mutex // protect closed flag
}

func newHashWorkerPool(ctx context.Context, hasher Hasher, numWorkers int, cancelled func() bool) *hashWorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	pool := &hashWorkerPool{
		hasher:      hasher,
		ctx:         ctx,
		cancelled:   cancelled,
		hashJobChan: make(chan *hashJob, 100),
		resultChan:  make(chan hashResult, numWorkers),
	}

	for i := 0; i < numWorkers; i++ {
		pool.wg.Add(1)
		go pool.hashWorker()
	}

	go func() {
		pool.wg.Wait()
		close(pool.resultChan)
	}()

	return pool
}

// Submit queues a job. It returns false once the pool's context is done.
func (p *hashWorkerPool) Submit(job *hashJob) bool {
	select {
	case p.hashJobChan <- job:
		return true
	case <-p.ctx.Done():
		return false
	}
}

// FinishSubmitting signals that no more hash jobs will be submitted
func (p *hashWorkerPool) FinishSubmitting() {
	p.closeMutex.Lock()
	defer p.closeMutex.Unlock()

	if !p.closed {
		close(p.hashJobChan)
		p.closed = true
	}
}

// Results returns the channel of finished jobs; it is closed after the last one.
func (p *hashWorkerPool) Results() <-chan hashResult {
	return p.resultChan
}

// hashWorker hashes queued files. Once the refresh is cancelled the remaining
// jobs are drained without touching the disk.
func (p *hashWorkerPool) hashWorker() {
	defer p.wg.Done()

	for job := range p.hashJobChan {
		if p.cancelled() || p.ctx.Err() != nil {
			p.resultChan <- hashResult{Job: job, Err: ErrRefreshCancelled}
			continue
		}

		debugLog("hash", "Hashing file: %s (job %d)", job.File.RealPath, job.JobID)
		hash, err := p.hasher.HashFile(p.ctx, job.File.RealPath)
		if err != nil && p.ctx.Err() != nil {
			err = ErrRefreshCancelled
		}
		if err != nil {
			debugLog("hash", "Hash failed for file: %s (job %d) - %v", job.File.RealPath, job.JobID, err)
		}
		p.resultChan <- hashResult{Job: job, Hash: hash, Err: err}
	}
}

// hashFiles hashes files on a worker pool and hands each outcome to onResult
// from the calling goroutine. It returns ErrRefreshCancelled when the refresh
// was cancelled or the manager closed before every file was hashed.
func (m *ShareManager) hashFiles(files []*scannedFile, workers int, onResult func(*scannedFile, HashRef, error)) error {
	if len(files) == 0 {
		return nil
	}

	pool := newHashWorkerPool(m.ctx, m.hasher, workers, m.refreshCancelled)
	go func() {
		defer pool.FinishSubmitting()
		for i, f := range files {
			if m.refreshCancelled() {
				return
			}
			if !pool.Submit(&hashJob{JobID: uint64(i + 1), File: f}) {
				return
			}
		}
	}()

	cancelled := false
	for result := range pool.Results() {
		if errors.Is(result.Err, ErrRefreshCancelled) {
			cancelled = true
			continue
		}
		onResult(result.Job.File, result.Hash, result.Err)
	}

	if cancelled || m.refreshCancelled() || m.ctx.Err() != nil {
		return ErrRefreshCancelled
	}
	return nil
}
