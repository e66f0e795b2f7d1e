package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tliron/commonlog"

	"github.com/chazu/pinky/pkg/bytecode"
)

// ErrRunnerStopped is returned by Do after Stop has been called.
var ErrRunnerStopped = errors.New("runner stopped")

// runRequest represents a unit of work to be executed by a worker.
type runRequest struct {
	fn   func(*bytecode.VM) any
	done chan runResult
}

// runResult holds the return value from a VM operation.
type runResult struct {
	value any
	err   error
}

// Runner executes work on a fixed set of goroutines, each owning one VM.
// A VM is not safe for concurrent use, so every access goes through Do.
// The number of workers bounds how many programs run at once.
type Runner struct {
	requests chan runRequest
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner starts a Runner with the given number of workers (at least one).
func NewRunner(workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	r := &Runner{
		requests: make(chan runRequest, 64),
		quit:     make(chan struct{}),
	}
	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.loop(bytecode.NewVM(
			bytecode.WithOutput(io.Discard),
			bytecode.WithLogger(commonlog.GetLoggerf("pinky.server.worker.%d", i)),
		))
	}
	return r
}

// loop processes requests sequentially on one VM.
func (r *Runner) loop(v *bytecode.VM) {
	defer r.wg.Done()
	for {
		select {
		case req := <-r.requests:
			req.done <- r.execute(v, req.fn)
		case <-r.quit:
			return
		}
	}
}

// execute runs fn on the VM, recovering from panics.
func (r *Runner) execute(v *bytecode.VM, fn func(*bytecode.VM) any) (result runResult) {
	defer func() {
		if p := recover(); p != nil {
			result.err = fmt.Errorf("runner: panic: %v", p)
		}
		// Drop references to per-request writers.
		v.Configure(bytecode.WithOutput(io.Discard), bytecode.WithMaxSteps(0))
	}()
	result.value = fn(v)
	return result
}

// Do submits fn to a worker and blocks until it completes or ctx is done.
// Do does not interrupt a function that is already running; fn must watch
// ctx itself to release its worker early.
func (r *Runner) Do(ctx context.Context, fn func(*bytecode.VM) any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	req := runRequest{
		fn:   fn,
		done: make(chan runResult, 1),
	}
	select {
	case r.requests <- req:
	case <-r.quit:
		return nil, ErrRunnerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-r.quit:
		return nil, ErrRunnerStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stop shuts down the workers and waits for them to exit.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	r.wg.Wait()
}
