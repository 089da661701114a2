package starlark

import (
	"sync"

	"go.starlark.net/starlark"
)

// DefaultPoolSize is the number of idle threads a pool keeps.
const DefaultPoolSize = 10

const stepLimitKey = "sqlext.step_limit"

// ThreadPool hands out Starlark threads for function bodies and takes them
// back afterwards. Each acquisition gets a fresh step budget when the pool
// has one; a thread that ran out of budget is cancelled and never reused.
type ThreadPool struct {
	idle     int
	maxSteps uint64

	mu   sync.Mutex
	free []*starlark.Thread
}

// NewThreadPool creates a pool keeping up to idle threads. maxSteps caps the
// steps of a single evaluation; zero leaves it unbounded.
func NewThreadPool(idle int, maxSteps uint64) *ThreadPool {
	if idle <= 0 {
		idle = DefaultPoolSize
	}
	return &ThreadPool{idle: idle, maxSteps: maxSteps}
}

// Acquire returns a thread named after the file being evaluated. print
// receives the output of print() calls; nil drops it.
func (p *ThreadPool) Acquire(name string, print func(msg string)) *starlark.Thread {
	p.mu.Lock()
	var thread *starlark.Thread
	if n := len(p.free); n > 0 {
		thread = p.free[n-1]
		p.free = p.free[:n-1]
	}
	p.mu.Unlock()

	if thread == nil {
		thread = new(starlark.Thread)
	}
	thread.Name = name
	thread.Print = func(_ *starlark.Thread, msg string) {
		if print != nil {
			print(msg)
		}
	}
	if p.maxSteps > 0 {
		limit := thread.ExecutionSteps() + p.maxSteps
		thread.SetMaxExecutionSteps(limit)
		thread.SetLocal(stepLimitKey, limit)
	}
	return thread
}

// Release gives a thread back to the pool.
func (p *ThreadPool) Release(thread *starlark.Thread) {
	if limit, ok := thread.Local(stepLimitKey).(uint64); ok && thread.ExecutionSteps() >= limit {
		return
	}
	thread.Name = ""
	thread.Print = nil

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.free) < p.idle {
		p.free = append(p.free, thread)
	}
}

// Idle returns the number of threads waiting for reuse.
func (p *ThreadPool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}
