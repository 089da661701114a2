package starlark

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"
)

func TestThreadPool_Reuse(t *testing.T) {
	pool := NewThreadPool(4, 0)

	var printed []string
	thread := pool.Acquire("defs.star", func(msg string) { printed = append(printed, msg) })
	assert.Equal(t, "defs.star", thread.Name)

	_, err := starlark.ExecFileOptions(fileOptions, thread, thread.Name, "print('hi')\n", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, printed)

	pool.Release(thread)
	assert.Equal(t, 1, pool.Idle())
	assert.Empty(t, thread.Name)

	again := pool.Acquire("text.star", nil)
	assert.Same(t, thread, again)
	assert.Equal(t, "text.star", again.Name)
	assert.Zero(t, pool.Idle())

	// A nil print hook swallows output.
	_, err = starlark.ExecFileOptions(fileOptions, again, again.Name, "print('quiet')\n", nil)
	require.NoError(t, err)
	assert.Len(t, printed, 1)
}

func TestThreadPool_IdleLimit(t *testing.T) {
	tests := []struct {
		name     string
		idle     int
		acquired int
		want     int
	}{
		{"below limit", 3, 2, 2},
		{"above limit", 2, 5, 2},
		{"default limit", 0, DefaultPoolSize + 4, DefaultPoolSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewThreadPool(tt.idle, 0)
			threads := make([]*starlark.Thread, tt.acquired)
			for i := range threads {
				threads[i] = pool.Acquire("f", nil)
			}
			for _, thread := range threads {
				pool.Release(thread)
			}
			assert.Equal(t, tt.want, pool.Idle())
		})
	}
}

func TestThreadPool_StepBudget(t *testing.T) {
	pool := NewThreadPool(2, 10_000)

	thread := pool.Acquire("ok.star", nil)
	_, err := starlark.ExecFileOptions(fileOptions, thread, "ok.star", "x = 1 + 1\n", nil)
	require.NoError(t, err)
	pool.Release(thread)
	require.Equal(t, 1, pool.Idle(), "a thread within budget is reused")

	thread = pool.Acquire("loop.star", nil)
	src := "def f():\n    n = 0\n    for i in range(1000000):\n        n += i\n    return n\nx = f()\n"
	_, err = starlark.ExecFileOptions(fileOptions, thread, "loop.star", src, nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "too many steps"), err.Error())

	pool.Release(thread)
	assert.Zero(t, pool.Idle(), "an exhausted thread is dropped")

	fresh := pool.Acquire("next.star", nil)
	assert.NotSame(t, thread, fresh)
	_, err = starlark.ExecFileOptions(fileOptions, fresh, "next.star", "y = 2\n", nil)
	assert.NoError(t, err)
}

func TestThreadPool_Concurrent(t *testing.T) {
	pool := NewThreadPool(8, 0)
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			thread := pool.Acquire("concurrent.star", nil)
			defer pool.Release(thread)
			_, err := starlark.ExecFileOptions(fileOptions, thread, thread.Name, "x = 1 + 1\n", nil)
			assert.NoError(t, err)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, pool.Idle(), 8)
}
