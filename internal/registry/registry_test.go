package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTryAcquireRelease(t *testing.T) {
	r := New()

	assert.True(t, r.TryAcquire("run-1"))
	assert.False(t, r.TryAcquire("run-1"), "second acquire of an active run must fail")
	assert.True(t, r.TryAcquire("run-2"), "independent run ids are unaffected")

	r.Release("run-1")
	assert.True(t, r.TryAcquire("run-1"), "released run id can be acquired again")

	assert.Equal(t, []string{"run-1", "run-2"}, r.Active())
}

func TestReleaseUnknownIsNoop(t *testing.T) {
	r := New()
	r.Release("never-acquired")
	assert.Empty(t, r.Active())
}

func TestTryAcquireIsAtomic(t *testing.T) {
	r := New()

	const callers = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.TryAcquire("run-1") {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, wins, 1, "exactly one caller may win the guard")
}
