package reconcile

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutexOverlappingKeysDoNotDeadlock(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int64
	)
	sets := [][]string{{"a", "b"}, {"b", "c"}, {"c", "a"}, {"a", "a"}}
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(keys []string) {
			defer wg.Done()
			unlock := km.Lock(keys)
			defer unlock()
			atomic.AddInt64(&counter, 1)
		}(sets[i%len(sets)])
	}
	wg.Wait()

	assert.Equal(t, int64(200), counter)
	assert.Empty(t, km.locks)
}

func TestKeyedMutexSameKeyIsExclusive(t *testing.T) {
	km := newKeyedMutex()
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock([]string{"serial:SN-1", "mac:AA"})
			counter++
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
	assert.Empty(t, km.locks)
}
