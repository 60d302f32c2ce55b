package journeylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_SerializesSameJourney(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := r.Acquire(42)
			defer release()
			counter++
		}()
	}
	wg.Wait()

	require.Equal(t, 50, counter)
}

func TestRegistry_DropsIdleEntries(t *testing.T) {
	r := NewRegistry()

	release := r.Acquire(1)
	release()
	release = r.Acquire(2)
	release()

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Empty(t, r.entries)
}

func TestRegistry_DifferentJourneysIndependent(t *testing.T) {
	r := NewRegistry()

	release1 := r.Acquire(1)
	defer release1()

	done := make(chan struct{})
	go func() {
		release2 := r.Acquire(2)
		release2()
		close(done)
	}()
	<-done
}
