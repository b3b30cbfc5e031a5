package queue_test

import (
	"sync"
	"testing"

	"github.com/reanhealth/botgateway/internal/queue"
)

func TestKeyMutexSerializesSameKey(t *testing.T) {
	t.Parallel()
	km := queue.NewKeyMutex()
	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("user-1")
			defer unlock()
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxActive != 1 {
		t.Fatalf("max concurrent holders for one key = %d, want 1", maxActive)
	}
}

func TestKeyMutexIndependentKeys(t *testing.T) {
	t.Parallel()
	km := queue.NewKeyMutex()
	unlockA := km.Lock("a")
	// Locking a different key must not block.
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyMutexCleansUpEntries(t *testing.T) {
	t.Parallel()
	km := queue.NewKeyMutex()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock := km.Lock(string(rune('a' + n%10)))
			unlock()
		}(i)
	}
	wg.Wait()
	if got := km.Len(); got != 0 {
		t.Fatalf("Len after all unlocks = %d, want 0", got)
	}
}
