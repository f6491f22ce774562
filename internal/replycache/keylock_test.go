package replycache

import (
	"sync"
	"testing"
)

func TestKeyLockerReleasesEntries(t *testing.T) {
	t.Parallel()

	locker := newKeyLocker()
	counter := 0
	wg := sync.WaitGroup{}
	for worker := 0; worker < 16; worker++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for step := 0; step < 100; step++ {
				unlock := locker.lock("k")
				counter++
				unlock()
			}
		}()
	}
	wg.Wait()

	if counter != 1600 {
		t.Fatalf("counter = %d, want 1600", counter)
	}
	if size := locker.size(); size != 0 {
		t.Fatalf("size = %d, want 0", size)
	}
}

func TestKeyLockerIndependentKeys(t *testing.T) {
	t.Parallel()

	locker := newKeyLocker()
	unlockA := locker.lock("a")
	unlockB := locker.lock("b")
	if size := locker.size(); size != 2 {
		t.Fatalf("size = %d, want 2", size)
	}
	unlockA()
	unlockB()
	if size := locker.size(); size != 0 {
		t.Fatalf("size = %d, want 0", size)
	}
}
