package ids

import (
	"sync"
	"testing"
)

func TestGenerateUnique(t *testing.T) {
	const n = 10000
	seen := make(map[int64]bool, n)
	for i := 0; i < n; i++ {
		id := Generate()
		if seen[id] {
			t.Fatalf("duplicate id %d at i=%d", id, i)
		}
		seen[id] = true
	}
}

func TestGenerateConcurrent(t *testing.T) {
	const workers = 8
	const per = 2000

	var mu sync.Mutex
	seen := make(map[int64]bool, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]int64, 0, per)
			for i := 0; i < per; i++ {
				local = append(local, Generate())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, id := range local {
				if seen[id] {
					t.Errorf("duplicate id %d", id)
					return
				}
				seen[id] = true
			}
		}()
	}
	wg.Wait()
}

func TestGenerateMonotonicPerCall(t *testing.T) {
	prev := Generate()
	for i := 0; i < 1000; i++ {
		id := Generate()
		if id <= prev {
			t.Fatalf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}
