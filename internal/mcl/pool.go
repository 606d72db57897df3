package mcl

import (
	"math/rand/v2"
	"sync"
)

// worker carries the per-goroutine state for the parallel prediction
// and scoring passes. Each worker owns its own random source so
// parallel draws never contend and a fixed (seed, worker count) pair
// reproduces the same run.
type worker struct {
	id  int
	src *rand.PCG
	rng *rand.Rand
}

// pool shards particle indices across a fixed set of workers. One pool
// lives per filter instance; the fan-out/barrier runs inside the
// single-threaded cycle, so pool state needs no locking between calls.
type pool struct {
	workers []*worker
}

// streamSep separates per-worker PCG streams under a shared seed.
const streamSep = 0x9e3779b97f4a7c15

func newPool(n int, seed uint64) *pool {
	p := &pool{workers: make([]*worker, n)}
	for i := range p.workers {
		src := rand.NewPCG(seed, uint64(i)*streamSep+1)
		p.workers[i] = &worker{id: i, src: src, rng: rand.New(src)}
	}
	return p
}

// run splits [0, n) into one contiguous shard per worker and blocks
// until every shard finishes. fn must only touch indices in its shard;
// the barrier guarantees no partial results escape the call.
func (p *pool) run(n int, fn func(w *worker, start, end int)) {
	nw := len(p.workers)
	if nw == 1 || n < 2*nw {
		fn(p.workers[0], 0, n)
		return
	}
	var wg sync.WaitGroup
	chunk := (n + nw - 1) / nw
	for i, w := range p.workers {
		start := i * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(w *worker, start, end int) {
			defer wg.Done()
			fn(w, start, end)
		}(w, start, end)
	}
	wg.Wait()
}
