package sim

import (
	"runtime"
	"sync"
)

// parallelThreshold is the minimum body count to use parallel processing.
// Below this, single-threaded is faster due to goroutine overhead.
const parallelThreshold = 64

// chunksPerWorker splits each pass finer than one chunk per worker, since
// force cost varies a lot between dense and sparse regions.
const chunksPerWorker = 4

// chunkFunc processes bodies [start, end).
type chunkFunc func(start, end int, scratch *workerScratch)

// workerScratch holds per-worker counters, padded to its own cache line.
type workerScratch struct {
	visited int64
	_       [56]byte
}

// workChunk represents a range of bodies for a worker to process.
type workChunk struct {
	start, end int
	fn         chunkFunc
}

// parallelState is a persistent worker pool. Each run is a full barrier:
// it returns only after every chunk has finished.
type parallelState struct {
	numWorkers int
	threshold  int
	scratches  []workerScratch

	// Worker pool channels
	workChan chan workChunk // sends work to workers
	doneChan chan struct{}  // workers signal completion
	stopChan chan struct{}  // signals workers to exit
	wg       sync.WaitGroup // tracks active workers
	running  bool           // true if workers are running
}

func newParallelState(workers, threshold int) *parallelState {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if threshold <= 0 {
		threshold = parallelThreshold
	}
	return &parallelState{
		numWorkers: workers,
		threshold:  threshold,
		scratches:  make([]workerScratch, workers),
	}
}

// startWorkers launches persistent worker goroutines.
func (p *parallelState) startWorkers() {
	if p.running {
		return
	}

	p.workChan = make(chan workChunk, p.numWorkers)
	p.doneChan = make(chan struct{}, p.numWorkers*chunksPerWorker)
	p.stopChan = make(chan struct{})
	p.running = true

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (p *parallelState) stopWorkers() {
	if !p.running {
		return
	}

	close(p.stopChan)
	p.wg.Wait()
	close(p.workChan)
	close(p.doneChan)
	p.running = false
}

// worker runs in a goroutine, processing chunks until stopped.
func (p *parallelState) worker(workerID int) {
	defer p.wg.Done()
	scratch := &p.scratches[workerID]

	for {
		select {
		case <-p.stopChan:
			return
		case chunk, ok := <-p.workChan:
			if !ok {
				return
			}
			chunk.fn(chunk.start, chunk.end, scratch)
			p.doneChan <- struct{}{}
		}
	}
}

// run applies fn to [0, n) and returns the summed visit counters.
func (p *parallelState) run(n int, fn chunkFunc) int64 {
	for i := range p.scratches {
		p.scratches[i].visited = 0
	}

	if n < p.threshold || p.numWorkers == 1 {
		fn(0, n, &p.scratches[0])
		return p.scratches[0].visited
	}

	p.startWorkers()

	chunks := p.numWorkers * chunksPerWorker
	chunkSize := (n + chunks - 1) / chunks

	// Dispatch chunks to workers
	chunksDispatched := 0
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		p.workChan <- workChunk{start: start, end: end, fn: fn}
		chunksDispatched++
	}

	// Wait for all chunks to complete
	for i := 0; i < chunksDispatched; i++ {
		<-p.doneChan
	}

	var visited int64
	for i := range p.scratches {
		visited += p.scratches[i].visited
	}
	return visited
}
