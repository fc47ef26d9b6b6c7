package crawl

import "sync"

// task is one frontier entry. key is the normalized URL used for dedup;
// fetchURL keeps the query string when the entry is a direct resource
// download.
type task struct {
	key      string
	fetchURL string
	depth    int
	binary   bool
}

// frontier holds the in-memory crawl state: the visited set, the pending
// queue and the in-flight count. Workers block on next until a task arrives
// or the crawl drains.
type frontier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	queue    []task
	visited  map[string]bool
	inFlight int
	stopped  bool
}

func newFrontier() *frontier {
	f := &frontier{visited: make(map[string]bool)}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// enqueue adds a task unless its key was already seen. Returns whether the
// task was accepted.
func (f *frontier) enqueue(t task) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stopped || f.visited[t.key] {
		return false
	}
	f.visited[t.key] = true
	f.queue = append(f.queue, t)
	f.cond.Signal()
	return true
}

// next blocks until a task is available. ok is false when the crawl has
// drained (no queued tasks and nothing in flight) or was stopped.
func (f *frontier) next() (task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if f.stopped {
			return task{}, false
		}
		if len(f.queue) > 0 {
			t := f.queue[0]
			f.queue = f.queue[1:]
			f.inFlight++
			return t, true
		}
		if f.inFlight == 0 {
			f.cond.Broadcast()
			return task{}, false
		}
		f.cond.Wait()
	}
}

// done marks a task finished, waking waiters so drain detection can fire.
func (f *frontier) done() {
	f.mu.Lock()
	f.inFlight--
	f.cond.Broadcast()
	f.mu.Unlock()
}

// stop wakes every waiter and rejects all future work. Used both by the
// crawl-limit signal and by cancellation.
func (f *frontier) stop() {
	f.mu.Lock()
	f.stopped = true
	f.cond.Broadcast()
	f.mu.Unlock()
}

// seen reports whether a key is in the visited set.
func (f *frontier) seen(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[key]
}
