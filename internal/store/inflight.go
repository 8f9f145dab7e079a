package store

import "sync"

var idleClosed = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// inflight counts running background tasks. Unlike sync.WaitGroup it allows
// new tasks to start while another goroutine is waiting for the count to
// reach zero.
type inflight struct {
	mu   sync.Mutex
	n    int
	idle chan struct{}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		f.idle = make(chan struct{})
	}
	f.n++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n--
	if f.n == 0 {
		close(f.idle)
	}
}

// wait returns a channel closed once every task started before the call
// has finished.
func (f *inflight) wait() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return idleClosed
	}
	return f.idle
}
