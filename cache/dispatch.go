package cache

import "sync"

// dispatcher runs post-eviction callbacks off the evicting goroutine.
// submit never blocks: when the queue is full the job gets its own
// goroutine, so callbacks that write back into the cache cannot deadlock
// the workers.
type dispatcher struct {
	q chan func()

	mu     sync.RWMutex // guards closed against concurrent sends
	closed bool
	wg     sync.WaitGroup
}

func newDispatcher(workers, queue int) *dispatcher {
	d := &dispatcher{q: make(chan func(), queue)}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer d.wg.Done()
			for f := range d.q {
				f()
			}
		}()
	}
	return d
}

func (d *dispatcher) submit(f func()) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		go f()
		return
	}
	select {
	case d.q <- f:
	default:
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			f()
		}()
	}
}

// close drains queued jobs and waits for them. Jobs submitted afterwards
// still run, each on its own goroutine.
func (d *dispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.q)
	d.mu.Unlock()
	d.wg.Wait()
}
