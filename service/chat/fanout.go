package chat

import (
	"sync"

	"TalkWire/logger"
	"TalkWire/tools/safe"
)

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout pushes one payload to many connections through a small worker
// pool, so a broadcast never runs on the caller's goroutine.
type Fanout struct {
	jobs     chan fanoutJob
	mu       sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		safe.Go(func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					if !c.enqueue(job.payload) {
						// Slow client: drop, the durable record recovers it.
						logger.Debugf("[fanout] queue full, drop frame conn=%s user=%s", c.ConnID, c.UserID())
					}
				}
			}
		})
	}
	return f
}

// Broadcast after Close is a silent no-op: shutdown races a read loop or
// the presence broadcaster still finishing its last event.
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

func (f *Fanout) Close() {
	f.stopOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.jobs)
		f.mu.Unlock()
	})
}
