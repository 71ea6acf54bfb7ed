package speech

import "sync"

// LoopScheduler queues deferred work for a single consumer loop that drains Tasks.
type LoopScheduler struct {
	tasks chan func()
	done  chan struct{}
	once  sync.Once
}

func NewLoopScheduler(buffer int) *LoopScheduler {
	if buffer <= 0 {
		buffer = 16
	}
	return &LoopScheduler{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Defer never blocks the caller. Work queued after Close is dropped.
func (s *LoopScheduler) Defer(fn func()) {
	select {
	case <-s.done:
		return
	case s.tasks <- fn:
		return
	default:
	}
	go func() {
		select {
		case <-s.done:
		case s.tasks <- fn:
		}
	}()
}

func (s *LoopScheduler) Tasks() <-chan func() { return s.tasks }

func (s *LoopScheduler) Close() {
	s.once.Do(func() { close(s.done) })
}
