package download

import (
	"sync"

	"bulkdl/internal/models"
)

// Observer receives engine events. Each observer is fed from its own
// goroutine, in publish order, so a slow observer never stalls the engine.
type Observer func(models.Event)

type notifier struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[uint64]*subscriber)}
}

func (n *notifier) subscribe(fn Observer) func() {
	s := newSubscriber(fn)
	go s.run()

	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.subs[id] = s
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
		s.close()
	}
}

func (n *notifier) publish(ev models.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, s := range n.subs {
		s.push(ev)
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	subs := n.subs
	n.subs = make(map[uint64]*subscriber)
	n.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}

// subscriber is an unbounded FIFO in front of one observer.
type subscriber struct {
	fn     Observer
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []models.Event
	closed bool
}

func newSubscriber(fn Observer) *subscriber {
	s := &subscriber{fn: fn}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *subscriber) push(ev models.Event) {
	s.mu.Lock()
	if !s.closed {
		s.queue = append(s.queue, ev)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

// close lets the queued events drain before run returns.
func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscriber) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		ev := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.fn(ev)
	}
}
