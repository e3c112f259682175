package debug

import (
	"sync"

	"github.com/dshills/moaidebug/internal/event"
)

type note struct {
	topic   string
	payload any
}

// notifier delivers notifications on its own goroutine, in push order.
// push never blocks, so the controller goroutine is never held up by a
// slow or re-entrant listener.
type notifier struct {
	bus *event.Bus

	mu     sync.Mutex
	queue  []note
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newNotifier(bus *event.Bus) *notifier {
	n := &notifier{
		bus:  bus,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *notifier) push(topic string, payload any) {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.queue = append(n.queue, note{topic: topic, payload: payload})
	n.mu.Unlock()
	n.signal()
}

func (n *notifier) signal() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *notifier) run() {
	defer close(n.done)
	for {
		<-n.wake

		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closed := n.closed
		n.mu.Unlock()

		for _, nt := range batch {
			n.bus.Publish(nt.topic, nt.payload)
		}
		if closed {
			return
		}
	}
}

// close delivers what is queued and stops the goroutine. It must not be
// called from a listener.
func (n *notifier) close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	n.mu.Unlock()
	n.signal()
	<-n.done
}
