package telemetry

import (
	"sync"
)

// Publisher fans frame rate values out to subscribers. Each subscriber has a
// one-value buffer holding the newest value, so a slow reader never holds up
// the pipeline.
type Publisher struct {
	mu   sync.Mutex
	subs map[chan int]bool
	last int
}

func NewPublisher() *Publisher {
	return &Publisher{
		subs: make(map[chan int]bool),
	}
}

func (p *Publisher) Publish(fps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.last = fps
	for c := range p.subs {
		select {
		case <-c:
			// Replace the value the reader has not picked up.
		default:
		}
		c <- fps
	}
}

// Last returns the most recently published value.
func (p *Publisher) Last() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Subscribe returns a channel of published values and a function that ends
// the subscription and closes the channel.
func (p *Publisher) Subscribe() (<-chan int, func()) {
	c := make(chan int, 1)
	p.mu.Lock()
	p.subs[c] = true
	p.mu.Unlock()

	var once sync.Once
	return c, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			delete(p.subs, c)
			close(c)
		})
	}
}
