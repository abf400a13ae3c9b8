package telemetry

import (
	"testing"
)

func TestPublisherKeepsNewest(t *testing.T) {
	p := NewPublisher()
	c, cancel := p.Subscribe()
	defer cancel()

	p.Publish(10)
	p.Publish(20)
	p.Publish(30)

	if v := <-c; v != 30 {
		t.Errorf("got %d, want 30", v)
	}
	select {
	case v := <-c:
		t.Errorf("unexpected extra value %d", v)
	default:
	}
	if p.Last() != 30 {
		t.Errorf("Last() = %d, want 30", p.Last())
	}
}

func TestPublisherFanOut(t *testing.T) {
	p := NewPublisher()
	a, cancelA := p.Subscribe()
	b, cancelB := p.Subscribe()
	defer cancelA()

	p.Publish(5)
	if v := <-a; v != 5 {
		t.Errorf("a got %d", v)
	}
	if v := <-b; v != 5 {
		t.Errorf("b got %d", v)
	}

	cancelB()
	cancelB()
	if _, ok := <-b; ok {
		t.Errorf("b should be closed")
	}
	p.Publish(6)
	if v := <-a; v != 6 {
		t.Errorf("a got %d after b left", v)
	}
}
