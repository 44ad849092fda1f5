package keyboard

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Fake is a scripted Source for tests and the headless test mode.
type Fake struct {
	events chan KeyEvent
	once   sync.Once

	mu  sync.Mutex
	err error
}

func NewFake(buffer int) *Fake {
	return &Fake{events: make(chan KeyEvent, buffer)}
}

// Sim queues an event. It blocks once the buffer is full.
func (f *Fake) Sim(ev KeyEvent) { f.events <- ev }

// End finishes the stream; Next returns io.EOF after the queued events.
func (f *Fake) End() { f.once.Do(func() { close(f.events) }) }

// Lose finishes the stream as if the device disappeared.
func (f *Fake) Lose(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
	f.End()
}

func (f *Fake) Next(ctx context.Context) (KeyEvent, error) {
	select {
	case <-ctx.Done():
		return KeyEvent{}, ctx.Err()
	case ev, ok := <-f.events:
		if ok {
			return ev, nil
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return KeyEvent{}, fmt.Errorf("%w: %v", ErrDeviceLost, f.err)
	}
	return KeyEvent{}, io.EOF
}

func (f *Fake) Close() error {
	f.End()
	return nil
}
