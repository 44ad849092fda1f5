package output

import (
	"errors"
	"sync"
)

// Fake is a Sink that only moves samples when Pull is called.
type Fake struct {
	// StartErr, when set, is returned (wrapped) by Start.
	StartErr error

	mu     sync.Mutex
	src    Source
	closed bool
	pulled int
	lost   lostSignal
}

func NewFake() *Fake {
	return &Fake{lost: newLostSignal()}
}

func (f *Fake) Start(src Source) error {
	if f.StartErr != nil {
		return unavailable("fake", f.StartErr)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.src = src
	return nil
}

// Pull runs one audio callback of n frames and returns its output.
func (f *Fake) Pull(n int) []float32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]float32, n)
	if f.src == nil || f.closed {
		return buf
	}
	f.src.Fill(buf)
	f.pulled += n
	return buf
}

// Pulled returns the number of frames pulled so far.
func (f *Fake) Pulled() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pulled
}

// Underrun forwards a simulated underrun to the source.
func (f *Fake) Underrun() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.src != nil {
		noteUnderrun(f.src)
	}
}

// Lose simulates the device disappearing.
func (f *Fake) Lose() {
	f.lost.report("fake", errors.New("device removed"))
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Fake) Lost() <-chan error { return f.lost }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
