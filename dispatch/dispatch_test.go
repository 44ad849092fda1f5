package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clack/keyboard"
	"clack/mixer"
	"clack/output"
	"clack/sound"
)

type recordingPlayer struct {
	mu    sync.Mutex
	calls [][]sound.Kind
}

func (p *recordingPlayer) Play(layers ...sound.Layer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, sound.KindsOf(layers))
}

func (p *recordingPlayer) Calls() [][]sound.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]sound.Kind(nil), p.calls...)
}

func newBank(t *testing.T) *sound.Bank {
	t.Helper()
	b, err := sound.NewBank(sound.SampleRate)
	require.NoError(t, err)
	return b
}

func runAsync(ctx context.Context, d *Dispatcher) <-chan error {
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher")
		return nil
	}
}

func TestDispatchOrderedPlays(t *testing.T) {
	src := keyboard.NewFake(8)
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Down, Time: 0})
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeySpace, Transition: keyboard.Down, Time: 5 * time.Millisecond})
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Up, Time: 10 * time.Millisecond})
	src.End()

	player := &recordingPlayer{}
	d := New(src, newBank(t), player, WithSeed(1, 2))

	require.NoError(t, d.Run(context.Background()))
	assert.Equal(t, Stopped, d.State())

	calls := player.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []sound.Kind{sound.Click, sound.Thock, sound.Resonance}, calls[0])
	assert.Contains(t, calls[1], sound.SpacebarAccent)
	assert.Equal(t, []sound.Kind{sound.Release}, calls[2])

	assert.Equal(t, Stats{Events: 3, Plays: 3}, d.Stats())
}

func TestDispatchDeviceLost(t *testing.T) {
	src := keyboard.NewFake(2)
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Down})
	src.Lose(errors.New("read /dev/input/event3: no such device"))

	player := &recordingPlayer{}
	d := New(src, newBank(t), player)

	err := d.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, keyboard.ErrDeviceLost)
	assert.Len(t, player.Calls(), 1, "events before the loss are still played")
	assert.Equal(t, Stopped, d.State())
}

type failingSource struct{}

func (failingSource) Next(context.Context) (keyboard.KeyEvent, error) {
	return keyboard.KeyEvent{}, errors.New("bad file descriptor")
}

func (failingSource) Close() error { return nil }

func TestDispatchWrapsUnknownSourceErrors(t *testing.T) {
	d := New(failingSource{}, newBank(t), &recordingPlayer{})
	err := d.Run(context.Background())
	assert.ErrorIs(t, err, keyboard.ErrDeviceLost)
	assert.Contains(t, err.Error(), "bad file descriptor")
}

func TestDispatchStopsOnCancel(t *testing.T) {
	src := keyboard.NewFake(1)
	d := New(src, newBank(t), &recordingPlayer{})
	assert.Equal(t, Running, d.State())

	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)
	cancel()

	assert.NoError(t, wait(t, done))
	assert.Equal(t, Stopped, d.State())
}

func TestDispatchSkipsSynthesisErrors(t *testing.T) {
	src := keyboard.NewFake(4)
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Down})
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeySpace, Transition: keyboard.Down})
	src.End()

	failOnce := true
	jitter := func(l sound.Layer, d sound.Draw) (sound.Layer, error) {
		if failOnce {
			failOnce = false
			return sound.Layer{}, &sound.SynthesisError{Kind: l.Kind, Param: "pitch", Value: 9}
		}
		return sound.Jitter(l, d)
	}

	player := &recordingPlayer{}
	d := New(src, newBank(t), player, WithJitter(jitter))
	require.NoError(t, d.Run(context.Background()))

	calls := player.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], sound.SpacebarAccent)
	assert.Equal(t, Stats{Events: 2, Plays: 1, Skipped: 1}, d.Stats())
}

type emptyComposer struct{}

func (emptyComposer) Compose(keyboard.KeyCode, keyboard.Transition) []sound.Layer { return nil }

func TestDispatchEmptyComposition(t *testing.T) {
	src := keyboard.NewFake(1)
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Up})
	src.End()

	player := &recordingPlayer{}
	d := New(src, emptyComposer{}, player)
	require.NoError(t, d.Run(context.Background()))
	assert.Empty(t, player.Calls())
	assert.Equal(t, uint64(1), d.Stats().Events)
}

// A slow audio sink must not hold up event consumption.
func TestDispatchDoesNotWaitForAudio(t *testing.T) {
	const keys = 200
	src := keyboard.NewFake(2 * keys)
	for i := 0; i < keys; i++ {
		src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Down})
		src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Up})
	}
	src.End()

	m := mixer.New(mixer.Config{Capacity: 8, QueueSize: 16, Volume: 1})
	sink := output.NewFake()
	require.NoError(t, sink.Start(m))

	d := New(src, newBank(t), m)
	start := time.Now()
	require.NoError(t, d.Run(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	// The last 8 downs and 8 ups are still queued: 8*3 + 8*1 voices.
	st := m.Stats()
	assert.Equal(t, uint64(keys*4-32), st.Dropped)
	assert.Equal(t, uint64(2*keys), d.Stats().Plays)

	sink.Pull(1)
	assert.Equal(t, int64(8), m.Stats().Active)
}

func TestShutdownWithActiveVoices(t *testing.T) {
	src := keyboard.NewFake(4)
	m := mixer.New(mixer.DefaultConfig())
	sink := output.NewFake()
	require.NoError(t, sink.Start(m))

	d := New(src, newBank(t), m)
	ctx, cancel := context.WithCancel(context.Background())
	done := runAsync(ctx, d)

	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Down})
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeyA, Transition: keyboard.Up})
	src.Sim(keyboard.KeyEvent{Code: keyboard.KeySpace, Transition: keyboard.Up})

	require.Eventually(t, func() bool {
		sink.Pull(1)
		return m.Stats().Active == 5
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, wait(t, done))
	require.NotPanics(t, func() {
		require.NoError(t, m.Close())
		require.NoError(t, sink.Close())
	})
	assert.Equal(t, int64(5), m.Stats().Active)
	sink.Pull(16)
	assert.True(t, m.Closed())
}
