// Package dispatch turns key events into play requests.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sync/atomic"

	"clack/keyboard"
	"clack/log"
	"clack/sound"
)

// State reports whether Run is still consuming events.
type State int32

const (
	Running State = iota
	Stopped
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Composer picks the layers for a key transition.
type Composer interface {
	Compose(code keyboard.KeyCode, tr keyboard.Transition) []sound.Layer
}

// Player accepts layers to play. Play must not block.
type Player interface {
	Play(layers ...sound.Layer)
}

type Stats struct {
	Events uint64
	Plays  uint64
	// Skipped events had a layer that could not be varied.
	Skipped uint64
}

// Dispatcher reads key events from a Source and plays the composed layers.
type Dispatcher struct {
	src    keyboard.Source
	bank   Composer
	player Player
	rng    *rand.Rand
	jitter func(sound.Layer, sound.Draw) (sound.Layer, error)

	state   atomic.Int32
	events  atomic.Uint64
	plays   atomic.Uint64
	skipped atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSeed fixes the variation generator, for reproducible runs.
func WithSeed(seed1, seed2 uint64) Option {
	return func(d *Dispatcher) { d.rng = rand.New(rand.NewPCG(seed1, seed2)) }
}

// WithJitter replaces sound.Jitter.
func WithJitter(fn func(sound.Layer, sound.Draw) (sound.Layer, error)) Option {
	return func(d *Dispatcher) { d.jitter = fn }
}

// New returns a Dispatcher in the Running state. Variation draws are
// randomly seeded unless WithSeed is given.
func New(src keyboard.Source, bank Composer, player Player, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		src:    src,
		bank:   bank,
		player: player,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		jitter: sound.Jitter,
	}
	for _, o := range opts {
		o(d)
	}
	d.state.Store(int32(Running))
	return d
}

// Run consumes events until the source ends or ctx is cancelled, both of
// which return nil. A source failure returns an error wrapping
// keyboard.ErrDeviceLost.
func (d *Dispatcher) Run(ctx context.Context) error {
	defer d.state.Store(int32(Stopped))

	for {
		ev, err := d.src.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, io.EOF):
				return nil
			case errors.Is(err, keyboard.ErrDeviceLost):
				return err
			default:
				return fmt.Errorf("%w: %v", keyboard.ErrDeviceLost, err)
			}
		}
		d.handle(ev)
	}
}

func (d *Dispatcher) handle(ev keyboard.KeyEvent) {
	d.events.Add(1)

	templates := d.bank.Compose(ev.Code, ev.Transition)
	if len(templates) == 0 {
		return
	}

	layers := make([]sound.Layer, 0, len(templates))
	for _, t := range templates {
		l, err := d.jitter(t, sound.NewDraw(d.rng))
		if err != nil {
			d.skipped.Add(1)
			log.Warnf("skipping sound for key %d %s: %v", ev.Code, ev.Transition, err)
			return
		}
		layers = append(layers, l)
	}

	d.player.Play(layers...)
	d.plays.Add(1)
}

func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Events:  d.events.Load(),
		Plays:   d.plays.Load(),
		Skipped: d.skipped.Load(),
	}
}
